// Copyright (C) 2023 - Tillitis AB
// SPDX-License-Identifier: GPL-2.0-only

package util

import (
	"fmt"
	"os"
)

// Notifier shows desktop notifications with the program name as
// title. The zero value with Progname set is ready to use.
type Notifier struct {
	Progname string
	// Quiet turns notifications into lines on stderr, for when there
	// is no desktop, e.g. in tests or over ssh.
	Quiet bool
}

func (n Notifier) Notify(msg string) {
	if n.Quiet {
		fmt.Fprintf(os.Stderr, "%s: %s\n", n.Progname, msg)
		return
	}
	notify(n.Progname, msg)
}
