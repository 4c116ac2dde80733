// Copyright (C) 2023 - Tillitis AB
// SPDX-License-Identifier: GPL-2.0-only

//go:build unix

package util

import (
	"fmt"
	"os"

	"github.com/gen2brain/beeep"
)

func notify(title, msg string) {
	if err := beeep.Notify(title, msg, ""); err != nil {
		fmt.Fprintf(os.Stderr, "Notify message %q failed: %s\n", msg, err)
	}
}
