// Copyright (C) 2023 - Tillitis AB
// SPDX-License-Identifier: GPL-2.0-only

//go:build windows

package util

import (
	"fmt"
	"os"

	"github.com/gen2brain/beeep"
	"github.com/go-toast/toast"
	"golang.org/x/sys/windows"
)

var isWindows10 bool

func init() {
	maj, _, _ := windows.RtlGetNtVersionNumbers()
	isWindows10 = (maj >= 10)
}

func notify(title, msg string) {
	// beeep doesn't let us set the AppID, which is what win10+ shows
	// at the top of the toast, so we go to toast directly there.
	if isWindows10 {
		notification := toast.Notification{
			AppID:   title,
			Message: msg,
		}
		if err := notification.Push(); err != nil {
			fmt.Fprintf(os.Stderr, "toast message %q failed: %s\n", msg, err)
		}
		return
	}

	if err := beeep.Notify(title, msg, ""); err != nil {
		fmt.Fprintf(os.Stderr, "Notify message %q failed: %s\n", msg, err)
	}
}
