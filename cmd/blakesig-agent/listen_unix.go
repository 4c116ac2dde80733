// Copyright (C) 2023 - Tillitis AB
// SPDX-License-Identifier: GPL-2.0-only

//go:build unix

package main

import (
	"fmt"
	"net"
	"os"
	"syscall"
)

// nativeListen creates the agent socket readable only by the owner.
func nativeListen(path string) (net.Listener, error) {
	old := syscall.Umask(0o077)
	l, err := net.Listen("unix", path)
	syscall.Umask(old)
	if err != nil {
		return nil, fmt.Errorf("Listen: %w", err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		l.Close()
		return nil, fmt.Errorf("Chmod: %w", err)
	}
	return l, nil
}
