// Copyright (C) 2023 - Tillitis AB
// SPDX-License-Identifier: BSD-2-Clause

//go:build windows

package main

import (
	"fmt"
	"net"
	"os/user"

	"github.com/Microsoft/go-winio"
)

// nativeListen creates a named pipe that only the current user can
// open.
func nativeListen(path string) (net.Listener, error) {
	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("user.Current: %w", err)
	}

	l, err := winio.ListenPipe(path, &winio.PipeConfig{
		SecurityDescriptor: "D:P(A;;GA;;;" + currentUser.Uid + ")",
		InputBufferSize:    4096,
		OutputBufferSize:   4096,
	})
	if err != nil {
		return nil, fmt.Errorf("ListenPipe: %w", err)
	}
	return l, nil
}
