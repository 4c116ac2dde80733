// Copyright (C) 2022, 2023 - Tillitis AB
// SPDX-License-Identifier: GPL-2.0-only

//go:build tools

// Package gotools pins the build tools. go-winres embeds
// cmd/blakesig-agent-tray/winres into the Windows tray binary:
//
//	go run github.com/tc-hib/go-winres make --in cmd/blakesig-agent-tray/winres/winres.json \
//		--out cmd/blakesig-agent-tray/rsrc
package gotools

import (
	_ "github.com/tc-hib/go-winres"
)
