// SPDX-FileCopyrightText: 2022 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
)

var le = log.New(os.Stderr, "", 0)

const (
	progname = "blakesig-agent-tray"
	// Expected to be found next to ourselves
	mainExe = "blakesig-agent.exe"
)

var version string

// checkArgs makes sure the agent will know where to listen, either
// from -a or from agent_path in a config file, and that it is not
// asked to only print the public keys.
func checkArgs(args []string) error {
	for i, arg := range args {
		if arg == "--" {
			if i+1 < len(args) {
				return fmt.Errorf("unexpected argument: %s", args[i+1])
			}
			args = args[:i]
			break
		}
		if arg == "-p" || arg == "--show-pubkey" {
			return fmt.Errorf("%s only starts the agent, run %s -p from a console instead", progname, mainExe)
		}
	}

	for _, arg := range args {
		switch {
		case arg == "-a" || arg == "--agent-path" || strings.HasPrefix(arg, "--agent-path="):
			return nil
		case arg == "-c" || arg == "--config" || strings.HasPrefix(arg, "--config="):
			return nil
		case strings.HasPrefix(arg, "-a") && len(arg) > 2 && !strings.HasPrefix(arg, "--"):
			return nil
		}
	}
	return errors.New("To get blakesig-agent started, the tray program should be passed at least the -a argument to set the name of the listening pipe, or -c with a config file that sets agent_path.")
}

func commandLine(exe string, args []string) string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", exe, strings.Join(args, " ")))
}

func aboutText(version, mainCmdLine string) string {
	return fmt.Sprintf(`blakesig SSH agent
Copyright (C) Tillitis AB

Source code is licensed under the
BSD 2-Clause License
unless otherwise noted in the source code.

Tillitis: https://www.tillitis.se

Version: %s
Running: %s`, version, mainCmdLine)
}
