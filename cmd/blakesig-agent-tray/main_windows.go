// SPDX-FileCopyrightText: 2022 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

//go:build windows

package main

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/apenwarr/fixconsole"
	"github.com/getlantern/systray"
	"github.com/tawesoft/golib/v2/dialog"
	"github.com/tillitis/blakesig/internal/util"
)

var notifier = util.Notifier{Progname: progname}

func main() {
	if version == "" {
		version = "unknown" // The version should be set from make during build.
	}

	// We're not supposed to be run in a console, but if we still are
	// then try to get our output into it
	if err := fixconsole.FixConsoleIfNeeded(); err != nil {
		le.Printf("FixConsole: %s\n", err)
	}
	le = log.New(os.Stderr, "", 0)

	ourExePath, err := os.Executable()
	if err != nil {
		notifier.Notify("Could not find our own executable")
		le.Printf("os.Executable: %s\n", err)
		os.Exit(1)
	}
	mainExePath := filepath.Join(filepath.Dir(ourExePath), mainExe)

	args := os.Args[1:]
	if err := checkArgs(args); err != nil {
		notifier.Notify(err.Error())
		os.Exit(2)
	}

	le.Printf("Starting \"%s\" with args %v\n", mainExePath, args)

	cmd := exec.Command(mainExePath, args...)
	// mainExe is a console binary, so without this windows opens a
	// console for it.
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	if err = cmd.Start(); err != nil {
		notifier.Notify(fmt.Sprintf("Could not start \"%s\":\n%s", mainExe, err))
		le.Printf("Failed to start: %s\n", err)
		os.Exit(1)
	}
	le.Printf("Started with PID: %d\n", cmd.Process.Pid)

	mainCmdLine := commandLine(mainExe, args)
	go tray(mainCmdLine, func() {
		if err = cmd.Process.Kill(); err != nil {
			le.Printf("Failed to stop %s on Quit: %s\n", mainExe, err)
		}
		os.Exit(0)
	})

	state, err := cmd.Process.Wait()
	if err != nil {
		notifier.Notify(fmt.Sprintf("Failed to wait for %s:\n%s", mainExe, err))
		le.Printf("Failed to wait for %s: %s\n", mainExe, err)
		os.Exit(1)
	}

	if !state.Success() {
		notifier.Notify(fmt.Sprintf("%s stopped with code %d.\n%s will exit.",
			mainExe, state.ExitCode(), progname))
	}
	le.Printf("%s stopped with code: %d\n", mainExe, state.ExitCode())
	le.Printf("%s is exiting\n", progname)
	os.Exit(state.ExitCode())
}

//go:embed trayicon.ico
var trayIconICO []byte

func tray(mainCmdLine string, onExit func()) {
	onReady := func() {
		le.Printf("Added icon to system tray\n")
		systray.SetTemplateIcon(trayIconICO, trayIconICO)
		systray.SetTooltip(mainCmdLine)

		about := systray.AddMenuItem("About", "")
		go func() {
			for range about.ClickedCh {
				_ = dialog.Info(aboutText(version, mainCmdLine))
			}
		}()

		quit := systray.AddMenuItem("Quit", "")
		go func() {
			<-quit.ClickedCh
			le.Printf("Quit from trayicon menu\n")
			systray.Quit()
		}()
	}

	systray.Run(onReady, onExit)
}
