// SPDX-FileCopyrightText: 2022 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/tillitis/blakesig/internal/util"
	"github.com/twpayne/go-pinentry"
)

// passphraseSource picks where the seed passphrase comes from. A
// passphrase file is read again on every unlock. Stdin ("-") can only
// be read once, so it is read here and kept for later unlocks.
func passphraseSource(passphraseFile, seedPath, pinentryProgram string, stdin io.Reader) (PassphraseFunc, error) {
	switch passphraseFile {
	case "":
		return func() ([]byte, error) {
			return getPassphrase(seedPath, pinentryProgram)
		}, nil
	case "-":
		kept, err := util.ReadSecret(stdin)
		if err != nil {
			return nil, fmt.Errorf("passphrase from stdin: %w", err)
		}
		return func() ([]byte, error) {
			// The signer wipes what it gets.
			return append([]byte(nil), kept...), nil
		}, nil
	default:
		return func() ([]byte, error) {
			return util.ReadSecretFile(passphraseFile)
		}, nil
	}
}

func getPassphrase(seedPath string, pinentryProgram string) ([]byte, error) {
	// Showing the seed path so the user knows which seed is being
	// unlocked when several agents run.
	desc := fmt.Sprintf("%s needs the passphrase for the seed in:\n"+
		"%s", progname, seedPath)

	opts := []pinentry.ClientOption{
		pinentry.WithBinaryNameFromGnuPGAgentConf(),
		pinentry.WithGPGTTY(),
		pinentry.WithDesc(desc),
		pinentry.WithPrompt("Passphrase"),
		pinentry.WithTitle(progname),
	}

	if pinentryProgram != "" {
		opts = append(opts, pinentry.WithBinaryName(pinentryProgram))
	} else if runtime.GOOS == "windows" {
		found := findWindowsPinentry()
		if found != "" {
			le.Printf("Found gpgconf and got pinentry program: %s\n", found)
			opts = append(opts, pinentry.WithBinaryName(found))
		}
	}

	client, err := pinentry.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("pinentry.NewClient: %w", err)
	}
	defer client.Close()

	pin, _, err := client.GetPIN()
	if err != nil {
		return nil, fmt.Errorf("pinentry GetPin: %w", err)
	}
	return []byte(pin), nil
}

// findWindowsPinentry looks for the pinentry shipped with Gpg4win,
// next to gpgconf in PATH, then for any pinentry in PATH.
func findWindowsPinentry() string {
	knownProg, err := exec.LookPath("gpgconf.exe")
	if err != nil {
		le.Printf("LookPath: %s\n", err)
		return ""
	}
	gpgDir := filepath.Dir(knownProg)
	if filepath.Base(gpgDir) == "bin" {
		gpgDir = filepath.Dir(gpgDir)
	}

	for _, relExe := range []string{`..\Gpg4win\bin\pinentry.exe`, `..\Gpg4win\pinentry.exe`} {
		candidate := filepath.Join(gpgDir, relExe)
		if _, err := os.Stat(candidate); err != nil {
			le.Printf("Tried %s got: %s\n", candidate, err)
			continue
		}
		return candidate
	}

	for _, exe := range []string{`pinentry.exe`, `pinentry-basic.exe`} {
		candidate, err := exec.LookPath(exe)
		if err != nil {
			le.Printf("LookPath: %s\n", err)
			continue
		}
		return candidate
	}
	return ""
}
