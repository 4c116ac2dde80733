// Copyright (C) 2022 - Tillitis AB
// SPDX-License-Identifier: GPL-2.0-only

package util

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var ErrNoPassphrase = errors.New("no passphrase entered")

// ReadPassphrase prompts on stderr and reads a passphrase from the
// terminal without echo. With confirm, it is asked for twice and both
// must match.
func ReadPassphrase(prompt string, confirm bool) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal, use --passphrase-file")
	}

	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintf(os.Stderr, "\n")
	if err != nil {
		return nil, fmt.Errorf("ReadPassword: %w", err)
	}
	if len(secret) == 0 {
		return nil, ErrNoPassphrase
	}
	if !confirm {
		return secret, nil
	}

	fmt.Fprintf(os.Stderr, "Repeat the passphrase: ")
	again, err := term.ReadPassword(fd)
	fmt.Fprintf(os.Stderr, "\n")
	if err != nil {
		return nil, fmt.Errorf("ReadPassword: %w", err)
	}
	if !bytes.Equal(secret, again) {
		return nil, errors.New("passphrases did not match")
	}
	return secret, nil
}

// ReadSecretFile reads a secret from path, or from stdin if path is
// "-". One trailing newline is dropped so that files written by echo
// or an editor work; everything else is kept as is.
func ReadSecretFile(path string) ([]byte, error) {
	if path == "-" {
		return ReadSecret(os.Stdin)
	}
	secret, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ReadFile: %w", err)
	}
	return checkSecret(secret)
}

// ReadSecret is ReadSecretFile for a secret arriving on r.
func ReadSecret(r io.Reader) ([]byte, error) {
	secret, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ReadAll: %w", err)
	}
	return checkSecret(secret)
}

func checkSecret(secret []byte) ([]byte, error) {
	secret = trimNewline(secret)
	if len(secret) == 0 {
		return nil, ErrNoPassphrase
	}
	return secret, nil
}

func trimNewline(b []byte) []byte {
	if bytes.HasSuffix(b, []byte("\r\n")) {
		return b[:len(b)-2]
	}
	return bytes.TrimSuffix(b, []byte("\n"))
}
