// SPDX-FileCopyrightText: 2026 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package seedstore creates seeds, converts them to and from BIP39
// mnemonics, and keeps them on disk encrypted under a passphrase.
//
// The mnemonic encodes the 32 seed bytes directly as BIP39 entropy, so
// it is always 24 words and the seed can be restored from it exactly.
package seedstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tillitis/blakesig/b2sign"
	"github.com/tyler-smith/go-bip39"
)

var (
	ErrInvalidMnemonic    = errors.New("invalid mnemonic")
	ErrInvalidPassphrase  = errors.New("invalid passphrase")
	ErrPassphraseRequired = errors.New("passphrase is required")
)

// NewSeed reads a new seed from rand, normally crypto/rand.Reader.
func NewSeed(rand io.Reader) (b2sign.Seed, error) {
	var seed b2sign.Seed
	if _, err := io.ReadFull(rand, seed[:]); err != nil {
		return b2sign.Seed{}, fmt.Errorf("ReadFull: %w", err)
	}
	return seed, nil
}

func MnemonicFromSeed(seed b2sign.Seed) (string, error) {
	mnemonic, err := bip39.NewMnemonic(seed[:])
	if err != nil {
		return "", fmt.Errorf("NewMnemonic: %w", err)
	}
	return mnemonic, nil
}

// SeedFromMnemonic restores a seed from its 24-word mnemonic. Extra
// whitespace between words is ignored.
func SeedFromMnemonic(mnemonic string) (b2sign.Seed, error) {
	words := strings.Fields(mnemonic)
	if len(words) == 0 {
		return b2sign.Seed{}, fmt.Errorf("%w: empty", ErrInvalidMnemonic)
	}
	mnemonic = strings.ToLower(strings.Join(words, " "))

	if !bip39.IsMnemonicValid(mnemonic) {
		return b2sign.Seed{}, ErrInvalidMnemonic
	}
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return b2sign.Seed{}, fmt.Errorf("%w: %w", ErrInvalidMnemonic, err)
	}
	defer zeroBytes(entropy)

	if len(entropy) != b2sign.SeedSize {
		return b2sign.Seed{}, fmt.Errorf("%w: %d words, want 24", ErrInvalidMnemonic, len(words))
	}
	return b2sign.Seed(entropy), nil
}

// SeedFromHex parses a seed written as 64 hex digits.
func SeedFromHex(s string) (b2sign.Seed, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return b2sign.Seed{}, fmt.Errorf("DecodeString: %w", err)
	}
	defer zeroBytes(b)

	return b2sign.SeedFromSlice(b)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
