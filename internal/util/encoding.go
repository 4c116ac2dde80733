// SPDX-FileCopyrightText: 2026 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package util

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Format is how keys and signatures are written for humans.
type Format string

const (
	FormatHex    Format = "hex"
	FormatBase58 Format = "base58"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatHex, FormatBase58:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q, want hex or base58", s)
	}
}

func (f Format) Encode(b []byte) string {
	if f == FormatBase58 {
		return base58.Encode(b)
	}
	return hex.EncodeToString(b)
}

func (f Format) Decode(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if f == FormatBase58 {
		b, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("base58: %w", err)
		}
		return b, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("hex: %w", err)
	}
	return b, nil
}
