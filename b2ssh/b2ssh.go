// SPDX-FileCopyrightText: 2026 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package b2ssh makes Ed25519-BLAKE2b keys usable with
// golang.org/x/crypto/ssh and its agent package.
//
// The wire format is the one of ssh-ed25519 with its own algorithm
// name, so agents and clients pass the keys through untouched. Servers
// need to know KeyAlgo to accept them.
package b2ssh

import (
	"bytes"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/tillitis/blakesig/b2sign"
	"golang.org/x/crypto/ssh"
)

// KeyAlgo is the SSH public key and signature algorithm name.
const KeyAlgo = "ed25519-blake2b@tillitis.se"

var ErrKeyType = errors.New("not an " + KeyAlgo + " key")

// PublicKey implements ssh.PublicKey.
type PublicKey b2sign.PublicKey

var _ ssh.PublicKey = PublicKey{}

func (k PublicKey) Type() string {
	return KeyAlgo
}

func (k PublicKey) Marshal() []byte {
	w := struct {
		Name     string
		KeyBytes []byte
	}{
		KeyAlgo,
		k[:],
	}
	return ssh.Marshal(&w)
}

func (k PublicKey) Verify(data []byte, sig *ssh.Signature) error {
	if sig.Format != KeyAlgo {
		return fmt.Errorf("signature type %s for key type %s", sig.Format, KeyAlgo)
	}
	ok, err := b2sign.VerifySlices(data, sig.Blob, k[:])
	if err != nil {
		return fmt.Errorf("VerifySlices: %w", err)
	}
	if !ok {
		return errors.New("signature did not verify")
	}
	return nil
}

// ParsePublicKey parses a key in SSH wire format, as returned by
// Marshal or found in agent.Key.Blob.
func ParsePublicKey(blob []byte) (PublicKey, error) {
	var w struct {
		Name     string
		KeyBytes []byte
		Rest     []byte `ssh:"rest"`
	}
	if err := ssh.Unmarshal(blob, &w); err != nil {
		return PublicKey{}, fmt.Errorf("Unmarshal: %w", err)
	}
	if w.Name != KeyAlgo {
		return PublicKey{}, fmt.Errorf("%w: %s", ErrKeyType, w.Name)
	}
	if len(w.Rest) > 0 {
		return PublicKey{}, errors.New("trailing data after public key")
	}
	pub, err := b2sign.PublicKeyFromSlice(w.KeyBytes)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey(pub), nil
}

// MarshalAuthorizedKey returns the key in authorized_keys format, with
// comment appended if it is not empty.
func MarshalAuthorizedKey(k PublicKey, comment string) []byte {
	line := bytes.TrimSuffix(ssh.MarshalAuthorizedKey(k), []byte("\n"))
	if comment != "" {
		line = append(line, ' ')
		line = append(line, comment...)
	}
	return append(line, '\n')
}

// ParseAuthorizedKey parses a single authorized_keys line as written
// by MarshalAuthorizedKey. ssh.ParseAuthorizedKey rejects algorithms
// it does not know, so it can't be used for these keys.
func ParseAuthorizedKey(line []byte) (PublicKey, string, error) {
	fields := bytes.Fields(line)
	if len(fields) < 2 {
		return PublicKey{}, "", errors.New("authorized key: too few fields")
	}
	if string(fields[0]) != KeyAlgo {
		return PublicKey{}, "", fmt.Errorf("%w: %s", ErrKeyType, fields[0])
	}
	blob, err := base64.StdEncoding.DecodeString(string(fields[1]))
	if err != nil {
		return PublicKey{}, "", fmt.Errorf("DecodeString: %w", err)
	}
	pub, err := ParsePublicKey(blob)
	if err != nil {
		return PublicKey{}, "", err
	}

	var comment string
	if len(fields) > 2 {
		comment = string(bytes.Join(fields[2:], []byte(" ")))
	}
	return pub, comment, nil
}

type signer struct {
	key *b2sign.PrivateKey
}

// NewSigner returns an ssh.Signer signing with key.
func NewSigner(key *b2sign.PrivateKey) ssh.Signer {
	return &signer{key: key}
}

func (s *signer) PublicKey() ssh.PublicKey {
	return PublicKey(s.key.PublicKey())
}

func (s *signer) Sign(rand io.Reader, data []byte) (*ssh.Signature, error) {
	sig, err := s.key.Sign(rand, data, crypto.Hash(0))
	if err != nil {
		return nil, fmt.Errorf("Sign: %w", err)
	}
	return &ssh.Signature{
		Format: KeyAlgo,
		Blob:   sig,
	}, nil
}
