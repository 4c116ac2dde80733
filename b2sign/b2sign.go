// SPDX-FileCopyrightText: 2026 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package b2sign derives Ed25519-BLAKE2b keys from a seed and signs
// and verifies with them.
//
// Derive the secret key for account index 0 of a seed, get its public
// key, sign and verify:
//
//	sk := b2sign.DerivePrivateKey(seed, 0)
//	pub := b2sign.PublicKeyFromSecret(sk)
//	sig := b2sign.Sign(message, sk)
//	ok := b2sign.Verify(message, sig, pub)
//
// Keys and signatures are arrays, so values returned here are owned
// by the caller and never alias anything inside the package. Byte
// slices from outside are converted with the FromSlice functions,
// which reject any length other than the exact one.
package b2sign

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/tillitis/blakesig/b2hash"
	"github.com/tillitis/blakesig/eddsa"
	"golang.org/x/crypto/blake2b"
)

const (
	SeedSize      = 32
	SecretKeySize = eddsa.SecretKeySize
	PublicKeySize = eddsa.PublicKeySize
	SignatureSize = eddsa.SignatureSize
)

type (
	// Seed is secret entropy that account keys are derived from.
	Seed [SeedSize]byte
	// SecretKey is the 32-byte Ed25519 secret, before expansion.
	SecretKey [SecretKeySize]byte
	PublicKey [PublicKeySize]byte
	Signature [SignatureSize]byte
)

var ErrInvalidLength = errors.New("invalid length")

// LengthError is returned for byte slices of the wrong size. It
// matches ErrInvalidLength with errors.Is.
type LengthError struct {
	What string
	Got  int
	Want int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%s: %s %d, want %d", e.What, ErrInvalidLength, e.Got, e.Want)
}

func (e *LengthError) Unwrap() error {
	return ErrInvalidLength
}

var engine = eddsa.New(b2hash.Hasher{})

// DerivePrivateKey returns the secret key for index: the BLAKE2b-256
// digest of the seed followed by the big-endian index.
func DerivePrivateKey(seed Seed, index uint32) SecretKey {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic("b2sign: " + err.Error())
	}

	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)

	h.Write(seed[:])
	h.Write(idx[:])

	var sk SecretKey
	h.Sum(sk[:0])
	return sk
}

// DerivePrivateKeyFromSlice is DerivePrivateKey for a seed held in a
// slice, which must be exactly SeedSize bytes.
func DerivePrivateKeyFromSlice(seed []byte, index uint32) (SecretKey, error) {
	s, err := SeedFromSlice(seed)
	if err != nil {
		return SecretKey{}, err
	}
	defer s.Zero()

	return DerivePrivateKey(s, index), nil
}

// PublicKeyFromSecret returns the public key of sk.
func PublicKeyFromSecret(sk SecretKey) PublicKey {
	return PublicKey(engine.PublicKey(sk[:]))
}

// Sign returns the signature of message by sk. The nonce is derived
// from sk and message, so signing is deterministic.
func Sign(message []byte, sk SecretKey) Signature {
	pub := PublicKeyFromSecret(sk)
	return Signature(engine.Sign(message, sk[:], pub[:]))
}

// SignWithRandomness is like Sign but mixes bytes read from rand into
// the nonce. The signature verifies like any other. It fails only if
// rand does.
func SignWithRandomness(message []byte, sk SecretKey, rand io.Reader) (Signature, error) {
	pub := PublicKeyFromSecret(sk)
	sig, err := engine.SignRandomized(message, sk[:], pub[:], rand)
	if err != nil {
		return Signature{}, fmt.Errorf("SignRandomized: %w", err)
	}
	return Signature(sig), nil
}

// Verify reports whether sig is a valid signature of message by pub.
// An invalid signature is not an error, it is just false.
func Verify(message []byte, sig Signature, pub PublicKey) bool {
	return engine.Verify(message, sig[:], pub[:])
}

// VerifySlices is Verify for slices. It returns an error only when sig
// or pub has the wrong length.
func VerifySlices(message, sig, pub []byte) (bool, error) {
	s, err := SignatureFromSlice(sig)
	if err != nil {
		return false, err
	}
	p, err := PublicKeyFromSlice(pub)
	if err != nil {
		return false, err
	}
	return Verify(message, s, p), nil
}

func SeedFromSlice(b []byte) (Seed, error) {
	var s Seed
	if len(b) != SeedSize {
		return s, &LengthError{What: "seed", Got: len(b), Want: SeedSize}
	}
	copy(s[:], b)
	return s, nil
}

func SecretKeyFromSlice(b []byte) (SecretKey, error) {
	var sk SecretKey
	if len(b) != SecretKeySize {
		return sk, &LengthError{What: "secret key", Got: len(b), Want: SecretKeySize}
	}
	copy(sk[:], b)
	return sk, nil
}

func PublicKeyFromSlice(b []byte) (PublicKey, error) {
	var pub PublicKey
	if len(b) != PublicKeySize {
		return pub, &LengthError{What: "public key", Got: len(b), Want: PublicKeySize}
	}
	copy(pub[:], b)
	return pub, nil
}

func SignatureFromSlice(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, &LengthError{What: "signature", Got: len(b), Want: SignatureSize}
	}
	copy(sig[:], b)
	return sig, nil
}

// Zero overwrites the seed. Callers may use it when done.
func (s *Seed) Zero() {
	clear(s[:])
}

// Zero overwrites the secret key.
func (sk *SecretKey) Zero() {
	clear(sk[:])
}

func (pub PublicKey) String() string {
	return hex.EncodeToString(pub[:])
}

func (sig Signature) String() string {
	return hex.EncodeToString(sig[:])
}
