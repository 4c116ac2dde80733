// SPDX-FileCopyrightText: 2026 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package eddsa implements Ed25519 signing and verification with the
// internal hash function supplied by the caller. Plugged with SHA-512
// it is RFC 8032 Ed25519. Plugged with BLAKE2b-512 it is the
// Ed25519-BLAKE2b variant used by package b2sign.
//
// Use it like this:
//
//	engine := eddsa.New(hasher)
//	pub := engine.PublicKey(secret)
//	sig := engine.Sign(message, secret, pub[:])
//	ok := engine.Verify(message, sig[:], pub[:])
//
// The engine holds no mutable state. Every hash computation it does
// gets its own Digest from Hasher.Init, so an Engine may be shared by
// any number of goroutines.
package eddsa

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"filippo.io/edwards25519"
)

const (
	// PublicKeySize is the size, in bytes, of public keys.
	PublicKeySize = 32
	// SecretKeySize is the size, in bytes, of secret keys. This is
	// the RFC 8032 "private key", i.e. the seed of the expansion.
	SecretKeySize = 32
	// SignatureSize is the size, in bytes, of signatures.
	SignatureSize = 64
	// DigestSize is the output size a Hasher must have.
	DigestSize = 64
	// RandomnessSize is the number of bytes read from the randomness
	// source by SignRandomized.
	RandomnessSize = 32
)

// Digest is a running hash computation. It is used by exactly one
// caller, which feeds it with Update in order and reads it once with
// Final.
type Digest interface {
	Update(p []byte)
	Final() [DigestSize]byte
}

// Hasher is the hash capability the engine is generic over.
//
// Init must return a new Digest every time, never one shared with
// another computation. Sum(p) must equal Init, Update(p), Final.
type Hasher interface {
	Init() Digest
	Sum(p []byte) [DigestSize]byte
}

// Engine is Ed25519 with its hash function fixed to a Hasher.
type Engine struct {
	h Hasher
}

// New returns an Engine using h for all internal hashing.
func New(h Hasher) *Engine {
	return &Engine{h: h}
}

type expandedKey struct {
	s      *edwards25519.Scalar
	prefix [32]byte
}

func (e *Engine) expand(secret []byte) expandedKey {
	if l := len(secret); l != SecretKeySize {
		panic("eddsa: bad secret key length: " + strconv.Itoa(l))
	}

	h := e.h.Sum(secret)
	s, err := edwards25519.NewScalar().SetBytesWithClamping(h[:32])
	if err != nil {
		panic("eddsa: internal error: setting scalar failed")
	}

	var k expandedKey
	k.s = s
	copy(k.prefix[:], h[32:])
	return k
}

// PublicKey returns the public key belonging to secret. It panics if
// len(secret) is not SecretKeySize.
func (e *Engine) PublicKey(secret []byte) [PublicKeySize]byte {
	k := e.expand(secret)
	A := (&edwards25519.Point{}).ScalarBaseMult(k.s)

	var pub [PublicKeySize]byte
	copy(pub[:], A.Bytes())
	return pub
}

// Sign signs message with secret and returns the signature. public
// must be the public key of secret; it is hashed into the signature
// as is, so a wrong one gives a signature that won't verify.
//
// The nonce is derived from the secret and the message as in RFC 8032,
// so the same inputs always give the same signature. It panics if
// secret or public have the wrong length.
func (e *Engine) Sign(message, secret, public []byte) [SignatureSize]byte {
	sig, _ := e.sign(message, secret, public, nil)
	return sig
}

// SignRandomized is like Sign but additionally hashes RandomnessSize
// bytes read from rand into the nonce. The result verifies exactly
// like a deterministic signature. An error is returned only if
// reading from rand fails.
func (e *Engine) SignRandomized(message, secret, public []byte, rand io.Reader) ([SignatureSize]byte, error) {
	if rand == nil {
		return [SignatureSize]byte{}, fmt.Errorf("eddsa: nil randomness source")
	}
	return e.sign(message, secret, public, rand)
}

func (e *Engine) sign(message, secret, public []byte, rand io.Reader) ([SignatureSize]byte, error) {
	var sig [SignatureSize]byte

	if l := len(public); l != PublicKeySize {
		panic("eddsa: bad public key length: " + strconv.Itoa(l))
	}
	k := e.expand(secret)

	nonceDigest := e.h.Init()
	nonceDigest.Update(k.prefix[:])
	if rand != nil {
		var z [RandomnessSize]byte
		if _, err := io.ReadFull(rand, z[:]); err != nil {
			return sig, fmt.Errorf("eddsa: reading randomness: %w", err)
		}
		nonceDigest.Update(z[:])
	}
	nonceDigest.Update(message)
	nonce := nonceDigest.Final()

	r, err := edwards25519.NewScalar().SetUniformBytes(nonce[:])
	if err != nil {
		panic("eddsa: internal error: setting scalar failed")
	}
	R := (&edwards25519.Point{}).ScalarBaseMult(r)
	encodedR := R.Bytes()

	kh := e.challenge(encodedR, public, message)
	S := edwards25519.NewScalar().MultiplyAdd(kh, k.s, r)

	copy(sig[:32], encodedR)
	copy(sig[32:], S.Bytes())
	return sig, nil
}

// challenge computes H(R || A || M) reduced mod l.
func (e *Engine) challenge(encodedR, public, message []byte) *edwards25519.Scalar {
	d := e.h.Init()
	d.Update(encodedR)
	d.Update(public)
	d.Update(message)
	digest := d.Final()

	k, err := edwards25519.NewScalar().SetUniformBytes(digest[:])
	if err != nil {
		panic("eddsa: internal error: setting scalar failed")
	}
	return k
}

// Verify reports whether sig is a valid signature of message by
// public. It returns false for inputs of the wrong length, for public
// keys that are not valid points, and for non-canonical signatures.
func (e *Engine) Verify(message, sig, public []byte) bool {
	if len(public) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	// The three top bits of S must be clear for S < l.
	if sig[63]&224 != 0 {
		return false
	}

	A, err := (&edwards25519.Point{}).SetBytes(public)
	if err != nil {
		return false
	}

	S, err := edwards25519.NewScalar().SetCanonicalBytes(sig[32:])
	if err != nil {
		return false
	}

	k := e.challenge(sig[:32], public, message)

	// [S]B = R + [k]A  <=>  [k](-A) + [S]B = R
	minusA := (&edwards25519.Point{}).Negate(A)
	R := (&edwards25519.Point{}).VarTimeDoubleScalarBaseMult(k, minusA, S)

	return bytes.Equal(sig[:32], R.Bytes())
}
