// SPDX-FileCopyrightText: 2026 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package b2sign

import (
	"crypto"
	"errors"
	"io"
)

// PrivateKey is a secret key with its public key computed once. It
// implements crypto.Signer.
type PrivateKey struct {
	secret SecretKey
	public PublicKey
}

// NewPrivateKey copies sk into a new PrivateKey.
func NewPrivateKey(sk SecretKey) *PrivateKey {
	return &PrivateKey{
		secret: sk,
		public: PublicKeyFromSecret(sk),
	}
}

func (k *PrivateKey) PublicKey() PublicKey {
	return k.public
}

// Zero wipes the secret key. The PrivateKey can't sign afterwards.
func (k *PrivateKey) Zero() {
	k.secret.Zero()
	k.public = PublicKey{}
}

// implementing crypto.Signer below

func (k *PrivateKey) Public() crypto.PublicKey {
	return k.public
}

// Sign signs message, which must not be hashed. Like crypto/ed25519,
// rand is ignored and the signature is deterministic; use
// SignWithRandomness for a hedged nonce.
func (k *PrivateKey) Sign(_ io.Reader, message []byte, opts crypto.SignerOpts) ([]byte, error) {
	// Ed25519 hashes the message twice internally, so it can't be
	// given a digest.
	if opts.HashFunc() != crypto.Hash(0) {
		return nil, errors.New("message must not be hashed")
	}
	if k.public == (PublicKey{}) {
		return nil, errors.New("key has been zeroed")
	}

	sig := engine.Sign(message, k.secret[:], k.public[:])
	return sig[:], nil
}
