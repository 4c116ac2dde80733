// SPDX-FileCopyrightText: 2026 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package seedstore

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tillitis/blakesig/b2sign"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	kdfArgon2id     = "argon2id"
	saltSize        = 16

	// Bounds on parameters read from a seed file, so that an edited
	// file cannot make us allocate or spin without limit.
	maxKDFTime     = 16
	maxKDFMemoryKB = 4 * 1024 * 1024
)

// Params are the argon2id cost parameters.
type Params struct {
	Time     uint32
	MemoryKB uint32
	Threads  uint8
}

var DefaultParams = Params{
	Time:     2,
	MemoryKB: 64 * 1024,
	Threads:  1,
}

// Envelope is a seed encrypted with XChaCha20-Poly1305 under a key
// derived from a passphrase with argon2id. It is stored as JSON.
type Envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// Encrypt seals seed under passphrase using DefaultParams.
func Encrypt(seed b2sign.Seed, passphrase []byte) (*Envelope, error) {
	return EncryptWithParams(seed, passphrase, DefaultParams)
}

func EncryptWithParams(seed b2sign.Seed, passphrase []byte, p Params) (*Envelope, error) {
	if len(passphrase) == 0 {
		return nil, ErrPassphraseRequired
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("rand.Read: %w", err)
	}
	key := argon2.IDKey(passphrase, salt, p.Time, p.MemoryKB, p.Threads, chacha20poly1305.KeySize)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("NewX: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("rand.Read: %w", err)
	}

	return &Envelope{
		Version:     envelopeVersion,
		KDF:         kdfArgon2id,
		KDFTime:     p.Time,
		KDFMemoryKB: p.MemoryKB,
		KDFThreads:  p.Threads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, seed[:], nil),
	}, nil
}

// Decrypt opens env with passphrase. A wrong passphrase, or a
// tampered envelope, gives ErrInvalidPassphrase.
func Decrypt(env *Envelope, passphrase []byte) (b2sign.Seed, error) {
	if len(passphrase) == 0 {
		return b2sign.Seed{}, ErrPassphraseRequired
	}
	if env.Version != envelopeVersion {
		return b2sign.Seed{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	if env.KDF != kdfArgon2id {
		return b2sign.Seed{}, fmt.Errorf("unsupported kdf: %s", env.KDF)
	}
	p := Params{Time: env.KDFTime, MemoryKB: env.KDFMemoryKB, Threads: env.KDFThreads}
	if err := p.validate(); err != nil {
		return b2sign.Seed{}, err
	}
	if len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return b2sign.Seed{}, fmt.Errorf("bad nonce length: %d", len(env.Nonce))
	}

	key := argon2.IDKey(passphrase, env.Salt, p.Time, p.MemoryKB, p.Threads, chacha20poly1305.KeySize)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return b2sign.Seed{}, fmt.Errorf("NewX: %w", err)
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return b2sign.Seed{}, ErrInvalidPassphrase
	}
	defer zeroBytes(plaintext)

	return b2sign.SeedFromSlice(plaintext)
}

func (p Params) validate() error {
	if p.Time < 1 {
		return fmt.Errorf("kdf time must be at least 1")
	}
	if p.Threads < 1 {
		return fmt.Errorf("kdf threads must be at least 1")
	}
	if p.MemoryKB < 8*uint32(p.Threads) {
		return fmt.Errorf("kdf memory must be at least %d KiB", 8*uint32(p.Threads))
	}
	if p.Time > maxKDFTime {
		return fmt.Errorf("kdf time %d is above the limit of %d", p.Time, maxKDFTime)
	}
	if p.MemoryKB > maxKDFMemoryKB {
		return fmt.Errorf("kdf memory %d KiB is above the limit of %d KiB", p.MemoryKB, maxKDFMemoryKB)
	}
	return nil
}

// Save writes env to path as JSON, readable only by the owner. The
// file is written next to path and renamed into place, so an existing
// seed file is either fully replaced or left as it was, and never
// keeps a looser mode.
func Save(path string, env *Envelope) error {
	payload, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("Marshal: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("MkdirAll: %w", err)
	}

	// CreateTemp makes the file with mode 0600.
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("CreateTemp: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(append(payload, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("Write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("Sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	if err := os.Chmod(tmp, 0o600); err != nil {
		return fmt.Errorf("Chmod: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("Rename: %w", err)
	}
	return nil
}

func Load(path string) (*Envelope, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ReadFile: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &env, nil
}

// Open loads the envelope at path and decrypts it.
func Open(path string, passphrase []byte) (b2sign.Seed, error) {
	env, err := Load(path)
	if err != nil {
		return b2sign.Seed{}, err
	}
	return Decrypt(env, passphrase)
}
