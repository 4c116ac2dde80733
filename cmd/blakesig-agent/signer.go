// SPDX-FileCopyrightText: 2022 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/tillitis/blakesig/b2hash"
	"github.com/tillitis/blakesig/b2sign"
	"github.com/tillitis/blakesig/b2ssh"
	"github.com/tillitis/blakesig/seedstore"
	"golang.org/x/crypto/ssh"
)

var (
	ErrLocked     = errors.New("agent is locked")
	ErrUnknownKey = errors.New("no such key in this agent")
)

// PassphraseFunc returns the passphrase for the seed file. The caller
// wipes the returned slice.
type PassphraseFunc func() ([]byte, error)

// Key is the public half of one derived account.
type Key struct {
	Index  uint32
	Public b2sign.PublicKey
}

type account struct {
	Key
	priv *b2sign.PrivateKey // nil while the keyring is locked
}

// Signer holds the keys derived from the seed file. Keys are derived
// on first use and wiped again after idleLock without use, so the
// passphrase is asked for again after that. Public keys are kept
// across idle locks so that listing does not prompt.
type Signer struct {
	seedPath   string
	indices    []uint32
	idleLock   time.Duration
	passphrase PassphraseFunc
	notify     func(string)

	mu        sync.Mutex
	accounts  []account
	unlocked  bool
	lockTimer *time.Timer
	lockGen   uint64
	// Set by an agent lock request. Keys stay wiped until the same
	// passphrase is given back.
	agentLock *[b2hash.Size]byte
}

func NewSigner(seedPath string, indices []uint32, idleLock time.Duration, passphrase PassphraseFunc, notify func(string)) *Signer {
	if notify == nil {
		notify = func(string) {}
	}
	return &Signer{
		seedPath:   seedPath,
		indices:    append([]uint32(nil), indices...),
		idleLock:   idleLock,
		passphrase: passphrase,
		notify:     notify,
	}
}

func (s *Signer) unlockLocked() error {
	if s.lockTimer != nil {
		s.lockTimer.Stop()
		s.lockTimer = nil
	}
	s.lockGen++

	if s.agentLock != nil {
		return ErrLocked
	}
	if s.unlocked {
		return nil
	}

	env, err := seedstore.Load(s.seedPath)
	if err != nil {
		s.notify(fmt.Sprintf("Could not read seed file %s.", s.seedPath))
		return fmt.Errorf("Load: %w", err)
	}

	pass, err := s.passphrase()
	if err != nil {
		s.notify(fmt.Sprintf("Could not get passphrase: %s", err))
		return fmt.Errorf("passphrase: %w", err)
	}
	defer clear(pass)

	seed, err := seedstore.Decrypt(env, pass)
	if err != nil {
		if errors.Is(err, seedstore.ErrInvalidPassphrase) {
			s.notify("Wrong passphrase for the seed file.")
		}
		return fmt.Errorf("Decrypt: %w", err)
	}
	defer seed.Zero()

	accounts := make([]account, 0, len(s.indices))
	for _, idx := range s.indices {
		sk := b2sign.DerivePrivateKey(seed, idx)
		priv := b2sign.NewPrivateKey(sk)
		sk.Zero()
		accounts = append(accounts, account{
			Key:  Key{Index: idx, Public: priv.PublicKey()},
			priv: priv,
		})
	}
	s.accounts = accounts
	s.unlocked = true
	le.Printf("Unlocked %d key(s) from %s\n", len(accounts), s.seedPath)

	return nil
}

// releaseLocked arms the idle timer after an operation.
func (s *Signer) releaseLocked() {
	if !s.unlocked || s.idleLock == 0 {
		return
	}
	if s.lockTimer != nil {
		s.lockTimer.Stop()
	}

	gen := s.lockGen
	s.lockTimer = time.AfterFunc(s.idleLock, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		// Superseded by a later operation.
		if gen != s.lockGen {
			return
		}
		s.wipeLocked()
		s.lockTimer = nil
		le.Printf("Idle for %s, wiped keys\n", s.idleLock)
	})
}

func (s *Signer) wipeLocked() {
	for i := range s.accounts {
		if s.accounts[i].priv != nil {
			s.accounts[i].priv.Zero()
			s.accounts[i].priv = nil
		}
	}
	s.unlocked = false
}

// Keys returns the public keys in index order. It only unlocks if the
// public keys have never been derived.
func (s *Signer) Keys() ([]Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.agentLock != nil {
		return nil, ErrLocked
	}
	if len(s.accounts) == 0 {
		if err := s.unlockLocked(); err != nil {
			return nil, err
		}
		defer s.releaseLocked()
	}

	keys := make([]Key, len(s.accounts))
	for i, a := range s.accounts {
		keys[i] = a.Key
	}
	return keys, nil
}

// Sign signs data with the key whose public half is pub.
func (s *Signer) Sign(pub b2sign.PublicKey, data []byte) (*ssh.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.unlockLocked(); err != nil {
		return nil, err
	}
	defer s.releaseLocked()

	for _, a := range s.accounts {
		if a.Public != pub {
			continue
		}
		return b2ssh.NewSigner(a.priv).Sign(nil, data)
	}
	return nil, ErrUnknownKey
}

// Lock wipes the keys and refuses all operations until Unlock is
// called with the same passphrase.
func (s *Signer) Lock(passphrase []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.agentLock != nil {
		return errors.New("agent already locked")
	}
	if s.lockTimer != nil {
		s.lockTimer.Stop()
		s.lockTimer = nil
	}
	s.lockGen++
	s.wipeLocked()

	sum := b2hash.Sum(passphrase)
	s.agentLock = &sum
	le.Printf("Agent locked\n")

	return nil
}

func (s *Signer) Unlock(passphrase []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.agentLock == nil {
		return errors.New("agent not locked")
	}
	sum := b2hash.Sum(passphrase)
	if subtle.ConstantTimeCompare(sum[:], s.agentLock[:]) != 1 {
		return errors.New("incorrect passphrase")
	}
	s.agentLock = nil
	le.Printf("Agent unlocked\n")

	return nil
}

// Close wipes the keys now.
func (s *Signer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lockTimer != nil {
		s.lockTimer.Stop()
		s.lockTimer = nil
	}
	s.lockGen++
	s.wipeLocked()
}

// WriteAuthorizedKeys writes one authorized_keys line per account.
func (s *Signer) WriteAuthorizedKeys(w io.Writer) error {
	keys, err := s.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		line := b2ssh.MarshalAuthorizedKey(b2ssh.PublicKey(k.Public), keyComment(k.Index))
		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("Write: %w", err)
		}
	}
	return nil
}

func keyComment(index uint32) string {
	return fmt.Sprintf("%s/%d", keyCommentPrefix, index)
}

func handleSignals(action func(), sig ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig...)
	go func() {
		for {
			<-ch
			action()
		}
	}()
}
