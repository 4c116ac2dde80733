// Copyright (C) 2022, 2023 - Tillitis AB
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/tillitis/blakesig/b2sign"
	"github.com/tillitis/blakesig/b2ssh"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("signing rate limit exceeded")

type SSHAgent struct {
	signer      *Signer
	limiter     *rate.Limiter // nil means unlimited
	metrics     *metrics
	notify      func(string)
	operationMu sync.Mutex // only handling 1 agent op at a time
}

func NewSSHAgent(signer *Signer, limiter *rate.Limiter, m *metrics, notify func(string)) *SSHAgent {
	if m == nil {
		m = newMetrics()
	}
	if notify == nil {
		notify = func(string) {}
	}
	return &SSHAgent{
		signer:  signer,
		limiter: limiter,
		metrics: m,
		notify:  notify,
	}
}

func (s *SSHAgent) Serve(absSockPath string) error {
	listener, err := nativeListen(absSockPath)
	if err != nil {
		s.notify(fmt.Sprintf("Could not create listener: %s", err))
		return fmt.Errorf("%w", err)
	}
	le.Printf("Listening on %s\n", listener.Addr())

	return s.serveListener(listener)
}

func (s *SSHAgent) serveListener(listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("Accept: %w", err)
		}
		le.Printf("Handling a client connection\n")
		go s.handleConn(conn)
	}
}

func (s *SSHAgent) handleConn(c net.Conn) {
	defer c.Close()
	if err := agent.ServeAgent(s, c); err != nil && !errors.Is(err, io.EOF) {
		le.Printf("Agent client connection ended with error: %s\n", err)
	}
}

// implementing agent.ExtendedAgent below

var ErrNotImplemented = errors.New("not implemented")

func (s *SSHAgent) List() ([]*agent.Key, error) {
	s.operationMu.Lock()
	defer s.operationMu.Unlock()

	keys, err := s.signer.Keys()
	s.metrics.observe("list", err)
	if err != nil {
		// ssh tries the next identity source on an empty list, an
		// error would abort it.
		if !errors.Is(err, ErrLocked) {
			le.Printf("List: unlock failed, returning empty list: %s\n", err)
		}
		return []*agent.Key{}, nil
	}

	list := make([]*agent.Key, 0, len(keys))
	for _, k := range keys {
		pub := b2ssh.PublicKey(k.Public)
		list = append(list, &agent.Key{
			Format:  pub.Type(),
			Blob:    pub.Marshal(),
			Comment: keyComment(k.Index),
		})
	}
	return list, nil
}

func (s *SSHAgent) Sign(key ssh.PublicKey, data []byte) (*ssh.Signature, error) {
	s.operationMu.Lock()
	defer s.operationMu.Unlock()

	sig, err := s.sign(key, data)
	s.metrics.observe("sign", err)
	if err != nil {
		le.Printf("Sign: %s\n", err)
	}
	return sig, err
}

func (s *SSHAgent) sign(key ssh.PublicKey, data []byte) (*ssh.Signature, error) {
	pub, err := b2ssh.ParsePublicKey(key.Marshal())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownKey, err)
	}

	if s.limiter != nil && !s.limiter.Allow() {
		s.notify("Too many signing requests, refusing.")
		return nil, ErrRateLimited
	}

	return s.signer.Sign(b2sign.PublicKey(pub), data)
}

func (s *SSHAgent) SignWithFlags(key ssh.PublicKey, data []byte, _ agent.SignatureFlags) (*ssh.Signature, error) {
	// The flags only pick RSA hash variants.
	return s.Sign(key, data)
}

func (s *SSHAgent) Extension(_ string, _ []byte) ([]byte, error) {
	return nil, agent.ErrExtensionUnsupported
}

func (s *SSHAgent) Add(_ agent.AddedKey) error {
	return ErrNotImplemented
}

func (s *SSHAgent) Remove(_ ssh.PublicKey) error {
	return ErrNotImplemented
}

func (s *SSHAgent) RemoveAll() error {
	return ErrNotImplemented
}

func (s *SSHAgent) Lock(passphrase []byte) error {
	s.operationMu.Lock()
	defer s.operationMu.Unlock()

	err := s.signer.Lock(passphrase)
	s.metrics.observe("lock", err)
	return err
}

func (s *SSHAgent) Unlock(passphrase []byte) error {
	s.operationMu.Lock()
	defer s.operationMu.Unlock()

	err := s.signer.Unlock(passphrase)
	s.metrics.observe("unlock", err)
	return err
}

func (s *SSHAgent) Signers() ([]ssh.Signer, error) {
	return nil, ErrNotImplemented
}
