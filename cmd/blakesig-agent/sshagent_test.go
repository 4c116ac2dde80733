// SPDX-FileCopyrightText: 2026 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"crypto/ed25519"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"github.com/tillitis/blakesig/b2sign"
	"github.com/tillitis/blakesig/b2ssh"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/time/rate"
)

// startAgent serves a on one end of a pipe and returns a client on
// the other.
func startAgent(t *testing.T, a *SSHAgent) agent.ExtendedAgent {
	t.Helper()
	server, client := net.Pipe()
	go a.handleConn(server)
	t.Cleanup(func() { client.Close() })
	return agent.NewClient(client)
}

func newTestAgent(t *testing.T, indices []uint32, limiter *rate.Limiter) (*SSHAgent, agent.ExtendedAgent) {
	t.Helper()
	pass, _ := countingPassphrase(testPassphrase)
	signer := NewSigner(writeSeedFile(t), indices, 0, pass, nil)
	t.Cleanup(signer.Close)
	a := NewSSHAgent(signer, limiter, nil, nil)
	return a, startAgent(t, a)
}

func TestAgentList(t *testing.T) {
	_, client := newTestAgent(t, []uint32{0, 3}, nil)

	keys, err := client.List()
	require.NoError(t, err)
	require.Len(t, keys, 2)

	seed := testSeed()
	for i, idx := range []uint32{0, 3} {
		require.Equal(t, b2ssh.KeyAlgo, keys[i].Format)
		require.Equal(t, keyComment(idx), keys[i].Comment)

		pub, err := b2ssh.ParsePublicKey(keys[i].Blob)
		require.NoError(t, err)
		want := b2sign.PublicKeyFromSecret(b2sign.DerivePrivateKey(seed, idx))
		require.Equal(t, b2ssh.PublicKey(want), pub)
	}
}

func TestAgentListFailedUnlockIsEmpty(t *testing.T) {
	signer := NewSigner(writeSeedFile(t), []uint32{0}, 0, func() ([]byte, error) {
		return []byte("wrong"), nil
	}, nil)
	a := NewSSHAgent(signer, nil, nil, nil)
	client := startAgent(t, a)

	keys, err := client.List()
	require.NoError(t, err)
	require.Empty(t, keys)
	require.Equal(t, 1.0, testutil.ToFloat64(a.metrics.requests.WithLabelValues("list", "error")))
}

func TestAgentSign(t *testing.T) {
	a, client := newTestAgent(t, []uint32{0, 1}, nil)

	keys, err := client.List()
	require.NoError(t, err)

	data := []byte("user auth request")
	for _, k := range keys {
		sig, err := client.Sign(k, data)
		require.NoError(t, err)

		pub, err := b2ssh.ParsePublicKey(k.Blob)
		require.NoError(t, err)
		require.NoError(t, pub.Verify(data, sig))
	}

	sig, err := client.SignWithFlags(keys[0], data, agent.SignatureFlagRsaSha256)
	require.NoError(t, err)
	require.Equal(t, b2ssh.KeyAlgo, sig.Format)

	require.Equal(t, 3.0, testutil.ToFloat64(a.metrics.requests.WithLabelValues("sign", "ok")))
}

func TestAgentSignUnknownKey(t *testing.T) {
	a, client := newTestAgent(t, []uint32{0}, nil)

	// A key of another type.
	edPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(edPub)
	require.NoError(t, err)
	_, err = client.Sign(sshPub, []byte("x"))
	require.Error(t, err)

	// Right type, not derived by this agent.
	other := b2ssh.PublicKey(b2sign.PublicKeyFromSecret(b2sign.SecretKey{1}))
	_, err = client.Sign(other, []byte("x"))
	require.Error(t, err)

	require.Equal(t, 2.0, testutil.ToFloat64(a.metrics.requests.WithLabelValues("sign", "unknown_key")))
}

func TestAgentSignRateLimit(t *testing.T) {
	// One token that never refills.
	a, client := newTestAgent(t, []uint32{0}, rate.NewLimiter(rate.Limit(1e-9), 1))

	keys, err := client.List()
	require.NoError(t, err)

	_, err = client.Sign(keys[0], []byte("first"))
	require.NoError(t, err)
	_, err = client.Sign(keys[0], []byte("second"))
	require.Error(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(a.metrics.requests.WithLabelValues("sign", "rate_limited")))
}

func TestAgentLockUnlock(t *testing.T) {
	_, client := newTestAgent(t, []uint32{0}, nil)

	keys, err := client.List()
	require.NoError(t, err)
	require.Len(t, keys, 1)

	require.NoError(t, client.Lock([]byte("pw")))

	locked, err := client.List()
	require.NoError(t, err)
	require.Empty(t, locked)
	_, err = client.Sign(keys[0], []byte("x"))
	require.Error(t, err)

	require.Error(t, client.Unlock([]byte("nope")))
	require.NoError(t, client.Unlock([]byte("pw")))

	_, err = client.Sign(keys[0], []byte("x"))
	require.NoError(t, err)
}

func TestAgentUnsupported(t *testing.T) {
	_, client := newTestAgent(t, []uint32{0}, nil)

	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.Error(t, client.Add(agent.AddedKey{PrivateKey: priv}))
	require.Error(t, client.RemoveAll())

	_, err = client.Extension("session-bind@openssh.com", nil)
	require.Error(t, err)
}

func TestMetricsServe(t *testing.T) {
	m := newMetrics()
	m.observe("sign", nil)
	m.observe("sign", ErrRateLimited)

	addr, err := m.serve("127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Contains(t, string(body), `blakesig_agent_requests_total{op="sign",result="ok"} 1`)
	require.Contains(t, string(body), `blakesig_agent_requests_total{op="sign",result="rate_limited"} 1`)
}

func TestMergeConfig(t *testing.T) {
	newFlags := func(opts *options) *pflag.FlagSet {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.StringVar(&opts.seedFile, "seed-file", "", "")
		fs.UintSliceVar(&opts.indices, "index", nil, "")
		fs.DurationVar(&opts.idleLock, "idle-lock", 0, "")
		fs.Float64Var(&opts.signRate, "sign-rate", 0, "")
		fs.IntVar(&opts.signBurst, "sign-burst", 1, "")
		fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "")
		fs.StringVar(&opts.pinentryPath, "pinentry", "", "")
		return fs
	}

	var opts options
	fs := newFlags(&opts)
	require.NoError(t, fs.Parse([]string{"--seed-file", "/s.json", "--index", "1,2", "--idle-lock=0s"}))

	cfg, err := mergeConfig(fs, opts)
	require.NoError(t, err)
	require.Equal(t, "/s.json", cfg.SeedFile)
	require.Equal(t, []uint32{1, 2}, cfg.Indices)
	require.Zero(t, cfg.IdleLock)

	// Flags not given keep the defaults.
	var opts2 options
	fs = newFlags(&opts2)
	require.NoError(t, fs.Parse(nil))
	cfg, err = mergeConfig(fs, opts2)
	require.NoError(t, err)
	require.Equal(t, []uint32{0}, cfg.Indices)
	require.NotZero(t, cfg.IdleLock)

	var opts3 options
	fs = newFlags(&opts3)
	require.NoError(t, fs.Parse([]string{"--index", "5,5"}))
	_, err = mergeConfig(fs, opts3)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "twice"))
}
