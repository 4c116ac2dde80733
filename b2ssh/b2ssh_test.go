// SPDX-FileCopyrightText: 2026 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package b2ssh

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tillitis/blakesig/b2sign"
	"golang.org/x/crypto/ssh"
)

func testKey(index uint32) *b2sign.PrivateKey {
	return b2sign.NewPrivateKey(b2sign.DerivePrivateKey(b2sign.Seed{}, index))
}

func TestMarshalParse(t *testing.T) {
	key := testKey(0)
	pub := PublicKey(key.PublicKey())

	parsed, err := ParsePublicKey(pub.Marshal())
	require.NoError(t, err)
	require.Equal(t, pub, parsed)
	require.Equal(t, KeyAlgo, parsed.Type())
}

func TestParseRejects(t *testing.T) {
	stdPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(stdPub)
	require.NoError(t, err)

	_, err = ParsePublicKey(sshPub.Marshal())
	require.ErrorIs(t, err, ErrKeyType)

	short := ssh.Marshal(&struct {
		Name     string
		KeyBytes []byte
	}{KeyAlgo, make([]byte, 31)})
	_, err = ParsePublicKey(short)
	require.ErrorIs(t, err, b2sign.ErrInvalidLength)

	pub := PublicKey(testKey(0).PublicKey())
	_, err = ParsePublicKey(append(pub.Marshal(), 0))
	require.Error(t, err)

	_, err = ParsePublicKey([]byte{0, 0})
	require.Error(t, err)
}

func TestSignerVerify(t *testing.T) {
	s := NewSigner(testKey(1))
	data := []byte("session data")

	sig, err := s.Sign(nil, data)
	require.NoError(t, err)
	require.Equal(t, KeyAlgo, sig.Format)
	require.Len(t, sig.Blob, b2sign.SignatureSize)

	require.NoError(t, s.PublicKey().Verify(data, sig))
	require.Error(t, s.PublicKey().Verify([]byte("other data"), sig))

	other := PublicKey(testKey(2).PublicKey())
	require.Error(t, other.Verify(data, sig))

	wrongFormat := *sig
	wrongFormat.Format = ssh.KeyAlgoED25519
	require.Error(t, s.PublicKey().Verify(data, &wrongFormat))

	truncated := *sig
	truncated.Blob = sig.Blob[:10]
	require.Error(t, s.PublicKey().Verify(data, &truncated))
}

func TestAuthorizedKey(t *testing.T) {
	pub := PublicKey(testKey(0).PublicKey())

	line := MarshalAuthorizedKey(pub, "blakesig/0")
	require.Regexp(t, `^ed25519-blake2b@tillitis\.se [A-Za-z0-9+/=]+ blakesig/0\n$`, string(line))

	parsed, comment, err := ParseAuthorizedKey(line)
	require.NoError(t, err)
	require.Equal(t, pub, parsed)
	require.Equal(t, "blakesig/0", comment)

	bare := MarshalAuthorizedKey(pub, "")
	parsed, comment, err = ParseAuthorizedKey(bare)
	require.NoError(t, err)
	require.Equal(t, pub, parsed)
	require.Empty(t, comment)

	_, _, err = ParseAuthorizedKey([]byte("ssh-ed25519 AAAA"))
	require.ErrorIs(t, err, ErrKeyType)

	_, _, err = ParseAuthorizedKey([]byte(KeyAlgo + " !!!"))
	require.Error(t, err)

	_, _, err = ParseAuthorizedKey([]byte(KeyAlgo))
	require.Error(t, err)
}
