// SPDX-FileCopyrightText: 2026 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package b2sign

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func fromHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestKnownAnswers(t *testing.T) {
	var seed Seed

	tests := []struct {
		index uint32
		sk    string
		pub   string
	}{
		{0,
			"9f0e444c69f77a49bd0be89db92c38fe713e0963165cca12faf5712d7657120f",
			"c008b814a7d269a1fa3c6528b19201a24d797912db9996ff02a1ff356e45552b"},
		{1,
			"b73b723bf7bd042b66ad3332718ba98de7312f95ed3d05a130c9204552a7afff",
			"e30d22b7935bcc25412fc07427391ab4c98a4ad68baa733300d23d82c9d20ad3"},
		{0xffffffff,
			"7fd49e2bc5fb13add7ca976b0c83f982ea2d9c73c0586f8870cb833f7d18691d",
			"d25bec353e71869b219694ac8562c63b1459316aeec35d7e0755f34b636bbbba"},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("index %d", tc.index), func(t *testing.T) {
			sk := DerivePrivateKey(seed, tc.index)
			require.Equal(t, tc.sk, hex.EncodeToString(sk[:]))
			require.Equal(t, tc.pub, PublicKeyFromSecret(sk).String())
		})
	}

	sk := DerivePrivateKey(seed, 0)
	t.Run("sign abc", func(t *testing.T) {
		sig := Sign([]byte("abc"), sk)
		require.Equal(t, "d6be69a26e8ab6f801afec03e0d08a0fb8aff8e674e6e0aadebc70e2fc305559"+
			"7c40d10f8f168ccb39ea1c47ada17e72564f351fad77ed740ae0c07cc21f290a", sig.String())
	})
	t.Run("sign empty", func(t *testing.T) {
		sig := Sign(nil, sk)
		require.Equal(t, "d4926b86de0ae2b522edb9493c6b291c2a51aa5626bbec4b7c538da4c6d90814"+
			"64afb82543f65b5d41cabeff91a4b4b7277cdb6b30aab22a8797dfc482cee008", sig.String())
	})
	t.Run("other seed", func(t *testing.T) {
		var s Seed
		for i := range s {
			s[i] = byte(i)
		}
		sk := DerivePrivateKey(s, 7)
		require.Equal(t, "07e7111470fe532b40506c7c3275f7a2b0fb6b0bc13fa54030532dd1a0fedbe2",
			hex.EncodeToString(sk[:]))
		require.Equal(t, "a301b5712c91c03bb6a9b2cffabf3a121e75b6063f08458c5bc22582e8c689e4",
			PublicKeyFromSecret(sk).String())
		sig := Sign([]byte("The quick brown fox jumps over the lazy dog"), sk)
		require.Equal(t, "5ab3ae8e59b28c030a1df6b7e77d8beb77155746dc97e8f8223671dbe9fddff7"+
			"f40c63c53e412261b3817183baa14047727b3179069d776f4b8d9370da517d07", sig.String())
	})
}

func TestDerivationDeterministic(t *testing.T) {
	seed := Seed(sha256.Sum256([]byte("determinism")))
	for _, index := range []uint32{0, 1, 2, 1000, 0x7fffffff, 0xffffffff} {
		require.Equal(t, DerivePrivateKey(seed, index), DerivePrivateKey(seed, index))
	}
}

func TestDerivationDomainSeparation(t *testing.T) {
	seed := Seed(sha256.Sum256([]byte("separation")))

	seen := make(map[SecretKey]uint32)
	indices := make([]uint32, 0, 2048)
	for i := uint32(0); i < 1024; i++ {
		indices = append(indices, i, 0xffffffff-i)
	}
	for _, index := range indices {
		sk := DerivePrivateKey(seed, index)
		if prev, ok := seen[sk]; ok {
			t.Fatalf("index %d and %d derive the same key", prev, index)
		}
		seen[sk] = index
	}

	// The index is big-endian: swapping byte order gives another key.
	require.NotEqual(t, DerivePrivateKey(seed, 0x01000000), DerivePrivateKey(seed, 1))
}

func TestDeriveFromSlice(t *testing.T) {
	seed := bytes.Repeat([]byte{0x5a}, SeedSize)

	sk, err := DerivePrivateKeyFromSlice(seed, 3)
	require.NoError(t, err)
	require.Equal(t, DerivePrivateKey(Seed(seed), 3), sk)

	// Only the first 32 bytes of a larger buffer may be used, and
	// only if the caller slices it.
	backing := append(bytes.Repeat([]byte{0x5a}, SeedSize), 0xde, 0xad)
	sk2, err := DerivePrivateKeyFromSlice(backing[:SeedSize], 3)
	require.NoError(t, err)
	require.Equal(t, sk, sk2)

	for _, n := range []int{0, 31, 33, 64} {
		_, err := DerivePrivateKeyFromSlice(make([]byte, n), 0)
		require.ErrorIs(t, err, ErrInvalidLength)

		var lerr *LengthError
		require.True(t, errors.As(err, &lerr))
		require.Equal(t, n, lerr.Got)
		require.Equal(t, SeedSize, lerr.Want)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	seed := Seed(sha256.Sum256([]byte("round trip")))
	messages := [][]byte{
		nil,
		{},
		[]byte("abc"),
		bytes.Repeat([]byte{0xff}, 1000),
	}
	for index := uint32(0); index < 8; index++ {
		sk := DerivePrivateKey(seed, index)
		pub := PublicKeyFromSecret(sk)
		for _, m := range messages {
			sig := Sign(m, sk)
			require.True(t, Verify(m, sig, pub))
			require.Equal(t, sig, Sign(m, sk), "signing must be deterministic")
		}
	}
}

func TestTamperSensitivity(t *testing.T) {
	sk := DerivePrivateKey(Seed{}, 0)
	pub := PublicKeyFromSecret(sk)
	message := []byte("tamper with me")
	sig := Sign(message, sk)

	for i := 0; i < len(message)*8; i++ {
		m := bytes.Clone(message)
		m[i/8] ^= 1 << (i % 8)
		require.False(t, Verify(m, sig, pub), "message bit %d", i)
	}
	for i := 0; i < SignatureSize*8; i++ {
		s := sig
		s[i/8] ^= 1 << (i % 8)
		require.False(t, Verify(message, s, pub), "signature bit %d", i)
	}
	for i := 0; i < PublicKeySize*8; i++ {
		p := pub
		p[i/8] ^= 1 << (i % 8)
		require.False(t, Verify(message, sig, p), "public key bit %d", i)
	}

	require.False(t, Verify(append(bytes.Clone(message), 0), sig, pub))
	require.False(t, Verify(message[:len(message)-1], sig, pub))
}

func TestConcurrentSigning(t *testing.T) {
	const n = 64

	keys := make([]SecretKey, n)
	messages := make([][]byte, n)
	want := make([]Signature, n)
	for i := 0; i < n; i++ {
		keys[i] = DerivePrivateKey(Seed{byte(i)}, uint32(i))
		messages[i] = []byte(fmt.Sprintf("message number %d", i))
		want[i] = Sign(messages[i], keys[i])
	}

	got := make([]Signature, n)
	pubs := make([]PublicKey, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			got[i] = Sign(messages[i], keys[i])
		}(i)
		// Interleave public key derivation, which hashes too.
		go func(i int) {
			defer wg.Done()
			pubs[i] = PublicKeyFromSecret(keys[(i+1)%n])
		}(i)
	}
	wg.Wait()

	require.Equal(t, want, got)
	for i := 0; i < n; i++ {
		require.Equal(t, PublicKeyFromSecret(keys[(i+1)%n]), pubs[i])
	}
}

type byteReader byte

func (b byteReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(b)
	}
	return len(p), nil
}

func TestSignWithRandomness(t *testing.T) {
	sk := DerivePrivateKey(Seed{}, 0)
	pub := PublicKeyFromSecret(sk)
	message := []byte("abc")

	a, err := SignWithRandomness(message, sk, byteReader(1))
	require.NoError(t, err)
	b, err := SignWithRandomness(message, sk, byteReader(2))
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.NotEqual(t, Sign(message, sk), a)
	require.True(t, Verify(message, a, pub))
	require.True(t, Verify(message, b, pub))

	_, err = SignWithRandomness(message, sk, nil)
	require.Error(t, err)
}

func TestVerifySlices(t *testing.T) {
	sk := DerivePrivateKey(Seed{}, 0)
	pub := PublicKeyFromSecret(sk)
	sig := Sign([]byte("abc"), sk)

	ok, err := VerifySlices([]byte("abc"), sig[:], pub[:])
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifySlices([]byte("abd"), sig[:], pub[:])
	require.NoError(t, err)
	require.False(t, ok)

	_, err = VerifySlices([]byte("abc"), sig[:63], pub[:])
	require.ErrorIs(t, err, ErrInvalidLength)

	_, err = VerifySlices([]byte("abc"), sig[:], pub[:31])
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestFromSliceLengths(t *testing.T) {
	_, err := SecretKeyFromSlice(make([]byte, 31))
	require.ErrorIs(t, err, ErrInvalidLength)
	require.EqualError(t, err, "secret key: invalid length 31, want 32")

	_, err = PublicKeyFromSlice(make([]byte, 33))
	require.ErrorIs(t, err, ErrInvalidLength)

	_, err = SignatureFromSlice(make([]byte, 32))
	require.ErrorIs(t, err, ErrInvalidLength)

	sk, err := SecretKeyFromSlice(bytes.Repeat([]byte{9}, SecretKeySize))
	require.NoError(t, err)
	require.Equal(t, SecretKey(bytes.Repeat([]byte{9}, SecretKeySize)), sk)
}

func TestZero(t *testing.T) {
	seed := Seed{1, 2, 3}
	seed.Zero()
	require.Equal(t, Seed{}, seed)

	sk := DerivePrivateKey(Seed{}, 0)
	sk.Zero()
	require.Equal(t, SecretKey{}, sk)
}

func TestPrivateKeySigner(t *testing.T) {
	sk := DerivePrivateKey(Seed{}, 0)
	key := NewPrivateKey(sk)

	var signer crypto.Signer = key
	require.Equal(t, PublicKeyFromSecret(sk), signer.Public())

	sig, err := signer.Sign(nil, []byte("abc"), crypto.Hash(0))
	require.NoError(t, err)
	want := Sign([]byte("abc"), sk)
	require.Equal(t, want[:], sig)

	_, err = signer.Sign(nil, []byte("abc"), crypto.SHA512)
	require.Error(t, err)

	key.Zero()
	_, err = signer.Sign(nil, []byte("abc"), crypto.Hash(0))
	require.Error(t, err)
}
