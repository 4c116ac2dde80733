// SPDX-FileCopyrightText: 2026 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package b2hash binds BLAKE2b-512 to the hash interface of package
// eddsa.
//
// A Context is one hash computation. Get one with Init, feed it with
// Update and read it once with Final:
//
//	c := b2hash.Init()
//	c.Update(part1)
//	c.Update(part2)
//	digest := c.Final()
//
// Contexts are never shared. Two computations running at the same
// time, or nested in each other, each use their own.
package b2hash

import (
	"hash"

	"github.com/tillitis/blakesig/eddsa"
	"golang.org/x/crypto/blake2b"
)

// Size is the digest size in bytes. It is fixed at 64 because the
// signature scheme needs a hash twice the key length.
const Size = blake2b.Size

// Context holds a running BLAKE2b-512 computation.
type Context struct {
	h         hash.Hash
	finalized bool
}

// Init returns a new Context ready for Update.
func Init() *Context {
	// New512 only fails for keys longer than 64 bytes.
	h, err := blake2b.New512(nil)
	if err != nil {
		panic("b2hash: " + err.Error())
	}
	return &Context{h: h}
}

// Update adds p to the running computation. Calls are applied in the
// order they are made.
func (c *Context) Update(p []byte) {
	if c.finalized {
		panic("b2hash: Update after Final")
	}
	// hash.Hash.Write never returns an error.
	_, _ = c.h.Write(p)
}

// Final returns the digest. The Context can't be used after this
// unless it is Reset.
func (c *Context) Final() [Size]byte {
	if c.finalized {
		panic("b2hash: Final called twice")
	}
	c.finalized = true

	var out [Size]byte
	c.h.Sum(out[:0])
	return out
}

// Reset makes the Context ready for a new computation.
func (c *Context) Reset() {
	c.h.Reset()
	c.finalized = false
}

// Sum is Init, Update(p) and Final in one call.
func Sum(p []byte) [Size]byte {
	c := Init()
	c.Update(p)
	return c.Final()
}

// Hasher is the eddsa.Hasher backed by BLAKE2b-512.
type Hasher struct{}

var _ eddsa.Hasher = Hasher{}

func (Hasher) Init() eddsa.Digest {
	return Init()
}

func (Hasher) Sum(p []byte) [eddsa.DigestSize]byte {
	return Sum(p)
}
