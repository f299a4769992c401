// SPDX-License-Identifier: Apache-2.0

// Package xhash provides the two hash contracts the estimators are built on:
// Xhash, a distribution-independent 64-bit hash of an item, and Jhash, a
// fixed multiplicative mix used to pick a register index out of a hash.
// Neither function is tied to a particular estimator; they are pure,
// stateless, and safe to share across sketches.
package xhash

import (
	"encoding/binary"
	"math/bits"

	"github.com/cespare/xxhash/v2"
	metro "github.com/dgryski/go-metro"
)

// fibonacciConstant is an odd 64-bit constant close to phi*2^64, used by
// Jhash's multiplicative mix.
const fibonacciConstant = 0x9e3779b97f4a7c15

// Hashable enumerates the item types Xhash accepts.
type Hashable interface {
	string | uint64
}

// Xhash returns a distribution-independent 64-bit hash of item. Strings are
// hashed with xxhash; 64-bit integers are hashed with metrohash over their
// big-endian encoding, giving the two supported types independent hash
// families the way the reference implementation's farmhash::Hash64 and
// farmhash::Fingerprint do.
func Xhash[T Hashable](item T) uint64 {
	switch v := any(item).(type) {
	case string:
		return xxhash.Sum64String(v)
	case uint64:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], v)
		return metro.Hash64(buf[:], 0)
	default:
		panic("xhash: unreachable Hashable case")
	}
}

// Jhash returns the top b bits of a fixed Fibonacci-style multiplicative mix
// of x: (C*x) >> (64-b), where C is an odd 64-bit constant close to phi*2^64.
// b must be in [0,64].
func Jhash(x uint64, b uint) uint64 {
	if b == 0 {
		return 0
	}
	if b >= 64 {
		return fibonacciConstant * x
	}
	return (fibonacciConstant * x) >> (64 - b)
}

// Rho returns one plus the number of leading zero bits in x, i.e. rho(x) in
// the HyperLogLog literature. Its range is [1,65].
func Rho(x uint64) uint64 {
	return uint64(bits.LeadingZeros64(x)) + 1
}
