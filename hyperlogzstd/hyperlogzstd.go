// SPDX-License-Identifier: Apache-2.0

// Package hyperlogzstd implements a zstd-backed HyperLogLog: the dense
// register array is kept zstd-compressed at rest and only briefly
// decompressed into a scratch buffer to service a read or a mutation. It
// trades CPU for the bit budget a plain HyperLogLog's uncompressed register
// array would otherwise consume, without any of HyperLogLogLog's
// dense/sparse bookkeeping — a general compressor is the whole strategy.
package hyperlogzstd

import (
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/mkarppa/hyperlogloglog/hyperloglog"
	"github.com/mkarppa/hyperlogloglog/xhash"
)

// ErrInvalidM is returned when m is not a power of two.
var ErrInvalidM = errors.New("hyperlogzstd: m must be a power of two")

// ErrShapeMismatch is returned by Merge when the two sketches have
// different m.
var ErrShapeMismatch = errors.New("hyperlogzstd: merge requires equal m")

// HyperLogLogZstd is a HyperLogLog whose register array lives compressed.
// Estimate and ExportRegisters decompress into a freshly allocated slice on
// every call and leave the receiver unchanged.
type HyperLogLogZstd struct {
	m          uint
	logM       uint
	compressed []byte
	lowerBound uint64
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder
}

// New constructs an empty HyperLogLogZstd with m registers. m must be a
// power of two.
func New(m uint) (*HyperLogLogZstd, error) {
	if m == 0 || m&(m-1) != 0 {
		return nil, ErrInvalidM
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	H := &HyperLogLogZstd{m: m, logM: log2(m), encoder: enc, decoder: dec}
	H.compress(make([]byte, m))
	return H, nil
}

func log2(m uint) uint {
	l := uint(0)
	for (uint(1) << l) < m {
		l++
	}
	return l
}

// compress replaces the compressed buffer with a fresh encoding of scratch
// and recomputes lowerBound from it.
func (H *HyperLogLogZstd) compress(scratch []byte) {
	H.compressed = H.encoder.EncodeAll(scratch, H.compressed[:0])
	H.lowerBound = 64
	for _, r := range scratch {
		if uint64(r) < H.lowerBound {
			H.lowerBound = uint64(r)
		}
	}
}

// decompress returns the current register array, reconstructed fresh from
// the compressed buffer.
func (H *HyperLogLogZstd) decompress() []byte {
	scratch, err := H.decoder.DecodeAll(H.compressed, make([]byte, 0, H.m))
	if err != nil {
		panic("hyperlogzstd: corrupt internal state: " + err.Error())
	}
	return scratch
}

// BitSize returns the size, in bits, of the compressed register buffer.
func (H *HyperLogLogZstd) BitSize() uint {
	return uint(len(H.compressed)) * 8
}

// Add hashes item with xhash.Xhash and folds it into the sketch. Supported
// item types are string and uint64.
func (H *HyperLogLogZstd) Add(item any) error {
	switch v := item.(type) {
	case string:
		H.AddHash(xhash.Xhash(v))
	case uint64:
		H.AddHash(xhash.Xhash(v))
	default:
		return fmt.Errorf("hyperlogzstd: unsupported item type %T", item)
	}
	return nil
}

// AddHash folds an already-computed 64-bit hash into the sketch.
func (H *HyperLogLogZstd) AddHash(x uint64) {
	H.AddJr(xhash.Jhash(x, H.logM), xhash.Rho(x))
}

// AddJr folds the specific (j,r) pair into the sketch. j must satisfy
// 0 <= j < m and r must satisfy 0 <= r < 64; no checks are made.
func (H *HyperLogLogZstd) AddJr(j, r uint64) {
	if r < H.lowerBound {
		return
	}
	scratch := H.decompress()
	if r > uint64(scratch[j]) {
		scratch[j] = byte(r)
		H.compress(scratch)
	}
}

// ExportRegisters returns a length-m slice containing each register's rank.
func (H *HyperLogLogZstd) ExportRegisters() []byte {
	scratch := H.decompress()
	out := make([]byte, H.m)
	copy(out, scratch[:H.m])
	return out
}

// Estimate returns the current cardinality estimate.
func (H *HyperLogLogZstd) Estimate() float64 {
	scratch := H.decompress()
	var E float64
	var V int
	for _, r := range scratch[:H.m] {
		if r == 0 {
			V++
		}
		E += 1.0 / float64(uint64(1)<<r)
	}
	m := float64(H.m)
	E = hyperloglog.Alpha(H.m) * m * m / E
	switch {
	case E <= 2.5*m && V != 0:
		return m * math.Log(m/float64(V))
	case E <= math.Pow(2, 32)/30:
		return E
	default:
		return -math.Pow(2, 32) * math.Log(1-E/math.Pow(2, 32))
	}
}

// Merge returns a new sketch whose register j is the larger of H's and
// other's register j.
// Both operands must have the same m.
func (H *HyperLogLogZstd) Merge(other *HyperLogLogZstd) (*HyperLogLogZstd, error) {
	if H.m != other.m {
		return nil, ErrShapeMismatch
	}
	out, err := New(H.m)
	if err != nil {
		return nil, err
	}
	a := H.decompress()
	b := other.decompress()
	merged := make([]byte, H.m)
	for j := uint(0); j < H.m; j++ {
		r := a[j]
		if b[j] > r {
			r = b[j]
		}
		merged[j] = r
	}
	out.compress(merged)
	return out, nil
}
