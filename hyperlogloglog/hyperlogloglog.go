// SPDX-License-Identifier: Apache-2.0

// Package hyperlogloglog implements HyperLogLogLog, a self-compressing
// HyperLogLog variant. Registers are held as offsets from a shared base B in
// a dense pvector.PackedVector, with any register that cannot be expressed
// as B plus a small offset kept as an exact (index,rank) exception in a
// sparse pmap.PackedMap. Periodic recompression looks for a base that lets
// more registers rejoin the dense store, trading CPU for the bit budget the
// sparse store would otherwise consume.
package hyperlogloglog

import (
	"errors"
	"fmt"
	"math"

	"github.com/mkarppa/hyperlogloglog/hyperloglog"
	"github.com/mkarppa/hyperlogloglog/pmap"
	"github.com/mkarppa/hyperlogloglog/pvector"
	"github.com/mkarppa/hyperlogloglog/xhash"
)

// ErrInvalidM is returned when m is not a power of two.
var ErrInvalidM = errors.New("hyperlogloglog: m must be a power of two")

// ErrShapeMismatch is returned by Merge when the two sketches were not
// constructed with the same m, mBits, sBits, or flags.
var ErrShapeMismatch = errors.New("hyperlogloglog: merge requires equal m, mBits, sBits, and flags")

// sBits is log2(WordBits): the number of bits needed to address a rank in
// [0,64) within the fixed 64-bit word width this module uses throughout.
const sBits = 6

// HyperLogLogLog is the compressing cardinality estimator.
type HyperLogLogLog struct {
	m     uint
	logM  uint
	mBits uint
	flags Flags

	M *pvector.PackedVector
	S *pmap.PackedMap

	lowerBound    uint64
	minValueCount int
	B             uint64
	maxOffset     uint64

	compressCount int
	rebaseCount   int
}

// New constructs an empty HyperLogLogLog with m registers, mBits bits of
// per-register offset (2 or 3 in practice), and the given compression
// policy. m must be a power of two, and flags must normalize (after
// defaulting, see Flags) to either COMPRESS_BOTTOM alone or a combination
// carrying at least one WHEN flag and one TYPE flag.
func New(m uint, mBits uint, flags Flags) (*HyperLogLogLog, error) {
	if m == 0 || m&(m-1) != 0 {
		return nil, ErrInvalidM
	}
	flags, err := normalizeFlags(flags)
	if err != nil {
		return nil, err
	}
	M, err := pvector.New(mBits, m)
	if err != nil {
		return nil, err
	}
	logM := log2(m)
	S, err := pmap.New(logM, sBits)
	if err != nil {
		return nil, err
	}
	return &HyperLogLogLog{
		m:             m,
		logM:          logM,
		mBits:         mBits,
		flags:         flags,
		M:             M,
		S:             S,
		minValueCount: int(m),
		maxOffset:     (uint64(1) << mBits) - 1,
	}, nil
}

// NewDefault constructs a HyperLogLogLog with the conventional mBits=3 and
// CompressDefault policy.
func NewDefault(m uint) (*HyperLogLogLog, error) {
	return New(m, DefaultMBits, CompressDefault)
}

func log2(m uint) uint {
	l := uint(0)
	for (uint(1) << l) < m {
		l++
	}
	return l
}

// Add hashes item with xhash.Xhash and folds it into the sketch. Supported
// item types are string and uint64.
func (H *HyperLogLogLog) Add(item any) error {
	switch v := item.(type) {
	case string:
		H.AddHash(xhash.Xhash(v))
	case uint64:
		H.AddHash(xhash.Xhash(v))
	default:
		return fmt.Errorf("hyperlogloglog: unsupported item type %T", item)
	}
	return nil
}

// AddHash folds an already-computed 64-bit hash into the sketch.
func (H *HyperLogLogLog) AddHash(x uint64) {
	H.AddJr(xhash.Jhash(x, H.logM), xhash.Rho(x))
}

// AddJr folds the specific (j,r) pair into the sketch, possibly triggering
// recompression. j must satisfy 0 <= j < m and r must satisfy 0 <= r < 64;
// no checks are made.
func (H *HyperLogLogLog) AddJr(j, r uint64) {
	if r <= H.lowerBound {
		return
	}

	updated := false
	sizeIncreased := false
	idx := H.S.Find(j)
	var r0 uint64
	if idx >= 0 {
		r0 = H.S.At(uint(idx))
	} else {
		r0 = H.M.Get(uint(j)) + H.B
	}

	if r0 < r {
		if H.B <= r && r <= H.B+H.maxOffset {
			if idx >= 0 {
				H.S.EraseAt(uint(idx))
			}
			H.M.Set(uint(j), r-H.B)
		} else {
			H.S.Add(j, r)
			sizeIncreased = idx < 0
		}
		if r0 == H.lowerBound {
			H.minValueCount--
		}
		updated = true
	}

	if (updated && H.flags&CompressWhenAlways != 0) ||
		(sizeIncreased && H.flags&CompressWhenAppend != 0) ||
		(H.minValueCount == 0 && H.flags == CompressBottom) {
		H.compress()
	}
}

// get returns the current rank of register j, from the sparse store if
// present there, otherwise as base-plus-offset from the dense store.
func (H *HyperLogLogLog) get(j uint64) uint64 {
	if idx := H.S.Find(j); idx >= 0 {
		return H.S.At(uint(idx))
	}
	return H.M.Get(uint(j)) + H.B
}

// iterate calls f(j,r) for every register j in ascending order, merging the
// dense and sparse stores in lock-step.
func (H *HyperLogLogLog) iterate(f func(j, r uint64)) {
	var j uint64
	for i := uint(0); i < H.S.Size(); i++ {
		k := H.S.KeyAt(i)
		for j < k {
			f(j, H.M.Get(uint(j))+H.B)
			j++
		}
		f(j, H.S.At(i))
		j++
	}
	for j < uint64(H.m) {
		f(j, H.M.Get(uint(j))+H.B)
		j++
	}
}

// BitSize returns the total number of bits occupied by the dense and sparse
// stores combined.
func (H *HyperLogLogLog) BitSize() uint {
	return H.M.BitSize() + H.S.BitSize()
}

// ExportRegisters returns a length-m slice containing each register's
// reconstructed rank.
func (H *HyperLogLogLog) ExportRegisters() []byte {
	v := make([]byte, H.m)
	H.iterate(func(j, r uint64) { v[j] = byte(r) })
	return v
}

// Estimate returns the current cardinality estimate, computed exactly as
// HyperLogLog's would be over the reconstructed register values.
func (H *HyperLogLogLog) Estimate() float64 {
	var E float64
	var V int
	H.iterate(func(_, r uint64) {
		if r == 0 {
			V++
		}
		E += 1.0 / float64(uint64(1)<<r)
	})
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

// GetCompressCount returns the number of times the compression routine has
// run.
func (H *HyperLogLogLog) GetCompressCount() int {
	return H.compressCount
}

// GetRebaseCount returns the number of times the base has actually changed.
func (H *HyperLogLogLog) GetRebaseCount() int {
	return H.rebaseCount
}

// DenseStore returns the dense base-plus-offset register store, for
// diagnostics and tests.
func (H *HyperLogLogLog) DenseStore() *pvector.PackedVector {
	return H.M
}

// SparseStore returns the sparse exception store, for diagnostics and
// tests.
func (H *HyperLogLogLog) SparseStore() *pmap.PackedMap {
	return H.S
}

// Base returns the current shared base value B.
func (H *HyperLogLogLog) Base() uint64 {
	return H.B
}

// LowerBound returns the current lower bound on register values.
func (H *HyperLogLogLog) LowerBound() uint64 {
	return H.lowerBound
}
