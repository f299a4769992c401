// SPDX-License-Identifier: Apache-2.0

// Package hyperloglog implements the classical HyperLogLog cardinality
// estimator: a dense array of m registers, each holding the maximum rank
// seen among the items hashed to it. It exists in this module primarily as
// the baseline that HyperLogLogLog's estimator, merge, and interconversion
// are defined and tested against.
package hyperloglog

import (
	"errors"
	"fmt"
	"math"

	"github.com/mkarppa/hyperlogloglog/pvector"
	"github.com/mkarppa/hyperlogloglog/xhash"
)

// ErrInvalidM is returned when m is not a power of two.
var ErrInvalidM = errors.New("hyperloglog: m must be a power of two")

// ErrShapeMismatch is returned by Merge when the two sketches have
// different m.
var ErrShapeMismatch = errors.New("hyperloglog: merge requires equal m")

// registerWidth is log2(WordBits), the number of bits needed to store a
// rank in [0,64).
const registerWidth = 6

// HyperLogLog is the baseline dense-register estimator.
type HyperLogLog struct {
	m    uint
	logM uint
	M    *pvector.PackedVector
}

// New constructs an empty HyperLogLog with m registers. m must be a power
// of two.
func New(m uint) (*HyperLogLog, error) {
	if m == 0 || m&(m-1) != 0 {
		return nil, ErrInvalidM
	}
	M, err := pvector.New(registerWidth, m)
	if err != nil {
		return nil, err
	}
	return &HyperLogLog{m: m, logM: log2(m), M: M}, nil
}

func log2(m uint) uint {
	l := uint(0)
	for (uint(1) << l) < m {
		l++
	}
	return l
}

// NumRegisters returns m, the number of registers.
func (h *HyperLogLog) NumRegisters() uint {
	return h.m
}

// BitSize returns the number of bits occupied by the register array.
func (h *HyperLogLog) BitSize() uint {
	return h.M.BitSize()
}

// Add hashes item with xhash.Xhash and folds it into the sketch. Supported
// item types are string and uint64.
func (h *HyperLogLog) Add(item any) error {
	switch v := item.(type) {
	case string:
		h.AddHash(xhash.Xhash(v))
	case uint64:
		h.AddHash(xhash.Xhash(v))
	default:
		return fmt.Errorf("hyperloglog: unsupported item type %T", item)
	}
	return nil
}

// AddHash folds an already-computed 64-bit hash into the sketch.
func (h *HyperLogLog) AddHash(x uint64) {
	h.AddJr(xhash.Jhash(x, h.logM), xhash.Rho(x))
}

// AddJr updates register j with rank r if r is larger than the register's
// current value. j must satisfy 0 <= j < m and r must satisfy 0 <= r < 64;
// no checks are made.
func (h *HyperLogLog) AddJr(j, r uint64) {
	if r0 := h.M.Get(uint(j)); r > r0 {
		h.M.Set(uint(j), r)
	}
}

// ExportRegisters returns a length-m slice containing each register's rank.
func (h *HyperLogLog) ExportRegisters() []byte {
	v := make([]byte, h.m)
	for i := range v {
		v[i] = byte(h.M.Get(uint(i)))
	}
	return v
}

// Estimate returns the current cardinality estimate.
func (h *HyperLogLog) Estimate() float64 {
	var E float64
	var V int
	for j := uint(0); j < h.m; j++ {
		r := h.M.Get(j)
		if r == 0 {
			V++
		}
		E += 1.0 / float64(uint64(1)<<r)
	}
	m := float64(h.m)
	E = Alpha(h.m) * m * m / E
	switch {
	case E <= 2.5*m && V != 0:
		return m * math.Log(m/float64(V))
	case E <= math.Pow(2, 32)/30:
		return E
	default:
		return -math.Pow(2, 32) * math.Log(1-E/math.Pow(2, 32))
	}
}

// Merge returns a new sketch whose register j is max(h.M[j], other.M[j]).
// Both operands must have the same m.
func (h *HyperLogLog) Merge(other *HyperLogLog) (*HyperLogLog, error) {
	if h.m != other.m {
		return nil, ErrShapeMismatch
	}
	out, err := New(h.m)
	if err != nil {
		return nil, err
	}
	for j := uint(0); j < h.m; j++ {
		a, b := h.M.Get(j), other.M.Get(j)
		if b > a {
			a = b
		}
		out.M.Set(j, a)
	}
	return out, nil
}

// Alpha returns the bias-correction constant used in the raw HyperLogLog
// estimator for m registers.
func Alpha(m uint) float64 {
	switch m {
	case 16:
		return 0.673
	case 32:
		return 0.697
	case 64:
		return 0.709
	default:
		fm := float64(m)
		return 0.7213 / (1.0 + 1.079/fm)
	}
}
