// SPDX-License-Identifier: Apache-2.0

// Package pmap implements a packed map: a sorted, unique-keyed associative
// container whose (key,value) pairs are packed as single elements into a
// pvector.PackedVector, key occupying the high bits of each element.
package pmap

import (
	"errors"

	"github.com/mkarppa/hyperlogloglog/pvector"
)

// NotFound is the sentinel index returned by Find when the key is absent.
const NotFound = -1

// ErrInvalidWidth is returned when keySize+valueSize exceeds pvector.WordBits.
var ErrInvalidWidth = errors.New("pmap: keySize+valueSize must not exceed 64 bits")

// PackedMap is a sorted sequence of (key,value) pairs with unique keys.
type PackedMap struct {
	keySize   uint
	valueSize uint
	keyMask   uint64
	valueMask uint64
	arr       *pvector.PackedVector
}

// New constructs an empty PackedMap whose keys and values are keySize and
// valueSize bits wide, respectively.
func New(keySize, valueSize uint) (*PackedMap, error) {
	arr, err := pvector.New(keySize+valueSize, 0)
	if err != nil {
		return nil, ErrInvalidWidth
	}
	return &PackedMap{
		keySize:   keySize,
		valueSize: valueSize,
		keyMask:   mask(keySize),
		valueMask: mask(valueSize),
		arr:       arr,
	}, nil
}

func mask(size uint) uint64 {
	if size >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << size) - 1
}

// Size returns the number of distinct keys stored.
func (m *PackedMap) Size() uint {
	return m.arr.Size()
}

// BitSize returns the number of bits occupied by the stored pairs.
func (m *PackedMap) BitSize() uint {
	return m.arr.BitSize()
}

// At returns the value of the i-th pair.
func (m *PackedMap) At(i uint) uint64 {
	return m.arr.Get(i) & m.valueMask
}

// KeyAt returns the key of the i-th pair.
func (m *PackedMap) KeyAt(i uint) uint64 {
	return m.arr.Get(i) >> m.valueSize
}

// Find returns the unique index of key, or NotFound if it is absent.
func (m *PackedMap) Find(key uint64) int {
	lo, hi := 0, int(m.Size())-1
	for lo <= hi {
		mid := (lo + hi) / 2
		k := m.KeyAt(uint(mid))
		switch {
		case k < key:
			lo = mid + 1
		case k > key:
			hi = mid - 1
		default:
			return mid
		}
	}
	return NotFound
}

// Add inserts (key,value), or overwrites the existing value if key is
// already present. Insertion preserves ascending key order.
func (m *PackedMap) Add(key, value uint64) {
	kv := m.pack(key, value)
	if i := m.Find(key); i >= 0 {
		m.arr.Set(uint(i), kv)
		return
	}
	m.arr.Append(kv)
	i := int(m.Size()) - 1
	for i > 0 && m.KeyAt(uint(i-1)) > key {
		m.arr.Set(uint(i), m.arr.Get(uint(i-1)))
		i--
	}
	m.arr.Set(uint(i), kv)
}

// Erase removes key, if present. It is a no-op otherwise.
func (m *PackedMap) Erase(key uint64) {
	if i := m.Find(key); i >= 0 {
		m.EraseAt(uint(i))
	}
}

// EraseAt removes the i-th pair.
func (m *PackedMap) EraseAt(i uint) {
	m.arr.Erase(i)
}

func (m *PackedMap) pack(key, value uint64) uint64 {
	return ((key & m.keyMask) << m.valueSize) | (value & m.valueMask)
}
