// SPDX-License-Identifier: Apache-2.0

package hyperlogloglog

import "github.com/mkarppa/hyperlogloglog/hyperloglog"

// ToHyperLogLog reconstructs every register and folds it into a fresh,
// uncompressed HyperLogLog sketch with the same m.
func (H *HyperLogLogLog) ToHyperLogLog() (*hyperloglog.HyperLogLog, error) {
	h, err := hyperloglog.New(H.m)
	if err != nil {
		return nil, err
	}
	H.iterate(func(j, r uint64) { h.AddJr(j, r) })
	return h, nil
}

// FromHyperLogLog builds a HyperLogLogLog sketch from an existing
// HyperLogLog's registers.
func FromHyperLogLog(h *hyperloglog.HyperLogLog, mBits uint, flags Flags) (*HyperLogLogLog, error) {
	H, err := New(h.NumRegisters(), mBits, flags)
	if err != nil {
		return nil, err
	}
	for j, r := range h.ExportRegisters() {
		H.AddJr(uint64(j), uint64(r))
	}
	return H, nil
}
