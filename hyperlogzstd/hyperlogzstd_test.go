// SPDX-License-Identifier: Apache-2.0

package hyperlogzstd

import (
	"math/rand"
	"testing"

	"github.com/mkarppa/hyperlogloglog/hyperloglog"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := New(17); err != ErrInvalidM {
		t.Fatalf("New(17) error = %v, want ErrInvalidM", err)
	}
}

func TestAddJrMonotonic(t *testing.T) {
	const m = 64
	H, err := New(m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	H.AddJr(3, 5)
	H.AddJr(3, 2)
	regs := H.ExportRegisters()
	if regs[3] != 5 {
		t.Errorf("register 3 = %d, want 5 (monotonic max)", regs[3])
	}
}

// Matches HyperLogLog register-for-register when fed the same stream,
// mirroring P4's equivalence property for the compressing variant.
func TestMatchesHyperLogLog(t *testing.T) {
	const m = 64
	H, err := New(m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := hyperloglog.New(m)
	if err != nil {
		t.Fatalf("hyperloglog.New: %v", err)
	}
	rnd := rand.New(rand.NewSource(5))
	for i := 0; i < 2000; i++ {
		x := rnd.Uint64()
		H.AddHash(x)
		h.AddHash(x)
	}
	want, got := h.ExportRegisters(), H.ExportRegisters()
	for j := range want {
		if want[j] != got[j] {
			t.Fatalf("register %d = %d, want %d", j, got[j], want[j])
		}
	}
	if H.Estimate() != h.Estimate() {
		t.Errorf("Estimate() = %f, want %f", H.Estimate(), h.Estimate())
	}
}

func TestMergeIsPointwiseMax(t *testing.T) {
	const m = 32
	a, _ := New(m)
	b, _ := New(m)
	for i := 0; i < 300; i++ {
		a.Add(uint64(i))
	}
	for i := 150; i < 450; i++ {
		b.Add(uint64(i))
	}
	merged, err := a.Merge(b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	aRegs, bRegs, mergedRegs := a.ExportRegisters(), b.ExportRegisters(), merged.ExportRegisters()
	for j := 0; j < m; j++ {
		want := aRegs[j]
		if bRegs[j] > want {
			want = bRegs[j]
		}
		if mergedRegs[j] != want {
			t.Errorf("merged register %d = %d, want %d", j, mergedRegs[j], want)
		}
	}
}

func TestMergeShapeMismatch(t *testing.T) {
	a, _ := New(16)
	b, _ := New(32)
	if _, err := a.Merge(b); err != ErrShapeMismatch {
		t.Fatalf("Merge error = %v, want ErrShapeMismatch", err)
	}
}

func TestAddSupportsStringAndUint64(t *testing.T) {
	H, _ := New(16)
	if err := H.Add("hello"); err != nil {
		t.Errorf("Add(string) error = %v", err)
	}
	if err := H.Add(uint64(1)); err != nil {
		t.Errorf("Add(uint64) error = %v", err)
	}
	if err := H.Add(1.5); err == nil {
		t.Errorf("Add(float64) error = nil, want error")
	}
}

func TestBitSizeIsCompressedLength(t *testing.T) {
	H, _ := New(16)
	if H.BitSize() == 0 {
		t.Fatalf("BitSize() = 0 for a freshly constructed sketch")
	}
	if got, want := H.BitSize(), uint(len(H.compressed))*8; got != want {
		t.Errorf("BitSize() = %d, want %d (8 * compressed length)", got, want)
	}
}
