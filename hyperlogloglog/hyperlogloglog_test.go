// SPDX-License-Identifier: Apache-2.0

package hyperlogloglog

import (
	"math/rand"
	"testing"

	"github.com/mkarppa/hyperlogloglog/hyperloglog"
)

func checkState(t *testing.T, H *HyperLogLogLog, step string, wantBitSize uint, wantSSize uint, wantB uint64, wantCompress, wantRebase int) {
	t.Helper()
	if got := H.BitSize(); got != wantBitSize {
		t.Errorf("%s: bitSize = %d, want %d", step, got, wantBitSize)
	}
	if got := H.S.Size(); got != wantSSize {
		t.Errorf("%s: |S| = %d, want %d", step, got, wantSSize)
	}
	if H.B != wantB {
		t.Errorf("%s: B = %d, want %d", step, H.B, wantB)
	}
	if H.compressCount != wantCompress {
		t.Errorf("%s: compressCount = %d, want %d", step, H.compressCount, wantCompress)
	}
	if H.rebaseCount != wantRebase {
		t.Errorf("%s: rebaseCount = %d, want %d", step, H.rebaseCount, wantRebase)
	}
}

// S3: HLLL(16, 3, COMPRESS_DEFAULT) under a fixed trace of addJr calls.
func TestSeedScenarioDefaultTrace(t *testing.T) {
	H, err := New(16, 3, CompressDefault)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	H.AddJr(0, 1)
	checkState(t, H, "addJr(0,1)", 48, 0, 0, 1, 0)

	H.AddJr(1, 7)
	checkState(t, H, "addJr(1,7)", 48, 0, 0, 2, 0)

	H.AddJr(2, 8)
	checkState(t, H, "addJr(2,8)", 58, 1, 0, 3, 0)

	H.AddJr(3, 8)
	H.AddJr(2, 9)
	H.AddJr(4, 9)
	H.AddJr(5, 9)
	H.AddJr(6, 9)
	H.AddJr(7, 9)
	H.AddJr(8, 9)
	checkState(t, H, "seven more adds", 118, 7, 0, 10, 0)

	H.AddJr(9, 9)
	checkState(t, H, "addJr(9,9)", 118, 7, 7, 11, 1)

	H.AddJr(10, 9)
	checkState(t, H, "addJr(10,9)", 108, 6, 7, 12, 1)

	for j := uint64(11); j <= 15; j++ {
		H.AddJr(j, 2)
	}
	checkState(t, H, "addJr(11..15,2)", 58, 1, 2, 17, 2)
	if H.lowerBound != 1 {
		t.Errorf("after addJr(11..15,2): lowerBound = %d, want 1", H.lowerBound)
	}

	H.AddJr(0, 2)
	checkState(t, H, "addJr(0,2)", 48, 0, 2, 18, 2)
	if H.lowerBound != 2 {
		t.Errorf("after addJr(0,2): lowerBound = %d, want 2", H.lowerBound)
	}
}

// S4: under COMPRESS_WHEN_APPEND, compressCount only rises when an add
// actually grows the sparse store.
func TestSeedScenarioWhenAppend(t *testing.T) {
	H, err := New(16, 3, CompressWhenAppend)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := uint64(0); i < 8; i++ {
		H.AddJr(i, i)
	}
	if H.compressCount != 0 {
		t.Fatalf("compressCount after first 8 adds = %d, want 0", H.compressCount)
	}
	H.AddJr(8, 9)
	if H.compressCount != 1 {
		t.Fatalf("compressCount after growth add = %d, want 1", H.compressCount)
	}
}

// S5: under COMPRESS_BOTTOM, HLL and HLLL fed the same stream agree
// pointwise, and B tracks the minimum register exactly.
func TestSeedScenarioBottomAgreesWithHLL(t *testing.T) {
	const m = 64
	H, err := New(m, 3, CompressBottom)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := hyperloglog.New(m)
	if err != nil {
		t.Fatalf("hyperloglog.New: %v", err)
	}

	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 10000; i++ {
		x := rnd.Uint64()
		H.AddHash(x)
		h.AddHash(x)
	}

	hllRegs := h.ExportRegisters()
	hlllRegs := H.ExportRegisters()
	for j := 0; j < m; j++ {
		if hlllRegs[j] != hllRegs[j] {
			t.Fatalf("register %d = %d, want %d (HLL)", j, hlllRegs[j], hllRegs[j])
		}
	}

	var want uint64 = 65
	for _, r := range hlllRegs {
		if uint64(r) < want {
			want = uint64(r)
		}
	}
	if H.B != want {
		t.Errorf("B = %d, want min register %d", H.B, want)
	}
}

// S6: merging two independently populated HLLL sketches reproduces a
// reference HLL fed both streams exactly, and achieves the optimal bitSize.
func TestSeedScenarioMergeMatchesReference(t *testing.T) {
	const m = 64
	a, err := New(m, 3, CompressDefault)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(m, 3, CompressDefault)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ref, err := hyperloglog.New(m)
	if err != nil {
		t.Fatalf("hyperloglog.New: %v", err)
	}

	rnd := rand.New(rand.NewSource(123))
	for i := 0; i < 10000; i++ {
		x := rnd.Uint64()
		a.AddHash(x)
		ref.AddHash(x)
	}
	for i := 0; i < 10000; i++ {
		x := rnd.Uint64()
		b.AddHash(x)
		ref.AddHash(x)
	}

	if equalRegisters(a.ExportRegisters(), b.ExportRegisters()) {
		t.Fatalf("a and b have identical register arrays; test is not exercising distinct streams")
	}

	merged, err := a.Merge(b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	refRegs := ref.ExportRegisters()
	mergedRegs := merged.ExportRegisters()
	for j := 0; j < m; j++ {
		if mergedRegs[j] != refRegs[j] {
			t.Fatalf("merged register %d = %d, want %d (reference)", j, mergedRegs[j], refRegs[j])
		}
	}

	want := MinimumBits(refRegs, a.mBits, sBits)
	if got := merged.BitSize(); got != want {
		t.Errorf("merged.BitSize() = %d, want minimumBits() = %d", got, want)
	}
}

func equalRegisters(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// P4: HLLL tracks an uncompressed HLL exactly under every legal flag
// combination.
func TestHLLLEquivalentToHLL(t *testing.T) {
	const m = 64
	policies := []Flags{
		CompressDefault,
		CompressWhenAlways | CompressTypeIncrease,
		CompressWhenAppend | CompressTypeFull,
		CompressWhenAppend | CompressTypeIncrease,
		CompressBottom,
	}
	for _, flags := range policies {
		H, err := New(m, 3, flags)
		if err != nil {
			t.Fatalf("New(flags=%v): %v", flags, err)
		}
		h, err := hyperloglog.New(m)
		if err != nil {
			t.Fatalf("hyperloglog.New: %v", err)
		}
		rnd := rand.New(rand.NewSource(int64(flags) + 1))
		for i := 0; i < 2000; i++ {
			x := rnd.Uint64()
			H.AddHash(x)
			h.AddHash(x)
		}
		hRegs, hlllRegs := h.ExportRegisters(), H.ExportRegisters()
		for j := 0; j < m; j++ {
			if hRegs[j] != hlllRegs[j] {
				t.Fatalf("flags=%v: register %d = %d, want %d", flags, j, hlllRegs[j], hRegs[j])
			}
		}
		if H.Estimate() != h.Estimate() {
			t.Errorf("flags=%v: Estimate() = %f, want %f", flags, H.Estimate(), h.Estimate())
		}
	}
}

// P5: under COMPRESS_DEFAULT (ALWAYS | FULL), bitSize always equals the
// oracle's optimum.
func TestFullCompressionIsOptimal(t *testing.T) {
	const m = 64
	H, err := New(m, 3, CompressDefault)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rnd := rand.New(rand.NewSource(55))
	for i := 0; i < 3000; i++ {
		H.AddHash(rnd.Uint64())
		want := MinimumBits(H.ExportRegisters(), H.mBits, sBits)
		if got := H.BitSize(); got != want {
			t.Fatalf("after %d adds: bitSize = %d, want minimumBits = %d", i+1, got, want)
		}
	}
}

// P6: under COMPRESS_BOTTOM, B always equals the minimum register value.
func TestBottomInvariant(t *testing.T) {
	const m = 64
	H, err := New(m, 3, CompressBottom)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rnd := rand.New(rand.NewSource(17))
	for i := 0; i < 2000; i++ {
		H.AddHash(rnd.Uint64())
		regs := H.ExportRegisters()
		var min uint64 = 65
		for _, r := range regs {
			if uint64(r) < min {
				min = uint64(r)
			}
		}
		if H.B != min {
			t.Fatalf("after %d adds: B = %d, want min register %d", i+1, H.B, min)
		}
	}
}

// P7: every merged register is the pointwise max of the two operands'
// registers.
func TestMergeCorrectness(t *testing.T) {
	const m = 64
	a, _ := New(m, 3, CompressDefault)
	b, _ := New(m, 3, CompressDefault)
	rnd := rand.New(rand.NewSource(88))
	for i := 0; i < 1000; i++ {
		a.AddHash(rnd.Uint64())
	}
	for i := 0; i < 1000; i++ {
		b.AddHash(rnd.Uint64())
	}
	merged, err := a.Merge(b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	for j := uint64(0); j < m; j++ {
		want := a.get(j)
		if bv := b.get(j); bv > want {
			want = bv
		}
		if got := merged.get(j); got != want {
			t.Errorf("merged register %d = %d, want %d", j, got, want)
		}
	}
}

// P8: converting to HyperLogLog and back reproduces the original registers.
func TestInterconversionRoundTrip(t *testing.T) {
	const m = 64
	h, err := hyperloglog.New(m)
	if err != nil {
		t.Fatalf("hyperloglog.New: %v", err)
	}
	rnd := rand.New(rand.NewSource(31))
	for i := 0; i < 1500; i++ {
		h.AddHash(rnd.Uint64())
	}

	H, err := FromHyperLogLog(h, DefaultMBits, CompressDefault)
	if err != nil {
		t.Fatalf("FromHyperLogLog: %v", err)
	}
	back, err := H.ToHyperLogLog()
	if err != nil {
		t.Fatalf("ToHyperLogLog: %v", err)
	}

	want, got := h.ExportRegisters(), back.ExportRegisters()
	for j := range want {
		if want[j] != got[j] {
			t.Fatalf("register %d = %d, want %d", j, got[j], want[j])
		}
	}
}

// P9: any addJr with r <= lowerBound leaves compressCount and rebaseCount
// unchanged, under an ALWAYS policy.
func TestLowerBoundShortCircuit(t *testing.T) {
	H, err := New(16, 3, CompressDefault)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Drive lowerBound above zero first.
	for j := uint64(0); j < 16; j++ {
		H.AddJr(j, 3)
	}
	if H.lowerBound == 0 {
		t.Fatalf("lowerBound still 0 after saturating all registers")
	}

	cc, rc := H.compressCount, H.rebaseCount
	H.AddJr(0, H.lowerBound)
	if H.compressCount != cc || H.rebaseCount != rc {
		t.Errorf("addJr at lowerBound changed counts: compressCount %d->%d, rebaseCount %d->%d",
			cc, H.compressCount, rc, H.rebaseCount)
	}
}

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := New(17, 3, CompressDefault); err != ErrInvalidM {
		t.Fatalf("New(17,...) error = %v, want ErrInvalidM", err)
	}
}

func TestNewRejectsInvalidFlags(t *testing.T) {
	if _, err := New(16, 3, CompressBottom|CompressWhenAlways); err != ErrInvalidFlags {
		t.Fatalf("New with BOTTOM|ALWAYS error = %v, want ErrInvalidFlags", err)
	}
	if _, err := New(16, 3, 0); err != ErrInvalidFlags {
		t.Fatalf("New with flags=0 error = %v, want ErrInvalidFlags", err)
	}
}

func TestFlagsDefaulting(t *testing.T) {
	H, err := New(16, 3, CompressTypeFull)
	if err != nil {
		t.Fatalf("New(TypeFull alone): %v", err)
	}
	if H.flags != CompressDefault {
		t.Errorf("TypeFull alone normalized to %v, want CompressDefault", H.flags)
	}

	H2, err := New(16, 3, CompressWhenAlways)
	if err != nil {
		t.Fatalf("New(WhenAlways alone): %v", err)
	}
	if H2.flags != CompressDefault {
		t.Errorf("WhenAlways alone normalized to %v, want CompressDefault", H2.flags)
	}
}

func TestMergeShapeMismatch(t *testing.T) {
	a, _ := New(16, 3, CompressDefault)
	b, _ := New(32, 3, CompressDefault)
	if _, err := a.Merge(b); err != ErrShapeMismatch {
		t.Fatalf("Merge across differing m error = %v, want ErrShapeMismatch", err)
	}
	c, _ := New(16, 2, CompressDefault)
	if _, err := a.Merge(c); err != ErrShapeMismatch {
		t.Fatalf("Merge across differing mBits error = %v, want ErrShapeMismatch", err)
	}
	d, _ := New(16, 3, CompressBottom)
	if _, err := a.Merge(d); err != ErrShapeMismatch {
		t.Fatalf("Merge across differing flags error = %v, want ErrShapeMismatch", err)
	}
}
