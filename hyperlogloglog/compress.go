// SPDX-License-Identifier: Apache-2.0

package hyperlogloglog

// compress dispatches to the configured compression strategy and counts the
// call, regardless of whether a rebase actually happens.
func (H *HyperLogLogLog) compress() {
	switch {
	case H.flags&CompressTypeFull != 0:
		H.compressFull()
	case H.flags&CompressTypeIncrease != 0:
		H.compressIncrease()
	case H.flags == CompressBottom:
		H.compressBottom()
	}
	H.compressCount++
}

// compressFull searches every candidate base present among the registers
// for the one leaving the fewest registers in the sparse store, and rebases
// to it if that improves on the current base. Candidates are visited in
// ascending order; the next candidate is always the smallest reconstructed
// rank strictly greater than the current one, so the loop early-exits once
// the lower-bound count of out-of-range registers below it already reaches
// the best count found so far.
func (H *HyperLogLogLog) compressFull() {
	bestNs := H.S.Size()
	bestPotentialBase := H.B

	ceiling := uint64(1) << sBits
	potentialBase := ceiling
	nextPotentialBase := potentialBase

	H.iterate(func(_, r uint64) {
		if r < potentialBase {
			nextPotentialBase = potentialBase
			potentialBase = r
		} else if r < nextPotentialBase {
			nextPotentialBase = r
		}
	})
	H.lowerBound = potentialBase

	var nBelowB uint
	for nBelowB < bestNs && potentialBase < ceiling {
		nextPotentialBase = ceiling
		var ns uint
		H.iterate(func(_, r uint64) {
			if r < potentialBase || r > potentialBase+H.maxOffset {
				ns++
			}
			if r == potentialBase {
				nBelowB++
			}
			if r > potentialBase && r < nextPotentialBase {
				nextPotentialBase = r
			}
		})

		if ns < bestNs {
			bestNs = ns
			bestPotentialBase = potentialBase
		}

		potentialBase = nextPotentialBase
	}

	if bestPotentialBase != H.B {
		H.rebase(bestPotentialBase)
	}
}

// compressIncrease only considers raising the base to the smallest
// reconstructed rank strictly above the current base, and commits to it
// only if doing so would shrink the sparse store.
func (H *HyperLogLogLog) compressIncrease() {
	ceiling := uint64(1) << sBits
	potentialBase := ceiling
	H.lowerBound = ceiling

	H.iterate(func(_, r uint64) {
		if H.B < r && r < potentialBase {
			potentialBase = r
		}
		if r < H.lowerBound {
			H.lowerBound = r
		}
	})

	var ns uint
	H.iterate(func(_, r uint64) {
		if r < potentialBase || r > potentialBase+H.maxOffset {
			ns++
		}
	})

	if ns < H.S.Size() {
		H.rebase(potentialBase)
	}
}

// compressBottom maintains the invariant that the base always equals the
// minimum register value, rebasing whenever that minimum has risen above
// the current base.
func (H *HyperLogLogLog) compressBottom() {
	ceiling := uint64(1) << sBits
	H.lowerBound = ceiling
	H.iterate(func(_, r uint64) {
		if r < H.lowerBound {
			H.lowerBound = r
		}
	})

	H.minValueCount = 0
	H.iterate(func(_, r uint64) {
		if r == H.lowerBound {
			H.minValueCount++
		}
	})

	if H.lowerBound > H.B {
		H.rebase(H.lowerBound)
	}
}

// rebase moves every register onto a new base, reclassifying each between
// the dense and sparse stores as needed, and counts the call.
func (H *HyperLogLogLog) rebase(newB uint64) {
	for i := uint64(0); i < uint64(H.m); i++ {
		idx := H.S.Find(i)
		var r uint64
		if idx >= 0 {
			r = H.S.At(uint(idx))
		} else {
			r = H.M.Get(uint(i)) + H.B
		}
		if newB <= r && r <= newB+H.maxOffset {
			H.M.Set(uint(i), r-newB)
			if idx >= 0 {
				H.S.EraseAt(uint(idx))
			}
		} else {
			H.S.Add(i, r)
		}
	}
	H.B = newB
	H.rebaseCount++
}
