// SPDX-License-Identifier: Apache-2.0

package hyperlogloglog

// Merge returns a new sketch whose register j is max(H.get(j), other.get(j))
// for every j, using a three-cursor lock-step walk of the two sparse stores
// so no register needs a map lookup. Both operands must share m, mBits,
// sBits, and flags. The result is compressed once before being returned.
func (H *HyperLogLogLog) Merge(other *HyperLogLogLog) (*HyperLogLogLog, error) {
	if H.m != other.m {
		return nil, ErrShapeMismatch
	}
	if H.mBits != other.mBits {
		return nil, ErrShapeMismatch
	}
	if H.flags != other.flags {
		return nil, ErrShapeMismatch
	}

	out, err := New(H.m, H.mBits, H.flags)
	if err != nil {
		return nil, err
	}
	out.B = H.B
	if other.B > out.B {
		out.B = other.B
	}

	var j uint64
	var i1, i2 uint
	n1, n2 := H.S.Size(), other.S.Size()

	// flush advances j to upto, writing the pointwise max of both dense
	// stores for every register strictly below the next sparse key.
	flush := func(upto uint64) {
		for j < upto {
			r1 := H.M.Get(uint(j)) + H.B
			r2 := other.M.Get(uint(j)) + other.B
			r := r1
			if r2 > r {
				r = r2
			}
			out.M.Set(uint(j), r-out.B)
			j++
		}
	}

	// place writes r at register j into whichever of out's stores it
	// belongs in, then advances j.
	place := func(r uint64) {
		if out.B <= r && r <= out.B+out.maxOffset {
			out.M.Set(uint(j), r-out.B)
		} else {
			out.S.Add(j, r)
		}
		j++
	}

	for i1 < n1 && i2 < n2 {
		k1 := H.S.KeyAt(i1)
		k2 := other.S.KeyAt(i2)
		k := k1
		if k2 < k {
			k = k2
		}
		flush(k)

		var r1, r2 uint64
		if k1 == k {
			r1 = H.S.At(i1)
			i1++
		} else {
			r1 = H.M.Get(uint(j)) + H.B
		}
		if k2 == k {
			r2 = other.S.At(i2)
			i2++
		} else {
			r2 = other.M.Get(uint(j)) + other.B
		}
		r := r1
		if r2 > r {
			r = r2
		}
		place(r)
	}
	for i1 < n1 {
		k := H.S.KeyAt(i1)
		flush(k)
		r1 := H.S.At(i1)
		i1++
		r2 := other.M.Get(uint(j)) + other.B
		r := r1
		if r2 > r {
			r = r2
		}
		place(r)
	}
	for i2 < n2 {
		k := other.S.KeyAt(i2)
		flush(k)
		r2 := other.S.At(i2)
		i2++
		r1 := H.M.Get(uint(j)) + H.B
		r := r1
		if r2 > r {
			r = r2
		}
		place(r)
	}
	flush(uint64(H.m))

	out.compress()
	return out, nil
}
