// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package bitvec defines a bit vector used to track
// fixed-size blocks of a larger allocation.
package bitvec

import (
	"math/bits"
)

const nbit = 64

// V is a growable bit vector.
// A set bit denotes a block in use.
type V struct {
	s   []uint64
	rem int
}

// Len returns the number of bits in the vector.
func (v *V) Len() int { return len(v.s) * nbit }

// Rem returns the number of unset bits in the vector.
func (v *V) Rem() int { return v.rem }

// Grow appends at least n unset bits to the vector.
// It returns the value of v.Len prior to growing.
func (v *V) Grow(n int) (index int) {
	index = v.Len()
	if n > 0 {
		w := (n + nbit - 1) / nbit
		v.s = append(v.s, make([]uint64, w)...)
		v.rem += w * nbit
	}
	return
}

// Set sets a given bit.
func (v *V) Set(index int) {
	i, b := index/nbit, uint64(1)<<(index%nbit)
	if v.s[i]&b == 0 {
		v.s[i] |= b
		v.rem--
	}
}

// Unset unsets a given bit.
func (v *V) Unset(index int) {
	i, b := index/nbit, uint64(1)<<(index%nbit)
	if v.s[i]&b != 0 {
		v.s[i] &^= b
		v.rem++
	}
}

// IsSet checks whether a given bit is set.
func (v *V) IsSet(index int) bool {
	return v.s[index/nbit]&(uint64(1)<<(index%nbit)) != 0
}

// SetRange sets every bit in [index, index+n).
func (v *V) SetRange(index, n int) {
	for i := index; i < index+n; i++ {
		v.Set(i)
	}
}

// UnsetRange unsets every bit in [index, index+n).
func (v *V) UnsetRange(index, n int) {
	for i := index; i < index+n; i++ {
		v.Unset(i)
	}
}

// SearchRange locates the first contiguous range of n
// unset bits.
// If ok is true, then the range [index, index+n) can be
// passed to SetRange.
func (v *V) SearchRange(n int) (index int, ok bool) {
	if n < 1 || v.rem < n {
		return
	}
	cnt := 0
	for i, x := range v.s {
		switch x {
		case 0:
			if cnt == 0 {
				index = i * nbit
			}
			cnt += nbit
			if cnt >= n {
				return index, true
			}
			continue
		case ^uint64(0):
			cnt = 0
			continue
		}
		for b := 0; b < nbit; {
			if x&(1<<b) != 0 {
				cnt = 0
				// Skip the run of set bits.
				b += bits.TrailingZeros64(^(x >> b))
				continue
			}
			if cnt == 0 {
				index = i*nbit + b
			}
			// Count the run of unset bits, bounded
			// by the end of the word.
			run := bits.TrailingZeros64(x >> b)
			if run > nbit-b {
				run = nbit - b
			}
			cnt += run
			if cnt >= n {
				return index, true
			}
			b += run
		}
	}
	return 0, false
}

// Clear unsets every bit in the vector.
func (v *V) Clear() {
	clear(v.s)
	v.rem = v.Len()
}
