// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hash

// loadFactorNumerator/Denominator express the 15/16 occupancy threshold
// past which the Allocator asks its caller to resize rather than keep
// probing an increasingly full table.
const (
	loadFactorNumerator   = 15
	loadFactorDenominator = 16
)

// alloc reserves a free slot to hold a new entry's body for the bucket
// whose home index is startIndex, stamping it with tag and nextIdx in a
// single CAS. It returns the reserved slot's index and StatusFound, or
// StatusResize if the table is too full to keep probing (or a migration
// is already underway) and the caller should grow before retrying. A
// probe that inspects one position per slot without finding a free one
// also reports StatusResize, so the search never loops forever.
func (t *Table) alloc(startIndex uint32, tag uint32, nextIdx uint32) (uint32, Status) {
	if t.resizer.Load() != nil {
		return 0, StatusResize
	}

	size := t.tabSize()
	mask := size - 1

	for attempt := uint32(0); attempt < size; attempt++ {
		pos := (startIndex + 1 + triangularOffset(attempt)) & mask

		word := t.slots[pos].Load()
		if isFree(word) {
			newWord := withNext(withHashField(withUsed(word), t.b, tag), t.b, chainPointer(nextIdx))
			if t.slots[pos].CompareAndSwap(word, newWord) {
				return pos, StatusFound
			}
			// Lost the race for this slot; fall through and keep
			// probing rather than retrying the same position, since
			// whatever won it is now ineligible anyway.
			continue
		}

		if attempt == 0 {
			if status, done := t.checkLoadFactor(size); done {
				return 0, status
			}
		}
	}
	return 0, StatusResize
}

// triangularOffset returns the attempt-th triangular number,
// attempt*(attempt+1)/2, computed directly rather than accumulated step
// by step. For any power-of-two table size, the sequence produced by
// taking triangularOffset(0), triangularOffset(1), ..., triangularOffset(size-1)
// modulo size is a permutation of [0, size): every residue appears
// exactly once. Adding a constant (startIndex+1 in alloc above) shifts
// that permutation without breaking it, so probing in this order visits
// every slot in the table exactly once before alloc gives up.
func triangularOffset(attempt uint32) uint32 {
	a := uint64(attempt)
	return uint32(a * (a + 1) / 2)
}

// allocHome attempts to claim a bucket's own home slot as the body of its
// first chain entry in a single CAS, bypassing the probe sequence
// entirely. ok is false when the home slot is not eligible (already
// holds a body, carries a logically-removed one, or already owns a
// non-empty chain), in which case the caller must fall back to alloc.
func (t *Table) allocHome(home uint32, tag uint32, nextIdx uint32) (uint32, Status, bool) {
	if t.resizer.Load() != nil {
		return 0, StatusResize, true
	}
	word := t.slots[home].Load()
	if !isFree(word) {
		return 0, 0, false
	}
	newWord := withNext(withHashField(withUsed(word), t.b, tag), t.b, chainPointer(nextIdx))
	if t.slots[home].CompareAndSwap(word, newWord) {
		return home, StatusFound, true
	}
	return 0, 0, false
}

// checkLoadFactor samples the size accumulator and reports whether the
// caller should stop probing and resize instead. done is false only
// when occupancy is comfortably below threshold and no migration has
// been installed concurrently.
func (t *Table) checkLoadFactor(size uint32) (Status, bool) {
	if t.resizer.Load() != nil {
		return StatusResize, true
	}
	ins, rem := t.counter.snapshot()
	used := ins - rem
	threshold := uint64(size) * loadFactorNumerator / loadFactorDenominator
	if used >= threshold {
		return StatusResize, true
	}
	return StatusFound, false
}
