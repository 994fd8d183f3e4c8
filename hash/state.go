// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hash

// This file packs the per-slot 64-bit state word used by the table's
// backing array. A slot plays two roles at once: it is the head-of-chain
// pointer for the bucket whose home index it is, and it is (possibly) the
// body of a live or logically-removed entry belonging to some other
// bucket's chain. The two roles live in disjoint bit ranges of the same
// word so either can be read or CASed without disturbing the other.
//
// Layout (bit 63 is the MSB):
//
//	63..34  head      (30 bits)  index of the bucket's first chain entry
//	33      used      (1 bit)    slot currently holds a live entry body
//	32      resizing  (1 bit)    slot frozen for migration
//	31      removed   (1 bit)    slot was once a live entry body
//	30..b   hash      (31-b bits) high bits of the mixed hash not used for bucket
//	b-1..0  next      (b bits)   next entry in the chain, or 0/1 for "no entry yet"/"end"
//
// head/used/resizing/removed occupy fixed bit positions regardless of
// table size. hash and next split the remaining 31 bits according to b
// (log2 of the table size), so their masks are parameterised on b.

const (
	headShift = 34
	headBits  = 30
	headMask  = (uint64(1)<<headBits - 1) << headShift

	usedBit     = 33
	resizingBit = 32
	removedBit  = 31

	usedMask     = uint64(1) << usedBit
	resizingMask = uint64(1) << resizingBit
	removedMask  = uint64(1) << removedBit
)

// stateHead returns the bucket-head field: the index of the first entry
// of the chain whose home slot is this one, or 0/1 if the chain is empty.
func stateHead(word uint64) uint32 {
	return uint32((word & headMask) >> headShift)
}

// withHead returns word with its head field replaced by idx, leaving
// used/resizing/removed/hash/next untouched.
func withHead(word uint64, idx uint32) uint64 {
	return (word &^ headMask) | (uint64(idx) << headShift)
}

func isUsed(word uint64) bool     { return word&usedMask != 0 }
func isResizing(word uint64) bool { return word&resizingMask != 0 }
func isRemoved(word uint64) bool  { return word&removedMask != 0 }

func withUsed(word uint64) uint64      { return word | usedMask }
func withUsedCleared(word uint64) uint64 { return word &^ usedMask }
func withResizing(word uint64) uint64  { return word | resizingMask }
func withRemoved(word uint64) uint64   { return word | removedMask }

// hashFieldMask returns the mask selecting the hash (tag) field for a
// table whose bucket-index width is b bits. Its width is 31-b bits,
// occupying bits [b, 30].
func hashFieldMask(b uint32) uint64 {
	return (uint64(1)<<(31-b) - 1) << b
}

// nextFieldMask returns the mask selecting the next field: width b bits,
// occupying bits [0, b).
func nextFieldMask(b uint32) uint64 {
	return uint64(1)<<b - 1
}

func stateHashField(word uint64, b uint32) uint32 {
	return uint32((word & hashFieldMask(b)) >> b)
}

func withHashField(word uint64, b uint32, tag uint32) uint64 {
	return (word &^ hashFieldMask(b)) | (uint64(tag) << b)
}

func stateNext(word uint64, b uint32) uint32 {
	return uint32(word & nextFieldMask(b))
}

func withNext(word uint64, b uint32, idx uint32) uint64 {
	return (word &^ nextFieldMask(b)) | uint64(idx)
}

// isFree reports whether word may be claimed by the Allocator: its body
// is unused, it never held a removed entry, and the bucket it is home to
// (if any) is currently empty. See DESIGN.md for why head==0 is part of
// this conjunction rather than just used==0 && removed==0.
func isFree(word uint64) bool {
	return !isUsed(word) && !isRemoved(word) && stateHead(word) == 0
}

// endOfChain reports whether idx terminates a chain walk: either the
// slot was never written (0) or it was explicitly closed off (1). Real
// entries never live at index 0 or 1 (both are reserved sentinels), so
// callers can treat idx<2 uniformly as "stop" without needing to know
// which of the two zero-ish states produced it.
func endOfChain(idx uint32) bool {
	return idx < 2
}

// chainPointer returns the sentinel-safe encoding of a real chain
// target: real indices are always >= 2, but max(1, idx) guards against
// ever accidentally writing the "unwritten" sentinel 0 for a genuine
// pointer.
func chainPointer(idx uint32) uint32 {
	if idx < 1 {
		return 1
	}
	return idx
}
