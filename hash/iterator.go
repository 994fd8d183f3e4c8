// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hash

// Iterator walks a Table's backing array slot by slot, yielding every
// index currently marked used. It never follows head/next chain
// pointers and never blocks on a concurrent writer; because it is
// racing against live mutation, it is only weakly consistent — it is
// guaranteed to observe some subset of the entries that existed at some
// point between the call to Iterator and the last call to Next, never
// more and never a torn slot word, but makes no promise about entries
// inserted or removed mid-walk.
type Iterator struct {
	t   *Table
	pos uint32
}

// Iterator returns a fresh slot-by-slot cursor over this generation.
func (t *Table) Iterator() *Iterator {
	return &Iterator{t: t, pos: reservedSlots}
}

// Next advances to the next used slot and returns its index, or
// StatusNone once every slot has been visited.
func (it *Iterator) Next() (uint32, Status) {
	t := it.t
	size := t.tabSize()
	for it.pos < size {
		idx := it.pos
		it.pos++
		word := t.slots[idx].Load()
		if isUsed(word) && !isRemoved(word) {
			return idx, StatusFound
		}
	}
	return 0, StatusNone
}
