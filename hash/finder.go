// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hash

// Finder walks the ordered chain of entries whose hash field matches a
// target tag, starting from the bucket a hash maps to. Chains are kept
// sorted ascending by hash field, so a Finder can stop as soon as it
// sees a field greater than its tag instead of walking every remaining
// entry in the bucket. A Finder is read-only: it never mutates a slot,
// and is safe to race against any number of concurrent Updaters.
type Finder struct {
	t      *Table
	tag    uint32
	bucket uint32 // home slot whose head field starts the walk
	cur    uint32 // current candidate slot index
	atHead bool   // true until the bucket's head field has been read once
	done   bool
}

// Next advances the Finder to the next slot whose hash field equals its
// tag and reports StatusFound with that index, or StatusNone once the
// chain is exhausted or a larger hash field proves no more matches can
// follow. It never reports StatusResize: reads never need to fail over
// to the new generation on their own, since a lookup that misses in a
// table mid-migration is simply retried by the caller against whichever
// generation is current once the migration completes.
func (f *Finder) Next() (uint32, Status) {
	if f.done {
		return 0, StatusNone
	}
	t := f.t

	if f.atHead {
		f.atHead = false
		head := stateHead(t.slots[f.cur].Load())
		f.cur = head
	}

	for {
		if endOfChain(f.cur) {
			f.done = true
			return 0, StatusNone
		}
		word := t.slots[f.cur].Load()
		h := stateHashField(word, t.b)

		if h > f.tag {
			f.done = true
			return 0, StatusNone
		}
		if h == f.tag && isUsed(word) {
			idx := f.cur
			f.cur = stateNext(word, t.b)
			return idx, StatusFound
		}
		f.cur = stateNext(word, t.b)
	}
}

// Reload re-reads the bucket's head field, discarding any progress
// already made. Callers use this after handing an index to an Updater
// that may have mutated the chain (an insert or a logical remove), so a
// continued walk sees the chain's current shape rather than a cursor
// built on stale assumptions.
func (f *Finder) Reload() {
	f.cur = f.bucket
	f.atHead = true
	f.done = false
}
