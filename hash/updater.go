// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hash

// Updater is a single-goroutine cursor used to mutate one bucket's
// chain: locating an existing entry, reserving a fresh slot for a new
// one, linking it into the chain in hash-field order, or logically
// removing an entry and helping unlink it. An Updater must not be
// shared across goroutines, and must not be asked for a second
// reservation while a first is still pending link or abandonment. The
// second misuse panics in Alloc rather than silently corrupting the
// chain; sharing an Updater across goroutines is not detected.
type Updater struct {
	t          *Table
	tag        uint32
	bucketHome uint32
	degenerate bool

	prevIsHead bool
	prevIdx    uint32
	curIdx     uint32

	matchPrevIsHead bool
	matchPrevIdx    uint32

	reserved uint32
}

// clearBody returns word with its used/removed/hash/next fields zeroed,
// leaving head (which belongs to this slot's unrelated role as some
// bucket's home index) untouched. It is the common step behind both
// retiring an unlinked node back to free and abandoning an unused
// reservation.
func clearBody(word uint64, b uint32) uint64 {
	return word &^ (usedMask | removedMask | hashFieldMask(b) | nextFieldMask(b))
}

func (t *Table) retire(idx uint32, old uint64) {
	t.slots[idx].CompareAndSwap(old, clearBody(old, t.b))
}

// Next advances the Updater one step through its bucket's chain,
// reporting StatusFound with the matching index when it finds a live
// entry whose hash field equals the target tag, StatusNone once the
// chain is exhausted or a strictly larger hash field proves no match
// can follow, and StatusResize if it encounters a slot frozen for
// migration. While walking it helps finish unlinking any logically
// removed node it passes, so a chain shortens under the first Updater
// to walk past a removal rather than waiting on its original remover.
func (u *Updater) Next() (uint32, Status) {
	if u.degenerate {
		return 0, StatusResize
	}
	t := u.t

restartWalk:
	for {
		var linkWord uint64
		if u.prevIsHead {
			linkWord = t.slots[u.bucketHome].Load()
		} else {
			linkWord = t.slots[u.prevIdx].Load()
		}
		if isResizing(linkWord) {
			return 0, StatusResize
		}
		if u.prevIsHead {
			u.curIdx = stateHead(linkWord)
		} else {
			u.curIdx = stateNext(linkWord, t.b)
		}

		for {
			if endOfChain(u.curIdx) {
				return 0, StatusNone
			}
			word := t.slots[u.curIdx].Load()
			if isResizing(word) {
				return 0, StatusResize
			}
			h := stateHashField(word, t.b)

			if !isUsed(word) {
				if isRemoved(word) {
					nxt := stateNext(word, t.b)
					if u.casLink(linkWord, nxt) {
						t.retire(u.curIdx, word)
						u.curIdx = nxt
						continue
					}
				}
				// Either the slot was never written, or our unlink CAS
				// lost a race with a concurrent change to the same
				// link; either way the safest move is to restart the
				// whole walk from the bucket head.
				u.prevIsHead = true
				u.prevIdx = 0
				continue restartWalk
			}
			if h > u.tag {
				return 0, StatusNone
			}
			if h == u.tag {
				idx := u.curIdx
				u.matchPrevIsHead = u.prevIsHead
				u.matchPrevIdx = u.prevIdx
				u.prevIdx = idx
				u.prevIsHead = false
				u.curIdx = stateNext(word, t.b)
				return idx, StatusFound
			}
			u.prevIdx = u.curIdx
			u.prevIsHead = false
			u.curIdx = stateNext(word, t.b)
		}
	}
}

// casLink CASes the link this Updater is currently positioned behind
// (either the bucket's head field or the previous node's next field)
// from its last-observed value old to newTarget.
func (u *Updater) casLink(old uint64, newTarget uint32) bool {
	t := u.t
	if u.prevIsHead {
		return t.slots[u.bucketHome].CompareAndSwap(old, withHead(old, newTarget))
	}
	return t.slots[u.prevIdx].CompareAndSwap(old, withNext(old, t.b, newTarget))
}

// Alloc reserves a free slot for a new entry, stamping it with this
// Updater's tag and a next pointer of curIdx (the position Next() last
// stopped at, i.e. where the new entry belongs in hash-field order). It
// panics if a previous reservation from this Updater has not yet been
// consumed by Insert or abandoned by Close.
//
// When the cursor is still sitting at the bucket's head (nothing has
// been walked past yet) and the home slot itself is free, the new entry
// is filed directly into the home slot with a single CAS instead of
// delegating to the Allocator: the home slot is about to become both
// the bucket's sole chain entry and, via a later Insert, its own head
// pointer. Otherwise the reservation delegates to the Allocator, probing
// outward from whichever of the home slot or the last-visited node sits
// further into the table; the probe wraps around, so the reserved slot
// may lie at any index, and hash-field order comes from the chain links
// alone.
func (u *Updater) Alloc() (uint32, Status) {
	if u.reserved != 0 {
		panic(ErrReentrantUpdater)
	}
	if u.degenerate {
		return 0, StatusResize
	}
	if u.prevIsHead {
		if idx, status, ok := u.t.allocHome(u.bucketHome, u.tag, u.curIdx); ok {
			if status == StatusFound {
				u.reserved = idx
			}
			return idx, status
		}
	}
	start := u.bucketHome
	if !u.prevIsHead && u.prevIdx > start {
		start = u.prevIdx
	}
	idx, status := u.t.alloc(start, u.tag, u.curIdx)
	if status == StatusFound {
		u.reserved = idx
	}
	return idx, status
}

// Insert links a slot previously reserved by Alloc into the chain at
// the Updater's current position. It panics if there is no pending
// reservation. StatusNone means the link CAS lost a race with a
// concurrent insert or removal; the caller should Restart, walk forward
// with Next again to find the (possibly shifted) correct position, and
// retry Insert — the reservation is preserved across a failed attempt.
func (u *Updater) Insert() Status {
	if u.reserved == 0 {
		panic("hash: Insert called with no pending reservation")
	}
	t := u.t
	var cur uint64
	if u.prevIsHead {
		cur = t.slots[u.bucketHome].Load()
	} else {
		cur = t.slots[u.prevIdx].Load()
	}
	if isResizing(cur) {
		return StatusResize
	}
	// Fail if the chain changed since Next positioned the cursor.
	if u.prevIsHead && stateHead(cur) != u.curIdx ||
		!u.prevIsHead && (!isUsed(cur) || stateNext(cur, t.b) != u.curIdx) {
		return StatusNone
	}
	// Point the reservation at the cursor's current successor.
	for {
		rw := t.slots[u.reserved].Load()
		if isResizing(rw) {
			return StatusResize
		}
		if t.slots[u.reserved].CompareAndSwap(rw, withNext(rw, t.b, chainPointer(u.curIdx))) {
			break
		}
	}
	if u.casLink(cur, u.reserved) {
		u.reserved = 0
		t.counter.insert()
		return StatusFound
	}
	return StatusNone
}

// Remove logically deletes the live entry at idx (previously returned
// by Next with StatusFound) and makes a best-effort attempt to unlink
// it immediately. If that attempt loses a race, the node stays marked
// removed and the next Updater to walk past it finishes the unlink.
func (u *Updater) Remove(idx uint32) Status {
	t := u.t
	old := t.slots[idx].Load()
	if isResizing(old) {
		return StatusResize
	}
	if !isUsed(old) {
		return StatusNone
	}
	newWord := withRemoved(withUsedCleared(old))
	if !t.slots[idx].CompareAndSwap(old, newWord) {
		return StatusNone
	}
	t.counter.remove()
	u.tryUnlink(idx, newWord)
	return StatusFound
}

// tryUnlink attempts to CAS the link that pointed at idx (as of the
// Next() call that found it) to instead point at idx's successor.
func (u *Updater) tryUnlink(idx uint32, removedWord uint64) {
	t := u.t
	next := stateNext(removedWord, t.b)

	var old uint64
	if u.matchPrevIsHead {
		old = t.slots[u.bucketHome].Load()
	} else {
		old = t.slots[u.matchPrevIdx].Load()
	}
	if isResizing(old) {
		return
	}

	var linked uint32
	if u.matchPrevIsHead {
		linked = stateHead(old)
	} else {
		linked = stateNext(old, t.b)
	}
	if linked != idx {
		return // someone already relinked past idx
	}

	var ok bool
	if u.matchPrevIsHead {
		ok = t.slots[u.bucketHome].CompareAndSwap(old, withHead(old, next))
	} else {
		ok = t.slots[u.matchPrevIdx].CompareAndSwap(old, withNext(old, t.b, next))
	}
	if ok {
		t.retire(idx, removedWord)
	}
}

// Replace atomically swaps in the reservation pending from Alloc as the
// new holder of the entry currently at oldIdx (found via a prior Next).
// The reserved slot must already have been allocated with next equal to
// oldIdx's current next field (true automatically when Alloc was called
// right after the Next that produced oldIdx, since curIdx is exactly
// that value). The old slot is marked removed and its next field
// repurposed to forward any reader still holding oldIdx to the new
// index; size is unaffected net (the accumulator records a +1 insert
// and a +1 remove, matching a replace's net-zero effect on live count).
func (u *Updater) Replace(oldIdx uint32) Status {
	if u.reserved == 0 {
		panic("hash: Replace called with no pending reservation")
	}
	t := u.t
	newIdx := u.reserved
	old := t.slots[oldIdx].Load()
	if isResizing(old) {
		return StatusResize
	}
	if !isUsed(old) {
		return StatusNone
	}
	newWord := withNext(withRemoved(withUsedCleared(old)), t.b, newIdx)
	if !t.slots[oldIdx].CompareAndSwap(old, newWord) {
		return StatusNone
	}
	u.reserved = 0
	t.counter.insert()
	t.counter.remove()
	u.tryUnlink(oldIdx, newWord)
	return StatusFound
}

// Close abandons a pending reservation made by Alloc without linking
// it, returning the slot to free. It is a no-op if there is no pending
// reservation. Every exit path that leaves an Updater holding an
// uncommitted reservation must call Close, or the reserved slot leaks
// for the lifetime of the table generation.
func (u *Updater) Close() {
	if u.reserved == 0 {
		return
	}
	t := u.t
	old := t.slots[u.reserved].Load()
	t.slots[u.reserved].CompareAndSwap(old, clearBody(old, t.b))
	u.reserved = 0
}

// Restart rewinds the Updater to its bucket's head, preserving any
// pending reservation, so a failed Insert can be retried after walking
// forward again to find the current correct position.
func (u *Updater) Restart() {
	u.prevIsHead = true
	u.prevIdx = 0
	u.curIdx = 0
}
