// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hash

import (
	"sync/atomic"
	"time"

	"github.com/lfcore/lfhash/logger"
)

// resizeGrowthFactor is how much larger the next generation is than the
// current one, subject to maxTableSize.
const resizeGrowthFactor = 4

// freezeBatch is how many consecutive old-table bucket home indices a
// single unit of migration work covers. Freezing and walking a run of
// buckets together amortises the Splitter's bookkeeping and keeps a
// migrating goroutine working within one cache line's neighbourhood of
// home slots at a time.
const freezeBatch = 16

// stallTimeout bounds how long, measured from the moment the migration
// started, Resizer.Help will keep taking work before reporting
// ErrTableStalled to let the caller decide whether to log,
// retry, or give up. A stall indicates some migrating goroutine died or
// is parked indefinitely rather than that migration itself is slow.
const stallTimeout = 10 * time.Second

// Resizer drives the cooperative migration of one Table generation into
// the next. Any number of goroutines may call Help concurrently; work
// is handed out range by range through a Splitter so a goroutine that
// finishes its share steals from whichever range is largest rather than
// blocking on a single shared cursor.
type Resizer struct {
	old *Table
	new *Table

	splitter *Splitter
	done     atomic.Bool
	start    time.Time

	log logger.Logger
}

// beginResize installs a Resizer on old if one is not already present,
// and returns it (either the one this call installed, or the one a
// racing caller installed first). p bounds how many cooperating
// goroutines the Splitter should hand out dedicated ranges to.
// beginResize reports ErrCapacityExceeded, installing nothing, if old is
// already at maxTableSize: resizeGrowthFactor has nowhere further to
// grow into, and silently degenerating into a same-size "resize" would
// spin any caller retrying past the load factor forever.
func beginResize(old *Table, p int) (*Resizer, error) {
	size := old.tabSize()
	newSize, err := nextGrowthSize(size)
	if err != nil {
		return nil, err
	}

	var nt *Table
	if old.facade != nil {
		nt = old.facade.Create(newSize)
	} else {
		nt = newTableOfSize(newSize)
	}
	nt.log = old.log

	// Migration units are old bucket home indices, not raw body-slot
	// offsets: every index in [0, size) is a legitimate bucket home (0
	// and 1 included, even though those two can never also double as a
	// body slot), so the full index range is covered batch by batch.
	var batchTo int64
	if size > 0 {
		batchTo = (int64(size) + freezeBatch - 1) / freezeBatch
	}
	r := &Resizer{
		old:      old,
		new:      nt,
		splitter: NewSplitter(0, batchTo, p),
		start:    time.Now(),
		log:      old.log,
	}
	if !old.installResizer(r) {
		return old.ActiveResizer(), nil
	}
	if r.log != nil {
		r.log.Infof("hash: resize started old=%d new=%d", size, newSize)
	}
	return r, nil
}

// nextGrowthSize computes the slot count the next generation should grow
// into given the current generation's size, or reports ErrCapacityExceeded
// if size is already at maxTableSize: resizeGrowthFactor has nowhere left
// to grow into, and silently returning size unchanged would let a caller
// retry an already-full table forever.
func nextGrowthSize(size uint32) (uint32, error) {
	if size == 0 {
		return minTableSize, nil
	}
	if size >= maxTableSize {
		return 0, ErrCapacityExceeded
	}
	newSize := size * resizeGrowthFactor
	if newSize > maxTableSize {
		newSize = maxTableSize
	}
	return newSize, nil
}

// NewTable returns the generation this Resizer is migrating into. It is
// valid to read as soon as the Resizer is installed; entries only
// become visible in it as migration actually copies them.
func (r *Resizer) NewTable() *Table {
	return r.new
}

// Done reports whether every old-table bucket has been migrated.
func (r *Resizer) Done() bool {
	return r.done.Load()
}

// Help drains migration work until there is none left or the stall
// deadline (stallTimeout after the migration started) has passed,
// cooperating with any other goroutine calling Help
// concurrently via the shared Splitter. owner must be a stable index in
// [0, r.Owners()) for the lifetime of a single Help call from a given
// goroutine, so that the goroutine keeps its own range slot across
// calls to Take.
func (r *Resizer) Help(owner int) error {
	if r.done.Load() {
		return nil
	}
	deadline := r.start.Add(stallTimeout)
	oldSize := r.old.tabSize()
	for {
		batch, ok := r.splitter.Take(owner)
		if !ok {
			r.done.Store(true)
			if r.log != nil {
				r.log.Infof("hash: resize finished old=%d new=%d", oldSize, r.new.tabSize())
			}
			return nil
		}
		from := uint32(batch) * freezeBatch
		to := from + freezeBatch
		if to > oldSize {
			to = oldSize
		}
		for idx := from; idx < to; idx++ {
			if err := r.migrateBucket(idx); err != nil {
				return err
			}
		}
		if time.Now().After(deadline) && !r.done.Load() {
			return ErrTableStalled
		}
	}
}

// Owners returns how many dedicated range slots the underlying Splitter
// supports; callers coordinating many goroutines should assign each a
// distinct index in [0, Owners()) to pass to Help.
func (r *Resizer) Owners() int {
	return r.splitter.Owners()
}

// freeze idempotently marks the old-table slot at idx resizing and
// returns the word that results, so any Updater or Allocator that loads
// it afterwards knows to defer to the new generation instead of
// touching it further. It is safe to call more than once for the same
// idx, by any number of concurrent helpers: CAS failures just mean a
// racing writer or another helper got there first, and the loop retries
// against whatever word resulted.
func (r *Resizer) freeze(idx uint32) uint64 {
	slot := &r.old.slots[idx]
	word := slot.Load()
	for !isResizing(word) {
		frozen := withResizing(word)
		if slot.CompareAndSwap(word, frozen) {
			return frozen
		}
		word = slot.Load()
	}
	return word
}

// migrateBucket freezes the home slot of a single old-table bucket and
// walks its chain, copying every live entry into the new generation.
// oldIndex is the true bucket index (and, not incidentally, the array
// index of that bucket's home slot); the bodies making up its chain
// generally live at other indices entirely, since the Allocator placed
// them there by probing away from the home slot, so the walk follows
// head and then next pointers rather than assuming any entry's array
// position says anything about which bucket it belongs to.
func (r *Resizer) migrateBucket(oldIndex uint32) error {
	old := r.old
	headWord := r.freeze(oldIndex)

	cur := stateHead(headWord)
	for !endOfChain(cur) {
		word := headWord
		if cur != oldIndex {
			// A bucket's own home slot may also hold the body of one of
			// its chain entries (the Updater's in-place fast path), and
			// that word is already frozen; every other chain member
			// lives at a distinct index that still needs its own freeze
			// before it is safe to read.
			word = r.freeze(cur)
		}

		if isUsed(word) && !isRemoved(word) {
			bucket, tag := r.targetLocation(oldIndex, word)
			newIdx, status := r.new.allocForMigration(bucket, tag)
			if status == StatusFound {
				if r.new.facade != nil {
					if err := r.new.facade.Copy(old, cur, newIdx); err != nil {
						return err
					}
				}
			}
		}

		cur = stateNext(word, old.b)
	}
	return nil
}

// targetLocation recomputes the bucket and tag an old entry maps to in
// the new, larger generation. The entry's full original hash is not
// stored anywhere in the slot word, so the Resizer reconstructs the
// bits it needs directly: the old bucket index supplies the high bits
// that were consumed selecting among 2^oldB buckets, and the slot's own
// hash field supplies the rest, letting the new generation's wider
// bucket field be computed without ever re-hashing the caller's key.
func (r *Resizer) targetLocation(oldIndex uint32, word uint64) (bucket uint32, tag uint32) {
	oldB := r.old.b
	newB := r.new.b
	oldTag := stateHashField(word, oldB)

	// Reassemble the 31-bit mixed-hash prefix this entry was filed
	// under: oldIndex contributed the top oldB bits, oldTag the next
	// (31-oldB) bits.
	prefix := (oldIndex << (31 - oldB)) | oldTag

	bucket = prefix >> (31 - newB)
	tag = prefix & (uint32(1)<<(31-newB) - 1)
	return bucket, tag
}

// allocForMigration files a migrated entry into the new generation with
// the same ordered walk, reservation and splice an Updater performs, so
// every bucket's chain stays sorted by hash field while it is built.
// Contention comes only from other helpers migrating concurrently; a
// lost splice abandons the reservation and retries from the bucket head.
func (t *Table) allocForMigration(bucket uint32, tag uint32) (uint32, Status) {
	u := &Updater{t: t, tag: tag, bucketHome: bucket, prevIsHead: true}
	for {
		for {
			_, status := u.Next()
			if status == StatusResize {
				return 0, status
			}
			if status == StatusNone {
				break
			}
			// An entry with an equal tag already exists; any relative
			// order among equal tags is valid, so keep walking to the
			// true end of the run before splicing in.
		}
		idx, status := u.Alloc()
		if status != StatusFound {
			return 0, status
		}
		if u.Insert() == StatusFound {
			return idx, StatusFound
		}
		u.Close()
		u.Restart()
	}
}
