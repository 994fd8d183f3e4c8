// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package hash implements a non-blocking, cache-conscious concurrent
// hash table core. Entries are addressed by an externally supplied
// 32-bit hash; the table itself stores only the packed state words
// described in state.go; any per-entry payload (key, value) is the
// responsibility of a Facade supplied by the caller.
package hash

import (
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/lfcore/lfhash/logger"
)

const (
	minTableSize = 16
	maxTableSize = 1 << 30

	// reservedSlots is the count of permanently non-free sentinel slots
	// at the front of every table. They are never targets of a chain
	// pointer, so index 0 doubles as "unwritten" and index 1 as
	// "end of chain" for any reader walking next/head fields.
	reservedSlots = 2

	// hashMixer is the fixed multiplicative constant used to spread an
	// externally supplied hash before splitting it into bucket and tag.
	hashMixer = 0x9e3779b9

	// numSizeShards is the width of the sharded insert/remove counter.
	// It is a small power of two: enough to cut contention under heavy
	// concurrent mutation without paying for a full per-P array.
	numSizeShards = 16
)

// Facade lets a caller-defined wrapper type participate in migration and
// in per-index lifecycle events without the core needing to know
// anything about key/value storage. The core never calls these during a
// lookup or insert fast path. The Resizer calls Create to build the next
// generation and Copy, on that new generation's facade, for each entry
// it migrates. New does not call the facade, and nothing in the core
// calls Reset.
type Facade interface {
	// Copy transfers whatever payload lives at oldIndex in oldTable to
	// newIndex in the table currently being built. It must be safe to
	// call concurrently for distinct (oldIndex, newIndex) pairs, and
	// idempotent: the Resizer may call it more than once for the same
	// pair during final-phase convergence.
	Copy(oldTable *Table, oldIndex, newIndex uint32) error

	// Reset clears whatever payload a facade keeps at index, readying
	// it for reuse after the slot has been recycled back to free.
	Reset(index uint32)

	// Create allocates a facade-side payload array sized for a table of
	// newTableSize slots and returns a Table wired to use it.
	Create(newTableSize uint32) *Table
}

// Options configures a Table at construction time.
type Options struct {
	// Logger receives diagnostic events (resize start/finish, stalls).
	// A nil Logger means the table stays silent, matching the core's
	// hot-path convention of never logging on behalf of the caller.
	Logger logger.Logger
}

// sizeShard is one cache-line-padded counter cell. Its word packs two
// independent 32-bit counters: low = inserts, high = removes.
type sizeShard struct {
	word atomic.Uint64
	_    [56]byte
}

func (s *sizeShard) addInsert() { s.word.Add(1) }
func (s *sizeShard) addRemove() { s.word.Add(uint64(1) << 32) }

// sizeCounter is a sharded additive counter for the table's live entry
// count. Individual shards are cheap to bump from any goroutine; reading
// the aggregate requires summing every shard; the Allocator samples it
// only occasionally rather than on every probe, per design.
type sizeCounter struct {
	shards [numSizeShards]sizeShard
}

// shardFor picks a shard using the address of a goroutine-local stack
// variable as a cheap per-goroutine pseudo-random seed. This mirrors the
// classic sharding trick for striped counters: it doesn't need a true
// identity, just a value that's stable for the life of the call and
// varies across concurrent callers enough to spread contention.
func shardFor() int {
	var x byte
	return int(uintptr(unsafe.Pointer(&x))>>4) & (numSizeShards - 1)
}

func (c *sizeCounter) insert() { c.shards[shardFor()].addInsert() }
func (c *sizeCounter) remove() { c.shards[shardFor()].addRemove() }

// snapshot sums every shard's insert and remove counters independently
// (never by adding the raw packed words together, which would let a
// carry out of one shard's low half bleed into the aggregate high half).
func (c *sizeCounter) snapshot() (inserts, removes uint64) {
	for i := range c.shards {
		w := c.shards[i].word.Load()
		inserts += uint64(uint32(w))
		removes += uint64(uint32(w >> 32))
	}
	return inserts, removes
}

// Table is one generation of the concurrent hash table's backing array.
// A Table is never resized in place; growth produces a new Table that
// the Resizer migrates entries into, after which callers swap their
// reference to it.
type Table struct {
	slots   []atomic.Uint64
	b       uint32 // log2(len(slots)); b==0 means this Table is degenerate (no slots)
	counter sizeCounter
	facade  Facade
	log     logger.Logger

	resizer atomic.Pointer[Resizer]
}

// New creates the very first generation of a table. An initialSize of 0
// produces a degenerate, zero-slot Table: any insert attempted against
// it reports StatusResize so the caller grows it to the minimum table
// size (16) before proceeding, satisfying the boundary case where a
// brand new table accepts its first write only after a resize.
func New(facade Facade, initialSize uint32, opts Options) (*Table, error) {
	if initialSize == 0 {
		return &Table{facade: facade, log: opts.Logger}, nil
	}
	if initialSize > maxTableSize {
		return nil, ErrCapacityExceeded
	}
	size := roundUpSize(initialSize)
	t := newTableOfSize(size)
	t.facade = facade
	t.log = opts.Logger
	return t, nil
}

func roundUpSize(n uint32) uint32 {
	if n < minTableSize {
		n = minTableSize
	}
	if n > maxTableSize {
		n = maxTableSize
	}
	size := uint32(1) << uint(bits.Len32(n-1))
	if size < minTableSize {
		size = minTableSize
	}
	return size
}

func newTableOfSize(size uint32) *Table {
	t := &Table{
		slots: make([]atomic.Uint64, size),
		b:     uint32(bits.TrailingZeros32(size)),
	}
	for i := 0; i < reservedSlots; i++ {
		t.slots[i].Store(withRemoved(0))
	}
	return t
}

func (t *Table) degenerate() bool { return t.b == 0 && len(t.slots) == 0 }

// tabSize returns the raw slot count of this generation, a power of two
// (or 0 for a degenerate table).
func (t *Table) tabSize() uint32 {
	if t.degenerate() {
		return 0
	}
	return uint32(len(t.slots))
}

// capacity returns the number of slots usable for entries: the raw slot
// count minus the two permanently reserved sentinels.
func (t *Table) capacity() uint32 {
	s := t.tabSize()
	if s < reservedSlots {
		return 0
	}
	return s - reservedSlots
}

// size returns the table's current best-effort live entry count.
func (t *Table) size() int64 {
	ins, rem := t.counter.snapshot()
	return int64(ins) - int64(rem)
}

// mix splits an external hash into a bucket index and a hash (tag)
// field. The 32-bit mixed hash's top b bits select the bucket; the next
// (31-b) bits become the tag stored in a slot's hash field. Exactly one
// bit of the mixed hash's entropy (the least significant) goes unused,
// since b + (31-b) == 31 < 32 by construction of the 64-bit slot word's
// bit budget (head/used/resizing/removed alone already consume 33
// bits).
func (t *Table) mix(hash uint32) (bucket uint32, tag uint32) {
	mixed := hash * hashMixer
	b := t.b
	bucket = mixed >> (32 - b)
	tag = (mixed << b) >> (b + 1)
	return bucket, tag
}

// Finder returns a cursor for walking the chain of entries whose tag
// matches hash, starting from the bucket it maps to in this generation.
func (t *Table) Finder(hash uint32) *Finder {
	if t.degenerate() {
		return &Finder{t: t, done: true}
	}
	bucket, tag := t.mix(hash)
	return &Finder{t: t, tag: tag, bucket: bucket, cur: bucket, atHead: true}
}

// Updater returns a cursor positioned at the bucket hash maps to, ready
// to walk, allocate into, or logically remove from that bucket's chain.
func (t *Table) Updater(hash uint32) *Updater {
	if t.degenerate() {
		return &Updater{t: t, degenerate: true}
	}
	bucket, tag := t.mix(hash)
	return &Updater{t: t, tag: tag, bucketHome: bucket, prevIsHead: true}
}

// ActiveResizer returns the in-flight migration for this generation, if
// any. Callers use this to decide whether they must help migrate before
// retrying an operation that reported StatusResize.
func (t *Table) ActiveResizer() *Resizer {
	return t.resizer.Load()
}

// Resize installs (or returns the already-installed) migration for this
// generation, growing into a table up to resizeGrowthFactor times
// larger (clamped to maxTableSize). concurrency bounds how many
// dedicated range slots the returned Resizer's Splitter hands out to
// cooperating callers of Resizer.Help. Every caller that observes
// StatusResize from an Updater or alloc should call Resize and
// then Help before retrying its operation against the new generation.
// Resize returns ErrCapacityExceeded, without installing anything, if
// this generation is already at maxTableSize: there is no larger
// generation to migrate into.
func (t *Table) Resize(concurrency int) (*Resizer, error) {
	if r := t.resizer.Load(); r != nil {
		return r, nil
	}
	return beginResize(t, concurrency)
}

// installResizer publishes r as this generation's migration, returning
// false if one was already installed by a racing caller.
func (t *Table) installResizer(r *Resizer) bool {
	return t.resizer.CompareAndSwap(nil, r)
}

// wordAt exposes a raw slot read for the package's own tests.
func (t *Table) wordAt(idx uint32) uint64 {
	return t.slots[idx].Load()
}

// Facade returns the Facade this generation was built with. A Facade's
// own Copy implementation uses this to reach into an older generation
// it was not itself attached to, the same way fixedPayload's test
// double resolves oldTable.facade in hash's own tests.
func (t *Table) Facade() Facade {
	return t.facade
}

// Capacity exposes capacity for package-external callers that want to
// report or alarm on a generation's usable slot count without reaching
// into the package's internals.
func (t *Table) Capacity() uint32 {
	return t.capacity()
}

// Size exposes size for package-external callers; see size's own
// comment on what "best-effort" means here.
func (t *Table) Size() int64 {
	return t.size()
}
