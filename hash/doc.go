// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

/*
Package hash implements a non-blocking, cache-conscious concurrent hash
table core, parameterised over externally hashed, fixed-size entries.

The core never stores keys or values itself. Every slot in a Table's
backing array is a single packed 64-bit word (see state.go) that plays
two roles at once: it is the head-of-chain pointer for whichever bucket
it is home to, and it may separately hold the body (hash tag, chain
next pointer, lifecycle bits) of one live or logically-removed entry
belonging to some other bucket's chain.

A caller drives the table through six collaborating pieces, built in
dependency order:

  - the state codec (state.go), pure bit-packing with no atomics;
  - the range splitter (splitter.go), a work-stealing integer
    allocator used by cooperative migration;
  - the allocator (alloc.go), a triangular-number probe sequence
    that reserves free slots and triggers a resize past a 15/16 load
    factor;
  - the finder (finder.go), a wait-free read-only cursor over an
    ordered chain;
  - the updater (updater.go), a single-goroutine, non-reentrant cursor
    that inserts, replaces, and removes entries, assisting any
    logical deletion it walks past;
  - the resizer (resize.go), which migrates one generation's entries
    into a larger one in 16-slot batches handed out by a Splitter, so
    any number of goroutines can cooperatively finish a migration
    without contending on a single cursor.

Concrete key/value storage, hashing, and equality are supplied by a
Facade implementation, kept entirely outside this package; the core
only ever deals in 32-bit hashes and integer slot indices.
*/
package hash
