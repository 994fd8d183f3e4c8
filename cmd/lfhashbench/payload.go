// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package main

import (
	"sync/atomic"

	"github.com/lfcore/lfhash/hash"
)

// reservedSlots mirrors hash's own sentinel slot count. It is not
// exported by hash because ordinary callers never index a Table
// directly; a Facade implementation is the one exception that needs to
// translate a Table slot index into its own payload array's offset.
const reservedSlots = 2

// valuePayload is a Facade storing one uint64 per slot, a side array
// indexed in lockstep with a Table's own slots. It stands in for the
// key/value storage a real caller would keep; the driver only ever
// stores and compares the synthetic key it generated the hash from, so
// a single uint64 is enough to detect a wrong or missing value.
type valuePayload struct {
	values []atomic.Uint64
}

func newValuePayload(tabSize uint32) *valuePayload {
	n := uint32(0)
	if tabSize > reservedSlots {
		n = tabSize - reservedSlots
	}
	return &valuePayload{values: make([]atomic.Uint64, n)}
}

func (p *valuePayload) set(index uint32, v uint64) {
	p.values[index-reservedSlots].Store(v)
}

func (p *valuePayload) get(index uint32) uint64 {
	return p.values[index-reservedSlots].Load()
}

func (p *valuePayload) Copy(oldTable *hash.Table, oldIndex, newIndex uint32) error {
	old := oldTable.Facade().(*valuePayload)
	p.set(newIndex, old.get(oldIndex))
	return nil
}

func (p *valuePayload) Reset(index uint32) {
	p.values[index-reservedSlots].Store(0)
}

func (p *valuePayload) Create(newTableSize uint32) *hash.Table {
	nt, err := hash.New(newValuePayload(newTableSize), newTableSize, hash.Options{})
	if err != nil {
		// beginResize already clamps newTableSize to maxTableSize before
		// calling Create, so New rejecting it here would mean the
		// Resizer's own growth arithmetic regressed; panic loudly rather
		// than silently dropping a migration.
		panic(err)
	}
	return nt
}
