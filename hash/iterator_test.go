// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hash

import "testing"

func TestIteratorVisitsEveryLiveEntry(t *testing.T) {
	tbl := newTestTable(t, 64)
	const n = 20
	want := map[uint32]bool{}
	for i := 0; i < n; i++ {
		h := uint32(i + 1)
		putTestEntry(tbl, h, uint64(h))
		want[h] = true
	}
	removeTestEntry(tbl, 5)
	delete(want, 5)

	it := tbl.Iterator()
	got := map[uint32]bool{}
	fx := tbl.facade.(*fixedPayload)
	for {
		idx, status := it.Next()
		if status != StatusFound {
			break
		}
		word := tbl.wordAt(idx)
		// Recover the hash from the stored value: putTestEntry stores
		// the hash itself as the value in this test, so this also
		// exercises that the iterator only yields genuinely used slots.
		if !isUsed(word) {
			t.Fatalf("iterator yielded a non-used slot %d", idx)
		}
		got[uint32(fx.get(idx))] = true
	}
	if len(got) != len(want) {
		t.Fatalf("iterator saw %d entries, want %d", len(got), len(want))
	}
	for h := range want {
		if !got[h] {
			t.Fatalf("iterator missed hash value %d", h)
		}
	}
}

func TestIteratorOnEmptyTable(t *testing.T) {
	tbl := newTestTable(t, 16)
	it := tbl.Iterator()
	if _, status := it.Next(); status != StatusNone {
		t.Fatalf("expected StatusNone on an empty table")
	}
}
