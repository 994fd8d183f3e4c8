// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hash

import "testing"

func TestUpdaterInsertFindRemove(t *testing.T) {
	tbl := newTestTable(t, 16)
	if st := putTestEntry(tbl, 9, 55); st != StatusFound {
		t.Fatalf("insert: %v", st)
	}
	if v, ok := getTestEntry(tbl, 9); !ok || v != 55 {
		t.Fatalf("get: (%v, %v)", v, ok)
	}
	if st := removeTestEntry(tbl, 9); st != StatusFound {
		t.Fatalf("remove: %v", st)
	}
	if _, ok := getTestEntry(tbl, 9); ok {
		t.Fatalf("entry still visible after remove")
	}
}

func TestUpdaterRemoveIsIdempotent(t *testing.T) {
	tbl := newTestTable(t, 16)
	putTestEntry(tbl, 3, 1)
	if st := removeTestEntry(tbl, 3); st != StatusFound {
		t.Fatalf("first remove: %v", st)
	}
	if st := removeTestEntry(tbl, 3); st != StatusNone {
		t.Fatalf("second remove: %v, want StatusNone", st)
	}
}

func TestUpdaterReplaceIsNetZeroSize(t *testing.T) {
	tbl := newTestTable(t, 16)
	putTestEntry(tbl, 11, 1)
	before := tbl.size()
	putTestEntry(tbl, 11, 2) // same hash: takes the replace path
	if tbl.size() != before {
		t.Fatalf("size changed across a replace: before=%d after=%d", before, tbl.size())
	}
	v, ok := getTestEntry(tbl, 11)
	if !ok || v != 2 {
		t.Fatalf("get after replace: (%v,%v), want (2,true)", v, ok)
	}
}

func TestUpdaterCloseReclaimsAbandonedReservation(t *testing.T) {
	tbl := newTestTable(t, 16)
	u := tbl.Updater(123)
	u.Next()
	idx, status := u.Alloc()
	if status != StatusFound {
		t.Fatalf("alloc: %v", status)
	}
	u.Close()
	if isUsed(tbl.wordAt(idx)) {
		t.Fatalf("slot %d still marked used after Close", idx)
	}
	if !isFree(tbl.wordAt(idx)) {
		t.Fatalf("slot %d not free after Close", idx)
	}
}

func TestUpdaterAllocPanicsOnReentry(t *testing.T) {
	tbl := newTestTable(t, 16)
	u := tbl.Updater(1)
	u.Next()
	if _, status := u.Alloc(); status != StatusFound {
		t.Fatalf("first alloc: %v", status)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on reentrant Alloc")
		}
	}()
	u.Alloc()
}

func TestFinderReloadSeesUpdatesMadeAfterConstruction(t *testing.T) {
	tbl := newTestTable(t, 16)
	f := tbl.Finder(17)
	if _, status := f.Next(); status != StatusNone {
		t.Fatalf("expected StatusNone before insert")
	}
	putTestEntry(tbl, 17, 9)
	f.Reload()
	idx, status := f.Next()
	if status != StatusFound {
		t.Fatalf("expected StatusFound after Reload, got %v", status)
	}
	fx := tbl.facade.(*fixedPayload)
	if fx.get(idx) != 9 {
		t.Fatalf("value = %d, want 9", fx.get(idx))
	}
}

func TestSizeAccumulatorTracksInsertsAndRemoves(t *testing.T) {
	tbl := newTestTable(t, 64)
	for i := 0; i < 10; i++ {
		putTestEntry(tbl, uint32(i+1), uint64(i))
	}
	if tbl.size() != 10 {
		t.Fatalf("size = %d, want 10", tbl.size())
	}
	for i := 0; i < 4; i++ {
		removeTestEntry(tbl, uint32(i+1))
	}
	if tbl.size() != 6 {
		t.Fatalf("size = %d, want 6", tbl.size())
	}
}
