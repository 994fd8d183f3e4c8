// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hash

import (
	"sync"
	"testing"
)

func TestResizeMigratesAllLiveEntries(t *testing.T) {
	tbl := newTestTable(t, 16)
	const n = 12
	for i := 0; i < n; i++ {
		putTestEntry(tbl, uint32(i+1), uint64(i*10))
	}
	r, err := tbl.Resize(4)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if err := r.Help(0); err != nil {
		t.Fatalf("Help: %v", err)
	}
	if !r.Done() {
		t.Fatalf("expected migration to be Done after single-goroutine Help")
	}
	nt := r.NewTable()
	if nt.tabSize() <= tbl.tabSize() {
		t.Fatalf("new table not larger: old=%d new=%d", tbl.tabSize(), nt.tabSize())
	}
	for i := 0; i < n; i++ {
		v, ok := getTestEntry(nt, uint32(i+1))
		if !ok || v != uint64(i*10) {
			t.Fatalf("hash %d: got (%v,%v), want (%d,true)", i+1, v, ok, i*10)
		}
	}
	if nt.size() != int64(n) {
		t.Fatalf("new table size = %d, want %d", nt.size(), n)
	}
}

func TestResizeDropsRemovedEntries(t *testing.T) {
	tbl := newTestTable(t, 16)
	putTestEntry(tbl, 1, 100)
	putTestEntry(tbl, 2, 200)
	removeTestEntry(tbl, 1)

	r, err := tbl.Resize(2)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	r.Help(0)
	nt := r.NewTable()

	if _, ok := getTestEntry(nt, 1); ok {
		t.Fatalf("removed entry resurrected by migration")
	}
	if v, ok := getTestEntry(nt, 2); !ok || v != 200 {
		t.Fatalf("surviving entry missing or wrong: (%v,%v)", v, ok)
	}
}

func TestResizeConcurrentHelpers(t *testing.T) {
	tbl := newTestTable(t, 1024)
	const n = 300
	for i := 0; i < n; i++ {
		putTestEntry(tbl, uint32(i+1), uint64(i))
	}
	r, err := tbl.Resize(8)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for o := 0; o < 8; o++ {
		o := o
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[o] = r.Help(o)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("Help: %v", err)
		}
	}
	if !r.Done() {
		t.Fatalf("expected Done after all helpers finished")
	}
	nt := r.NewTable()
	for i := 0; i < n; i++ {
		if _, ok := getTestEntry(nt, uint32(i+1)); !ok {
			t.Fatalf("hash %d missing after concurrent migration", i+1)
		}
	}
}

func TestResizeSecondInstallIsNoOp(t *testing.T) {
	tbl := newTestTable(t, 16)
	r1, err := tbl.Resize(2)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	r2, err := tbl.Resize(2)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("expected the same Resizer to be returned once installed")
	}
}

func TestNextGrowthSizeReportsCapacityExceededAtMax(t *testing.T) {
	if _, err := nextGrowthSize(maxTableSize); err != ErrCapacityExceeded {
		t.Fatalf("nextGrowthSize(maxTableSize) = %v, want ErrCapacityExceeded", err)
	}
	got, err := nextGrowthSize(minTableSize)
	if err != nil {
		t.Fatalf("nextGrowthSize(minTableSize): %v", err)
	}
	if want := uint32(minTableSize * resizeGrowthFactor); got != want {
		t.Fatalf("nextGrowthSize(minTableSize) = %d, want %d", got, want)
	}
}
