// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hash

import "testing"

func TestAllocReservesFreeSlot(t *testing.T) {
	tbl := newTestTable(t, 16)
	idx, status := tbl.alloc(2, 7, 1)
	if status != StatusFound {
		t.Fatalf("alloc: %v", status)
	}
	word := tbl.wordAt(idx)
	if !isUsed(word) {
		t.Fatalf("reserved slot not marked used")
	}
	if got := stateHashField(word, tbl.b); got != 7 {
		t.Fatalf("hash field = %d, want 7", got)
	}
	if got := stateNext(word, tbl.b); got != 1 {
		t.Fatalf("next field = %d, want 1", got)
	}
}

func TestAllocNeverReturnsReservedSentinels(t *testing.T) {
	tbl := newTestTable(t, 16)
	for i := 0; i < int(tbl.capacity()); i++ {
		idx, status := tbl.alloc(0, uint32(i), 1)
		if status != StatusFound {
			break
		}
		if idx < reservedSlots {
			t.Fatalf("alloc returned reserved sentinel index %d", idx)
		}
	}
}

func TestAllocSignalsResizePastLoadFactor(t *testing.T) {
	tbl := newTestTable(t, 16)
	filled := 0
	for {
		_, status := tbl.alloc(0, uint32(filled), 1)
		if status != StatusFound {
			break
		}
		filled++
		if filled > int(tbl.tabSize()) {
			t.Fatalf("allocator never reported StatusResize")
		}
	}
	threshold := int(tbl.tabSize()) * loadFactorNumerator / loadFactorDenominator
	if filled < threshold-1 {
		t.Fatalf("resize signalled too early: filled=%d threshold=%d", filled, threshold)
	}
}

func TestAllocRespectsInstalledResizer(t *testing.T) {
	tbl := newTestTable(t, 16)
	r, err := tbl.Resize(2)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if r == nil {
		t.Fatal("Resize returned nil")
	}
	if _, status := tbl.alloc(2, 1, 1); status != StatusResize {
		t.Fatalf("alloc after Resize: %v, want StatusResize", status)
	}
}
