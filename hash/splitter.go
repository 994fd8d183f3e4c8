// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hash

import "sync/atomic"

// maxRanges bounds how many cooperating migrators a Splitter will track.
// Take accepts only owners in [0, Owners()); callers with more helpers
// than that have them share slots.
const maxRanges = 256

// splitRange is a half-open integer interval [lo, hi). lo==hi means
// empty; there is no separate "valid" flag because the half-open
// encoding already makes emptiness unambiguous regardless of the actual
// values involved.
type splitRange struct {
	lo atomic.Int64
	hi atomic.Int64
	// padding keeps adjacent ranges on separate cache lines so that one
	// goroutine's Take() doesn't false-share with a neighbour's.
	_ [48]byte
}

// Splitter hands out integer work units from [start, end) to up to p
// concurrent owners, bisecting the remaining work on demand so that an
// owner which empties its own range steals half of whichever range is
// currently largest. This is the range-splitting scheme a cooperative
// table migration uses to let every participating goroutine help drain
// the old table's buckets without a shared cursor becoming a bottleneck.
type Splitter struct {
	ranges []splitRange
}

// NewSplitter creates a Splitter over [start, end) with up to p owners.
// p is clamped to [1, maxRanges].
func NewSplitter(start, end int64, p int) *Splitter {
	if p < 1 {
		p = 1
	}
	if p > maxRanges {
		p = maxRanges
	}
	s := &Splitter{ranges: make([]splitRange, p)}
	s.ranges[0].lo.Store(start)
	s.ranges[0].hi.Store(end)
	return s
}

// Owners returns the number of distinct owner slots this Splitter
// supports.
func (s *Splitter) Owners() int {
	return len(s.ranges)
}

// Take returns the next integer work unit for owner (an index in
// [0, Owners())), stealing from another owner's range if its own is
// empty. ok is false only once every range is provably empty and there
// is truly nothing left to steal; in the final-phase convergence (a
// single remaining unit that can no longer be bisected), Take may
// legally return the same value to more than one owner, so callers
// must treat repeated delivery of a unit as a no-op re-drive rather than
// an error.
func (s *Splitter) Take(owner int) (int64, bool) {
	for {
		lo := s.ranges[owner].lo.Load()
		hi := s.ranges[owner].hi.Load()
		if lo < hi {
			if s.ranges[owner].lo.CompareAndSwap(lo, lo+1) {
				return lo, true
			}
			continue
		}
		if !s.steal(owner) {
			return 0, false
		}
	}
}

// steal looks across all ranges for the largest one and either bisects
// it into owner's (now-empty) slot, or, if nothing can be bisected
// further, copies the sole remaining unit into owner's slot so owner can
// help (re)process it.
func (s *Splitter) steal(owner int) bool {
	for {
		best := -1
		var bestSize int64
		for i := range s.ranges {
			sz := s.ranges[i].hi.Load() - s.ranges[i].lo.Load()
			if sz > bestSize {
				bestSize = sz
				best = i
			}
		}
		if best < 0 {
			return false
		}

		lo := s.ranges[best].lo.Load()
		hi := s.ranges[best].hi.Load()
		if hi-lo <= 0 {
			continue // went stale between the scan and the read, retry
		}
		if hi-lo == 1 {
			s.ranges[owner].lo.Store(lo)
			s.ranges[owner].hi.Store(hi)
			return true
		}

		mid := lo + (hi-lo)/2
		if !s.ranges[best].hi.CompareAndSwap(hi, mid) {
			continue // donor range changed concurrently, re-scan
		}
		s.ranges[owner].lo.Store(mid)
		s.ranges[owner].hi.Store(hi)
		return true
	}
}

// Remaining reports the total count of unclaimed work units left across
// all ranges. It is intended for progress logging only: the value is
// stale the instant it is read.
func (s *Splitter) Remaining() int64 {
	var total int64
	for i := range s.ranges {
		if sz := s.ranges[i].hi.Load() - s.ranges[i].lo.Load(); sz > 0 {
			total += sz
		}
	}
	return total
}
