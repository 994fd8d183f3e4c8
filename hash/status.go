// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hash

// Status reports the outcome of a Finder or Updater step.
type Status int

const (
	// StatusNone means the chain was walked to its end without a match.
	StatusNone Status = iota
	// StatusFound means the operation located or reserved a slot.
	StatusFound
	// StatusResize means a concurrent migration is underway (or the
	// table has crossed its load-factor threshold) and the caller must
	// resize, or help migrate, before retrying.
	StatusResize
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusFound:
		return "found"
	case StatusResize:
		return "resize"
	default:
		return "unknown"
	}
}
