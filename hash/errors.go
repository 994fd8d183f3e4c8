// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hash

import "errors"

// ErrCapacityExceeded is returned when a table has reached its maximum
// size (2^30 slots) and an insert cannot be satisfied even after a
// resize attempt.
var ErrCapacityExceeded = errors.New("hash: table capacity exceeded")

// ErrReentrantUpdater is the value Updater.Alloc panics with when it is
// called while a previous Alloc on the same Updater has not yet been
// consumed by Insert or Replace or abandoned by Close. An Updater is
// single-writer, single-goroutine, single-in-flight-reservation by
// construction; this panic indicates caller misuse, not a concurrency
// hazard from other goroutines.
var ErrReentrantUpdater = errors.New("hash: updater has an unconsumed reservation")

// ErrTableStalled is returned by Resizer.Help when stallTimeout has
// elapsed since the migration started and the migration is not yet done.
var ErrTableStalled = errors.New("hash: migration stalled past deadline")
