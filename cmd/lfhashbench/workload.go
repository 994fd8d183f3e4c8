// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package main

import (
	"context"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"

	"github.com/lfcore/lfhash/hash"
	"github.com/lfcore/lfhash/logger"
	"github.com/lfcore/lfhash/sync/semaphore"
)

// generation holds the table a driver currently believes is live,
// published by whichever goroutine first finishes helping a migration
// through to completion. Readers and writers alike reload it whenever
// an operation reports hash.StatusResize.
type generation struct {
	cur atomic.Pointer[hash.Table]
}

func newGeneration(t *hash.Table) *generation {
	g := &generation{}
	g.cur.Store(t)
	return g
}

func (g *generation) load() *hash.Table { return g.cur.Load() }

// helpResize grows and migrates off the table a caller just observed
// StatusResize against, bounding how many goroutines are simultaneously
// inside Resizer.Help with a weighted semaphore: a migration only needs
// a handful of concurrent helpers to finish quickly, and letting every
// one of a large worker pool pile into Help at once would just thrash
// the Splitter's CAS loop harder than it helps.
func helpResize(ctx context.Context, g *generation, stale *hash.Table, rc int, helperGate *semaphore.Weighted, owner int, m *metrics, log logger.Logger) (*hash.Table, error) {
	if err := helperGate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer helperGate.Release(1)

	r, err := stale.Resize(rc)
	if err != nil {
		return nil, err
	}
	m.resizes.Inc()

	retry := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err = backoff.Retry(func() error {
		err := r.Help(owner % r.Owners())
		switch err {
		case nil:
			return nil
		case hash.ErrTableStalled:
			m.stalls.Inc()
			if log != nil {
				log.Infof("lfhashbench: resize stalled, retrying owner=%d", owner)
			}
			return err
		default:
			return backoff.Permanent(err)
		}
	}, retry)
	if err != nil {
		return nil, err
	}

	nt := r.NewTable()
	g.cur.CompareAndSwap(stale, nt)
	m.tableSize.Set(float64(nt.Capacity()))
	m.liveEntries.Set(float64(nt.Size()))
	return nt, nil
}

// putEntry inserts or replaces the entry for hash h with value v,
// growing the table and retrying as many times as a concurrent resize
// demands. It mirrors the insert-or-replace sequence every Updater
// caller must drive: walk with Next, then Alloc plus Insert or Replace,
// restarting on a lost race.
func putEntry(ctx context.Context, g *generation, rc int, helperGate *semaphore.Weighted, owner int, m *metrics, log logger.Logger, h uint32, v uint64) error {
	t := g.load()
	u := t.Updater(h)
	for {
		idx, status := u.Next()
		switch status {
		case hash.StatusResize:
			nt, err := helpResize(ctx, g, t, rc, helperGate, owner, m, log)
			if err != nil {
				return err
			}
			t = nt
			u = t.Updater(h)
		case hash.StatusFound:
			newIdx, st := u.Alloc()
			if st == hash.StatusResize {
				nt, err := helpResize(ctx, g, t, rc, helperGate, owner, m, log)
				if err != nil {
					return err
				}
				t = nt
				u = t.Updater(h)
				continue
			}
			fx := t.Facade().(*valuePayload)
			if u.Replace(idx) == hash.StatusFound {
				fx.set(newIdx, v)
				m.inserts.Inc()
				return nil
			}
			u.Close()
			u.Restart()
		case hash.StatusNone:
			newIdx, st := u.Alloc()
			if st == hash.StatusResize {
				nt, err := helpResize(ctx, g, t, rc, helperGate, owner, m, log)
				if err != nil {
					return err
				}
				t = nt
				u = t.Updater(h)
				continue
			}
			fx := t.Facade().(*valuePayload)
			if u.Insert() == hash.StatusFound {
				fx.set(newIdx, v)
				m.inserts.Inc()
				return nil
			}
			u.Close()
			u.Restart()
		}
	}
}

func getEntry(g *generation, m *metrics, h uint32) (uint64, bool) {
	t := g.load()
	f := t.Finder(h)
	idx, status := f.Next()
	m.lookups.Inc()
	if status != hash.StatusFound {
		m.lookupMisses.Inc()
		return 0, false
	}
	fx := t.Facade().(*valuePayload)
	return fx.get(idx), true
}

func removeEntry(ctx context.Context, g *generation, rc int, helperGate *semaphore.Weighted, owner int, m *metrics, log logger.Logger, h uint32) (bool, error) {
	t := g.load()
	u := t.Updater(h)
	for {
		idx, status := u.Next()
		switch status {
		case hash.StatusResize:
			nt, err := helpResize(ctx, g, t, rc, helperGate, owner, m, log)
			if err != nil {
				return false, err
			}
			t = nt
			u = t.Updater(h)
		case hash.StatusNone:
			return false, nil
		case hash.StatusFound:
			if u.Remove(idx) == hash.StatusFound {
				m.removes.Inc()
				return true, nil
			}
			return false, nil
		}
	}
}
