// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// The lfhashbench tool drives the hash package's concurrent hash table
// core with a configurable population of goroutines doing inserts,
// lookups and removes against a shared table, forcing and helping
// migrations along the way, and exposes running counters on a
// Prometheus endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/bits"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	aglog "github.com/aristanetworks/glog"

	"github.com/lfcore/lfhash/glog"
	"github.com/lfcore/lfhash/hash"
	"github.com/lfcore/lfhash/logger"
	"github.com/lfcore/lfhash/sync/semaphore"
)

func main() {
	workers := flag.Int("workers", 8, "number of concurrent writer/reader goroutines")
	keys := flag.Int("keys", 20000, "number of distinct keys to populate before the timed run")
	duration := flag.Duration("duration", 10*time.Second, "how long to run the mixed workload")
	initialSize := flag.Uint("initial-size", 16, "initial table size (rounded up to a power of two)")
	resizeConcurrency := flag.Int("resize-concurrency", 8,
		"number of dedicated range slots handed out by a Resizer's Splitter")
	helperBudget := flag.Int64("helper-budget", 4,
		"maximum goroutines allowed inside Resizer.Help at once")
	removeFraction := flag.Int("remove-fraction", 10,
		"percentage of operations in the timed phase that are removes; a further 30 percent are inserts and the rest lookups")
	listenaddr := flag.String("listenaddr", ":8080", "address on which to expose /metrics")

	flag.Parse()

	log := &glog.Glog{}
	m := newMetrics()

	// Size the payload for the slot count hash.New rounds initialSize up to.
	payloadSize := uint32(*initialSize)
	if payloadSize > 0 {
		payloadSize = max(uint32(1)<<bits.Len32(payloadSize-1), 16)
	}
	vp := newValuePayload(payloadSize)
	t, err := hash.New(vp, uint32(*initialSize), hash.Options{Logger: log})
	if err != nil {
		aglog.Fatalf("lfhashbench: creating initial table: %v", err)
	}
	m.tableSize.Set(float64(t.Capacity()))
	m.liveEntries.Set(float64(t.Size()))
	g := newGeneration(t)

	http.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: *listenaddr}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			aglog.Errorf("lfhashbench: metrics server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	helperGate := semaphore.NewWeighted(*helperBudget)

	aglog.Infof("lfhashbench: populating %d keys", *keys)
	if err := populate(ctx, g, *resizeConcurrency, helperGate, m, nil, *keys); err != nil {
		aglog.Fatalf("lfhashbench: populate: %v", err)
	}
	m.liveEntries.Set(float64(g.load().Size()))
	aglog.Infof("lfhashbench: populated, live=%d capacity=%d", g.load().Size(), g.load().Capacity())

	runCtx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()
	eg, egCtx := errgroup.WithContext(runCtx)
	for w := 0; w < *workers; w++ {
		w := w
		eg.Go(func() error {
			return runWorker(egCtx, g, *resizeConcurrency, helperGate, m, w, *keys, *removeFraction)
		})
	}
	if err := eg.Wait(); err != nil {
		aglog.Fatalf("lfhashbench: worker failed: %v", err)
	}

	final := g.load()
	m.tableSize.Set(float64(final.Capacity()))
	m.liveEntries.Set(float64(final.Size()))
	fmt.Printf("final table: capacity=%d live=%d\n", final.Capacity(), final.Size())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}

// populate inserts keys sequentially from a single goroutine before the
// timed, concurrent phase begins, so every worker starts against a
// table that already has something to find, remove, and collide on.
func populate(ctx context.Context, g *generation, rc int, helperGate *semaphore.Weighted, m *metrics, log logger.Logger, keys int) error {
	for i := 0; i < keys; i++ {
		h := uint32(i + 1)
		if err := putEntry(ctx, g, rc, helperGate, 0, m, log, h, uint64(h)); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// runWorker repeatedly performs a lookup, occasionally an insert of a
// fresh key or a remove of an already-populated one, until ctx is
// cancelled by the run's overall duration or an os.Interrupt.
func runWorker(ctx context.Context, g *generation, rc int, helperGate *semaphore.Weighted, m *metrics, owner, keys, removeFraction int) error {
	rng := rand.New(rand.NewSource(uint64(owner) + 1))
	next := keys
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		roll := rng.Intn(100)
		switch {
		case roll < removeFraction:
			h := uint32(rng.Intn(keys) + 1)
			if _, err := removeEntry(ctx, g, rc, helperGate, owner, m, nil, h); err != nil {
				return err
			}
		case roll < removeFraction+30:
			next++
			h := uint32(next)
			if err := putEntry(ctx, g, rc, helperGate, owner, m, nil, h, uint64(h)); err != nil {
				return err
			}
		default:
			h := uint32(rng.Intn(keys) + 1)
			getEntry(g, m, h)
		}
	}
}
