// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package main

import "github.com/prometheus/client_golang/prometheus"

// metrics are the counters and gauges the driver exposes on -listenaddr
// so a run can be watched the way ocprometheus watches a gNMI stream,
// rather than only read back from a final summary line.
type metrics struct {
	inserts      prometheus.Counter
	removes      prometheus.Counter
	lookups      prometheus.Counter
	lookupMisses prometheus.Counter
	resizes      prometheus.Counter
	stalls       prometheus.Counter
	tableSize    prometheus.Gauge
	liveEntries  prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		inserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lfhashbench_inserts_total",
			Help: "Number of successful inserts performed against the table.",
		}),
		removes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lfhashbench_removes_total",
			Help: "Number of successful logical removes performed against the table.",
		}),
		lookups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lfhashbench_lookups_total",
			Help: "Number of lookups performed against the table.",
		}),
		lookupMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lfhashbench_lookup_misses_total",
			Help: "Number of lookups that found no live entry for their key.",
		}),
		resizes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lfhashbench_resizes_total",
			Help: "Number of times a worker observed and helped drive a resize.",
		}),
		stalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lfhashbench_resize_stalls_total",
			Help: "Number of times Resizer.Help reported a stalled migration.",
		}),
		tableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lfhashbench_table_size",
			Help: "Raw slot count of the current table generation.",
		}),
		liveEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lfhashbench_live_entries",
			Help: "Best-effort live entry count of the current table generation.",
		}),
	}
	prometheus.MustRegister(
		m.inserts, m.removes, m.lookups, m.lookupMisses,
		m.resizes, m.stalls, m.tableSize, m.liveEntries,
	)
	return m
}
