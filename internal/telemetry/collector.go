// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry exposes the access log to Prometheus and runs the
// periodic export loop. Reading the log is the rare, relatively expensive
// path, so everything here is scrape- or ticker-driven, never per-request.
package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quark-zju/eden/accesslog"
)

// NameLookup resolves a pid to a cached executable name. procname.Cache
// satisfies it.
type NameLookup interface {
	Lookup(pid int32) (string, bool)
}

// Collector exports the trailing-window access counts on every scrape.
// Per-process series are emitted as const metrics, so a pid that leaves the
// window disappears from the exposition with it and no unbounded label
// cardinality accumulates in the registry.
type Collector struct {
	log    *accesslog.AccessLog
	names  NameLookup
	window int

	accesses *prometheus.Desc
	procs    *prometheus.Desc
	reads    prometheus.Counter
}

// NewCollector builds a Collector reading the trailing `window` seconds.
// names may be nil when executable names are not tracked.
func NewCollector(log *accesslog.AccessLog, names NameLookup, window int) *Collector {
	return &Collector{
		log:    log,
		names:  names,
		window: window,
		accesses: prometheus.NewDesc(
			"edenfs_process_accesses_recent",
			"Filesystem accesses recorded per process over the trailing window",
			[]string{"pid", "name"}, nil,
		),
		procs: prometheus.NewDesc(
			"edenfs_access_processes_recent",
			"Distinct processes observed over the trailing window",
			nil, nil,
		),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edenfs_accesslog_reads_total",
			Help: "Total trailing-window reads served by the access log",
		}),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.accesses
	ch <- c.procs
	c.reads.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counts := c.log.AllAccesses(c.window)
	c.reads.Inc()

	for pid, n := range counts {
		name := ""
		if c.names != nil {
			name, _ = c.names.Lookup(pid)
		}
		ch <- prometheus.MustNewConstMetric(
			c.accesses, prometheus.GaugeValue, float64(n),
			strconv.FormatInt(int64(pid), 10), name,
		)
	}
	ch <- prometheus.MustNewConstMetric(c.procs, prometheus.GaugeValue, float64(len(counts)))
	c.reads.Collect(ch)
}
