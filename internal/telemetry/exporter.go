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

package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quark-zju/eden/accesslog"
	"github.com/quark-zju/eden/internal/export"
)

// Exporter periodically snapshots the trailing window, logs the top
// accessors, and fans the snapshot out to a sink. Stopping it performs one
// final publish so the last partial interval is not silently dropped.
type Exporter struct {
	log      *accesslog.AccessLog
	names    NameLookup
	sink     export.Sink
	window   int
	interval time.Duration
	topN     int

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// NewExporter wires an exporter. sink may be nil to only log top accessors;
// names may be nil. topN of 0 disables the console top list.
func NewExporter(log *accesslog.AccessLog, names NameLookup, sink export.Sink, window int, interval time.Duration, topN int) *Exporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Exporter{
		log:      log,
		names:    names,
		sink:     sink,
		window:   window,
		interval: interval,
		topN:     topN,
		stopChan: make(chan struct{}),
	}
}

// Start launches the export loop.
func (e *Exporter) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loop()
	}()
}

// Stop shuts the loop down after a final publish. Safe to call once.
func (e *Exporter) Stop() {
	if !atomic.CompareAndSwapUint32(&e.stopped, 0, 1) {
		return
	}
	close(e.stopChan)
	e.wg.Wait()
}

func (e *Exporter) loop() {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.publishOnce()
		case <-e.stopChan:
			// Final flush so the trailing partial interval still goes out.
			e.publishOnce()
			return
		}
	}
}

// PublishNow takes one snapshot immediately. Exposed for tests and for
// on-demand flushes.
func (e *Exporter) PublishNow() {
	e.publishOnce()
}

func (e *Exporter) publishOnce() {
	counts := e.log.AllAccesses(e.window)
	snap := export.Snapshot{
		TakenAt: time.Now(),
		Window:  e.window,
		Counts:  counts,
		Names:   e.namesFor(counts),
	}

	if e.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), e.interval)
		err := e.sink.Publish(ctx, snap)
		cancel()
		if err != nil {
			fmt.Printf("accesslog export failed: %v\n", err)
		}
	}
	e.logTop(counts, snap.Names)
}

func (e *Exporter) namesFor(counts map[int32]uint64) map[int32]string {
	if e.names == nil || len(counts) == 0 {
		return nil
	}
	out := make(map[int32]string, len(counts))
	for pid := range counts {
		if name, ok := e.names.Lookup(pid); ok && name != "" {
			out[pid] = name
		}
	}
	return out
}

// logTop prints the heaviest accessors of the window, count descending.
func (e *Exporter) logTop(counts map[int32]uint64, names map[int32]string) {
	if e.topN <= 0 || len(counts) == 0 {
		return
	}
	type row struct {
		pid   int32
		count uint64
	}
	rows := make([]row, 0, len(counts))
	for pid, n := range counts {
		rows = append(rows, row{pid: pid, count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count == rows[j].count {
			return rows[i].pid < rows[j].pid
		}
		return rows[i].count > rows[j].count
	})
	if len(rows) > e.topN {
		rows = rows[:e.topN]
	}
	fmt.Printf("top accessors (last %ds):", e.window)
	for _, r := range rows {
		name := names[r.pid]
		if name == "" {
			name = "?"
		}
		fmt.Printf(" pid=%d(%s) n=%d", r.pid, name, r.count)
	}
	fmt.Println()
}
