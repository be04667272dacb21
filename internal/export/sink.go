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

// Package export publishes access-log snapshots to external consumers.
//
// Sinks are telemetry fan-out, not storage: the access log itself stays
// in-memory and non-durable, and a failed publish never blocks or loses
// recording.
package export

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Snapshot is one materialized answer to "who accessed the filesystem over
// the trailing window".
type Snapshot struct {
	TakenAt time.Time
	Window  int // trailing seconds the counts cover
	Counts  map[int32]uint64
	Names   map[int32]string // best-effort executable names; may be sparse
}

// rows returns the snapshot's processes ordered by count descending, pid
// ascending for ties.
func (s Snapshot) rows() []row {
	out := make([]row, 0, len(s.Counts))
	for pid, n := range s.Counts {
		out = append(out, row{pid: pid, name: s.Names[pid], count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count == out[j].count {
			return out[i].pid < out[j].pid
		}
		return out[i].count > out[j].count
	})
	return out
}

type row struct {
	pid   int32
	name  string
	count uint64
}

// Sink consumes periodic access snapshots. Publish must be safe for
// concurrent use and should honor ctx cancellation.
type Sink interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// NopSink discards every snapshot. Used when exporting is disabled but the
// exporter wiring stays in place.
type NopSink struct{}

func (NopSink) Publish(context.Context, Snapshot) error { return nil }

// LogSink prints snapshots to the console. This is the demo sink; it lets
// the daemon run without any external infrastructure.
type LogSink struct {
	mu        sync.Mutex
	snapshots int64
}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Publish(ctx context.Context, snap Snapshot) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots++
	fmt.Printf("[%s] access snapshot #%d: window=%ds processes=%d\n",
		snap.TakenAt.Format(time.RFC3339), s.snapshots, snap.Window, len(snap.Counts))
	for _, r := range snap.rows() {
		name := r.name
		if name == "" {
			name = "?"
		}
		fmt.Printf("  - PID: %-8d NAME: %-32s ACCESSES: %d\n", r.pid, name, r.count)
	}
	return nil
}

// Snapshots reports how many snapshots were published so far.
func (s *LogSink) Snapshots() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots
}
