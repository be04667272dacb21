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

package export

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// snapshotLine is the JSONL shape one published snapshot serializes to.
type snapshotLine struct {
	TakenAt   time.Time          `json:"taken_at"`
	Window    int                `json:"window"`
	Processes []snapshotLineProc `json:"processes"`
}

type snapshotLineProc struct {
	Pid   int32  `json:"pid"`
	Name  string `json:"name,omitempty"`
	Count uint64 `json:"count"`
}

// FileSink appends snapshots to a JSONL file. It is safe for concurrent use
// and optimized for append-only workloads.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string

	lastFlush time.Time
}

// NewFileSink opens (or creates) the file at path in append mode with a
// buffered writer. Call Close() when done.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: f, w: bufio.NewWriterSize(f, 1<<20 /*1MiB*/), path: path, lastFlush: time.Now()}, nil
}

// Publish writes the snapshot as one JSON line.
func (s *FileSink) Publish(ctx context.Context, snap Snapshot) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	line := snapshotLine{TakenAt: snap.TakenAt, Window: snap.Window}
	for _, r := range snap.rows() {
		line.Processes = append(line.Processes, snapshotLineProc{Pid: r.pid, Name: r.name, Count: r.count})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := json.NewEncoder(s.w).Encode(&line); err != nil {
		return err
	}
	// Flush periodically to bound data loss on crash.
	if time.Since(s.lastFlush) > 100*time.Millisecond {
		if err := s.w.Flush(); err != nil {
			return err
		}
		s.lastFlush = time.Now()
	}
	return nil
}

// Flush forces buffered data to be written to disk.
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFlush = time.Now()
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.w.Flush()
	return s.f.Close()
}

// ReadAllSnapshots reads an entire snapshot log file back. Intended for
// demo/replay and tests; malformed lines are skipped.
func ReadAllSnapshots(path string) ([]Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Snapshot
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1<<20)
	scanner.Buffer(buf, 1<<26)
	for scanner.Scan() {
		var line snapshotLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		snap := Snapshot{
			TakenAt: line.TakenAt,
			Window:  line.Window,
			Counts:  make(map[int32]uint64, len(line.Processes)),
		}
		for _, p := range line.Processes {
			snap.Counts[p.Pid] = p.Count
			if p.Name != "" {
				if snap.Names == nil {
					snap.Names = make(map[int32]string)
				}
				snap.Names[p.Pid] = p.Name
			}
		}
		out = append(out, snap)
	}
	return out, scanner.Err()
}
