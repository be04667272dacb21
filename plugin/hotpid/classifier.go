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

// Package hotpid classifies processes as hot or cold from successive
// trailing-window snapshots of the access log. Consumers use it to decide
// which processes deserve throttling or closer inspection.
package hotpid

import (
	"sort"
	"sync"
)

// Classifier promotes a pid to hot when its per-window count reaches the
// high watermark, and demotes it only after the count falls below the low
// watermark. The hysteresis gap keeps a pid hovering around the threshold
// from flapping between states on every snapshot.
type Classifier struct {
	high uint64
	low  uint64

	mu  sync.Mutex
	hot map[int32]struct{}
}

// NewClassifier builds a classifier with the given watermarks. A low of 0
// uses high/2; a low above high is clamped down to high.
func NewClassifier(high, low uint64) *Classifier {
	if high == 0 {
		high = 1
	}
	if low == 0 {
		low = high / 2
	}
	if low > high {
		low = high
	}
	return &Classifier{high: high, low: low, hot: make(map[int32]struct{})}
}

// Observe feeds one snapshot (the pid -> count mapping of a trailing
// window) and returns the pids promoted to hot by this snapshot, ascending.
// A hot pid absent from the snapshot counts as zero and is demoted.
func (c *Classifier) Observe(counts map[int32]uint64) []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var promoted []int32
	for pid, n := range counts {
		if n < c.high {
			continue
		}
		if _, ok := c.hot[pid]; !ok {
			c.hot[pid] = struct{}{}
			promoted = append(promoted, pid)
		}
	}
	for pid := range c.hot {
		if counts[pid] < c.low {
			delete(c.hot, pid)
		}
	}
	sort.Slice(promoted, func(i, j int) bool { return promoted[i] < promoted[j] })
	return promoted
}

// IsHot reports whether pid is currently classified hot.
func (c *Classifier) IsHot(pid int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.hot[pid]
	return ok
}

// Hot returns the currently hot pids, ascending.
func (c *Classifier) Hot() []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int32, 0, len(c.hot))
	for pid := range c.hot {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
