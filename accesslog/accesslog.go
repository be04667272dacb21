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

// Package accesslog records which operating-system process issued each
// incoming filesystem request and answers "how many requests did each
// process issue in the last W seconds" for telemetry and throttling
// consumers.
//
// The workload is write-often, read-rarely: RecordAccess runs on essentially
// every filesystem operation, so writes land in per-writer shards guarded by
// private, typically-uncontended locks. Cross-writer synchronization is paid
// only on the rare read path, which folds every shard upstream into the
// canonical log before summing the trailing window.
package accesslog

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	_ "unsafe"
)

//go:linkname runtime_procPin runtime.procPin
func runtime_procPin() int

//go:linkname runtime_procUnpin runtime.procUnpin
func runtime_procUnpin()

// DefaultWindow is the number of trailing whole seconds an AccessLog retains.
const DefaultWindow = 64

// NameResolver arranges for a process's executable name to become available
// for later lookup. The AccessLog calls Add at most once per distinct
// (writer, second, pid); implementations are expected to make repeated calls
// for the same pid cheap.
type NameResolver interface {
	Add(pid int32)
}

// Options configures AccessLog construction.
type Options struct {
	// Window is the retention capacity in whole seconds. 0 uses
	// DefaultWindow. Reads asking for a longer window are silently truncated
	// to this span.
	Window int

	// Shards overrides the number of per-P writer shard slots. 0 uses
	// nextPow2(clamp(GOMAXPROCS, [4,64])).
	Shards int
}

// AccessLog is the process-facing entry point: it routes each write to the
// calling writer's shard and owns the canonical bucket log that all shards
// merge into.
type AccessLog struct {
	mu  sync.Mutex
	log bucketLog // canonical; grows only via merges, never direct writes

	resolver NameResolver
	window   int

	// Per-P writer shards, created lazily on first write from a slot. The
	// shard index is derived from the P the writer is running on, so the
	// shard lock is effectively private to one writer at a time.
	shards []atomic.Pointer[shard]
	mask   int

	clock  func() uint64 // monotonic whole seconds; replaced in tests
	closed atomic.Bool
}

// New creates an AccessLog. resolver may be nil when executable names are
// not wanted.
func New(resolver NameResolver, opts Options) *AccessLog {
	w := opts.Window
	if w <= 0 {
		w = DefaultWindow
	}
	n := opts.Shards
	if n <= 0 {
		n = max(4, min(64, runtime.GOMAXPROCS(0)))
	}
	n = nextPow2(n)
	l := &AccessLog{
		resolver: resolver,
		window:   w,
		shards:   make([]atomic.Pointer[shard], n),
		mask:     n - 1,
		clock:    monotonicSeconds,
	}
	l.log = newBucketLog(w)
	return l
}

// RecordAccess attributes one filesystem request to pid. A pid of zero means
// the driver could not identify the caller; the access is counted but no
// name resolution is attempted.
//
// This is the hot path. Its only synchronization is the calling writer's own
// shard lock, contended only when a concurrent read merges that same shard.
func (l *AccessLog) RecordAccess(pid int32) {
	s := l.writerShard()
	isNew := s.record(l.clock(), pid)
	l.noteNewPid(pid, isNew)
}

// AllAccesses returns the number of accesses per pid over the trailing
// `window` seconds. A window of zero or less yields an empty map; a window
// longer than the retained capacity is silently truncated to it.
//
// This is the rare, relatively expensive path: it first merges every live
// shard in the process upstream (cost O(live shards)), then sums at most the
// retained buckets under the log's own lock. At most two locks are held at
// once (one shard, then its owner), and each shard's lock is released before
// the next shard is visited.
func (l *AccessLog) AllAccesses(window int) map[int32]uint64 {
	forEachShard((*shard).mergeUpstream)
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	result := make(map[int32]uint64)
	if window <= 0 {
		return result
	}
	all := l.log.getAll(now)
	if window > len(all) {
		window = len(all)
	}
	for _, b := range all[len(all)-window:] {
		for pid, c := range b {
			result[pid] += c
		}
	}
	return result
}

// Close detaches the log from every shard that points at it. Writers that
// outlive the log keep accumulating into their now-orphaned shards; those
// counts are never delivered anywhere and vanish when the writer releases
// its shard. Safe to call more than once.
func (l *AccessLog) Close() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	forEachShard(func(s *shard) { s.disownIfOwnedBy(l) })
	// The per-P shards stay reachable through l.shards so late writes are
	// still absorbed, but the registry no longer needs to visit them.
	for i := range l.shards {
		if s := l.shards[i].Load(); s != nil {
			unregisterShard(s)
		}
	}
}

// Window returns the retention capacity in whole seconds.
func (l *AccessLog) Window() int {
	return l.window
}

// writerShard returns the calling writer's shard, creating it on first use.
func (l *AccessLog) writerShard() *shard {
	i := runtime_procPin() & l.mask
	runtime_procUnpin()
	if s := l.shards[i].Load(); s != nil {
		return s
	}
	s := newShard(l)
	if !l.shards[i].CompareAndSwap(nil, s) {
		// Lost the publish race; discard ours and use the winner.
		unregisterShard(s)
		return l.shards[i].Load()
	}
	if l.closed.Load() {
		// Close ran while we were publishing: orphan the newcomer so it can
		// never deliver into a closed log.
		s.disownIfOwnedBy(l)
		unregisterShard(s)
	}
	return s
}

// noteNewPid triggers name resolution the first time pid shows up within the
// current writer-second. Many processes are short-lived, so the name is
// grabbed during the access itself; the resolver caches, so the lookup cost
// is paid once per distinct (writer, second, pid). Writers seeing the same
// pid in the same second may each trigger a resolution; the resolver is
// idempotent, so that is an accepted approximation.
func (l *AccessLog) noteNewPid(pid int32, isNew bool) {
	if !isNew || pid == 0 || l.resolver == nil || l.closed.Load() {
		return
	}
	l.resolver.Add(pid)
}

// processStart anchors the monotonic clock. time.Since uses the monotonic
// reading, so wall-clock adjustments never move the window backwards.
var processStart = time.Now()

func monotonicSeconds() uint64 {
	return uint64(time.Since(processStart) / time.Second)
}

func nextPow2(x int) int {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	return x + 1
}
