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

package accesslog

import "sync"

// Recorder is a scoped write handle for a single long-lived worker
// goroutine, such as a filesystem-driver dispatch loop. It gives the worker
// a dedicated shard so its writes never share a lock with other writers, and
// ties the shard's lifetime to an explicit release instead of goroutine
// teardown: Close performs the final merge upstream, so no recorded access
// is lost even if the worker exits right after its last write.
type Recorder struct {
	l    *AccessLog
	s    *shard
	once sync.Once
}

// NewRecorder creates a Recorder bound to l. The caller must invoke Close
// when the owning worker is done.
func (l *AccessLog) NewRecorder() *Recorder {
	s := newShard(l)
	if l.closed.Load() {
		// The log closed before (or while) this shard was published; start
		// life orphaned so nothing is ever delivered to a closed log.
		s.disownIfOwnedBy(l)
		unregisterShard(s)
	}
	return &Recorder{l: l, s: s}
}

// Record attributes one filesystem request to pid. Same contract as
// AccessLog.RecordAccess, minus the shard lookup.
func (r *Recorder) Record(pid int32) {
	isNew := r.s.record(r.l.clock(), pid)
	r.l.noteNewPid(pid, isNew)
}

// Close merges the recorder's remaining counts upstream exactly once and
// releases its shard. Record calls after Close still accumulate into the
// released shard and are silently discarded; they never fault.
func (r *Recorder) Close() {
	r.once.Do(func() {
		r.s.mergeUpstream()
		unregisterShard(r.s)
	})
}
