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

// shard is a per-writer buffer that absorbs accesses before they are folded
// into the owning AccessLog's canonical log. Writes take only the shard's own
// lock, which stays uncontended except when a read walks the registry and
// merges the shard upstream at the same moment.
//
// owner is nil once the owning AccessLog has been closed. An orphaned shard
// keeps absorbing writes; they are never delivered anywhere and are dropped
// when the shard is released.
type shard struct {
	mu    sync.Mutex
	log   bucketLog
	owner *AccessLog
}

// newShard creates a shard attached to owner and publishes it in the
// process-wide registry.
func newShard(owner *AccessLog) *shard {
	s := &shard{owner: owner, log: newBucketLog(owner.window)}
	registerShard(s)
	return s
}

// record counts one access by pid during second sec and reports whether pid
// was newly seen within this shard-second.
func (s *shard) record(sec uint64, pid int32) bool {
	s.mu.Lock()
	isNew := s.log.add(sec, pid)
	s.mu.Unlock()
	return isNew
}

// mergeUpstream folds the shard's counts into the owner's canonical log and
// clears the shard, all inside the shard's critical section so a count can
// never be delivered twice or lost in between.
//
// Lock order: the shard's lock is always taken before the owner's lock. The
// same order holds on every path that touches both locks; breaking it would
// deadlock a writer merging itself against a reader walking the registry.
func (s *shard) mergeUpstream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == nil {
		// Orphaned: nothing to deliver to. Drop the local counts so an
		// abandoned writer does not pin a full window of buckets.
		s.log.clear()
		return
	}
	s.owner.mu.Lock()
	s.owner.log.merge(&s.log)
	s.owner.mu.Unlock()
	s.log.clear()
}

// disownIfOwnedBy clears the back-reference if the shard is currently
// attached to l. Called by a closing AccessLog for every registered shard;
// there is no way back from orphaned to attached.
func (s *shard) disownIfOwnedBy(l *AccessLog) {
	s.mu.Lock()
	if s.owner == l {
		s.owner = nil
	}
	s.mu.Unlock()
}
