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

// registry tracks every live shard in the process, across all AccessLog
// instances. Reads use it to fold all pending writes upstream before
// answering, and a closing AccessLog uses it to disown every shard that
// still points at it. It is created here and never torn down; shards remove
// themselves when released.
var registry = struct {
	mu     sync.Mutex
	shards map[*shard]struct{}
}{shards: make(map[*shard]struct{})}

func registerShard(s *shard) {
	registry.mu.Lock()
	registry.shards[s] = struct{}{}
	registry.mu.Unlock()
}

// unregisterShard removes s from the registry. Safe to call for a shard that
// was already removed.
func unregisterShard(s *shard) {
	registry.mu.Lock()
	delete(registry.shards, s)
	registry.mu.Unlock()
}

// forEachShard visits a snapshot of the live shards with the registry lock
// released, so the per-shard work (which takes the shard's lock and possibly
// its owner's) never nests inside the registry lock.
func forEachShard(fn func(*shard)) {
	registry.mu.Lock()
	snapshot := make([]*shard, 0, len(registry.shards))
	for s := range registry.shards {
		snapshot = append(snapshot, s)
	}
	registry.mu.Unlock()

	for _, s := range snapshot {
		fn(s)
	}
}
