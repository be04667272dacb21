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

// counts maps a pid to the number of accesses observed within one whole
// second. A pid absent from the map has count zero; stored counts are always
// positive.
type counts map[int32]uint64

// addOne increments pid's count and reports whether pid had no prior entry
// in this bucket.
func (c counts) addOne(pid int32) bool {
	prior := c[pid]
	c[pid] = prior + 1
	return prior == 0
}

// mergeFrom adds every count in src into c.
func (c counts) mergeFrom(src counts) {
	for pid, n := range src {
		c[pid] += n
	}
}

// bucketLog is a fixed-capacity, time-indexed ring of per-second access
// counts. Bucket i of a log covering second `sec` lives at index sec % cap.
// Second-granularity bucketing bounds memory at O(capacity) regardless of
// access rate and makes "sum of the last N seconds" a suffix walk over at
// most capacity buckets.
//
// bucketLog has no locking of its own; each instance is owned by exactly one
// caller at a time (a shard under its lock, or an AccessLog under its lock).
type bucketLog struct {
	buckets []counts
	latest  uint64 // newest second the window covers; valid when started
	started bool   // false until the first add after creation/clear
}

func newBucketLog(capacity int) bucketLog {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	return bucketLog{buckets: make([]counts, capacity)}
}

// ensure positions the window so that it covers sec, evicting buckets that
// fall off the back. It reports false when sec is older than the oldest
// retained second, in which case the sample must be dropped.
func (l *bucketLog) ensure(sec uint64) bool {
	n := uint64(len(l.buckets))
	switch {
	case !l.started:
		l.started = true
		l.latest = sec
	case sec > l.latest:
		l.slide(sec)
	case l.latest+1 > n && sec < l.latest+1-n:
		return false
	}
	return true
}

// slide advances the window end to sec, clearing every bucket the window
// rolled over. A gap wider than the whole ring clears everything; the window
// never moves by more than the capacity in one step.
func (l *bucketLog) slide(sec uint64) {
	n := uint64(len(l.buckets))
	if sec-l.latest >= n {
		for i := range l.buckets {
			l.buckets[i] = nil
		}
	} else {
		for s := l.latest + 1; s <= sec; s++ {
			l.buckets[s%n] = nil
		}
	}
	l.latest = sec
}

// add counts one access by pid during second sec. It reports whether pid was
// newly seen within that second. Samples older than the retained window are
// dropped and reported as not new.
func (l *bucketLog) add(sec uint64, pid int32) bool {
	if !l.ensure(sec) {
		return false
	}
	idx := sec % uint64(len(l.buckets))
	b := l.buckets[idx]
	if b == nil {
		b = counts{}
		l.buckets[idx] = b
	}
	return b.addOne(pid)
}

// addCounts folds a whole bucket of counts into the record for second sec,
// advancing the window as needed. Stale seconds are dropped.
func (l *bucketLog) addCounts(sec uint64, src counts) {
	if len(src) == 0 {
		return
	}
	if !l.ensure(sec) {
		return
	}
	idx := sec % uint64(len(l.buckets))
	b := l.buckets[idx]
	if b == nil {
		b = make(counts, len(src))
		l.buckets[idx] = b
	}
	b.mergeFrom(src)
}

// merge adds every retained record of other into the co-indexed record of l.
// other is not mutated.
func (l *bucketLog) merge(other *bucketLog) {
	if !other.started {
		return
	}
	n := uint64(len(other.buckets))
	lo := uint64(0)
	if other.latest+1 > n {
		lo = other.latest + 1 - n
	}
	for sec := lo; sec <= other.latest; sec++ {
		l.addCounts(sec, other.buckets[sec%n])
	}
}

// getAll returns the retained records oldest first, with the window advanced
// to end at now. Seconds with no accesses appear as nil maps so that callers
// can do window arithmetic in seconds rather than in populated buckets. The
// result length never exceeds the capacity.
//
// The returned maps alias internal storage; the caller must be the log's
// owner for the duration of use.
func (l *bucketLog) getAll(now uint64) []counts {
	if !l.started {
		return nil
	}
	if now > l.latest {
		l.slide(now)
	}
	n := uint64(len(l.buckets))
	lo := uint64(0)
	if l.latest+1 > n {
		lo = l.latest + 1 - n
	}
	out := make([]counts, 0, l.latest-lo+1)
	for sec := lo; sec <= l.latest; sec++ {
		out = append(out, l.buckets[sec%n])
	}
	return out
}

// clear empties all records without changing capacity.
func (l *bucketLog) clear() {
	for i := range l.buckets {
		l.buckets[i] = nil
	}
	l.started = false
}
