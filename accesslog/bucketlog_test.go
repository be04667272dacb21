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

import (
	"reflect"
	"testing"
)

// sumAll flattens a getAll result into a single pid->count map.
func sumAll(records []counts) map[int32]uint64 {
	out := make(map[int32]uint64)
	for _, b := range records {
		for pid, c := range b {
			out[pid] += c
		}
	}
	return out
}

// TestBucketLog_Add validates the new-pid-per-second contract:
// the first access by a pid within a second reports new, repeats within the
// same second do not, and a later second starts fresh.
func TestBucketLog_Add(t *testing.T) {
	l := newBucketLog(8)

	if !l.add(10, 100) {
		t.Error("first add of pid 100 at sec 10 should be new")
	}
	if l.add(10, 100) {
		t.Error("second add of pid 100 at sec 10 should not be new")
	}
	if !l.add(10, 200) {
		t.Error("first add of pid 200 at sec 10 should be new")
	}
	if !l.add(11, 100) {
		t.Error("pid 100 at sec 11 should be new again")
	}

	got := sumAll(l.getAll(11))
	want := map[int32]uint64{100: 3, 200: 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("counts = %v, want %v", got, want)
	}
}

// TestBucketLog_StaleDrop ensures that a timestamp older than the oldest
// retained second is a no-op reported as not new.
func TestBucketLog_StaleDrop(t *testing.T) {
	l := newBucketLog(4)
	l.add(100, 7)

	// Oldest retained second is 97; 96 is one too old.
	if l.add(96, 7) {
		t.Error("stale add should not report a new pid")
	}
	if got := sumAll(l.getAll(100)); got[7] != 1 {
		t.Errorf("stale add changed counts: %v", got)
	}
	// The boundary second is still accepted.
	if !l.add(97, 8) {
		t.Error("add at the oldest retained second should be accepted")
	}
}

// TestBucketLog_Eviction verifies that advancing the window evicts the
// oldest records and never retains more than capacity seconds.
func TestBucketLog_Eviction(t *testing.T) {
	l := newBucketLog(4)
	for sec := uint64(1); sec <= 6; sec++ {
		l.add(sec, int32(sec))
	}

	records := l.getAll(6)
	if len(records) != 4 {
		t.Fatalf("len(getAll) = %d, want 4", len(records))
	}
	got := sumAll(records)
	want := map[int32]uint64{3: 1, 4: 1, 5: 1, 6: 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("retained counts = %v, want %v", got, want)
	}
}

// TestBucketLog_FarJump covers a gap wider than the whole window: every old
// record is evicted in a single bounded step.
func TestBucketLog_FarJump(t *testing.T) {
	l := newBucketLog(4)
	l.add(1, 9)
	l.add(1000, 10)

	got := sumAll(l.getAll(1000))
	want := map[int32]uint64{10: 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("counts after far jump = %v, want %v", got, want)
	}
	if records := l.getAll(1000); len(records) > 4 {
		t.Errorf("len(getAll) = %d, want <= 4", len(records))
	}
}

// TestBucketLog_GetAllIncludesEmptySeconds ensures the returned sequence is
// indexed by second, not by populated bucket: quiet seconds appear as empty
// records so trailing-window arithmetic stays in seconds.
func TestBucketLog_GetAllIncludesEmptySeconds(t *testing.T) {
	l := newBucketLog(8)
	l.add(5, 1)

	records := l.getAll(7)
	if len(records) != 8 {
		t.Fatalf("len(getAll(7)) = %d, want 8 (seconds 0..7)", len(records))
	}
	for i, b := range records {
		if i == 5 {
			if b[1] != 1 {
				t.Errorf("second 5 = %v, want pid 1 count 1", b)
			}
			continue
		}
		if len(b) != 0 {
			t.Errorf("second %d = %v, want empty", i, b)
		}
	}
}

// TestBucketLog_GetAllAdvancesToNow: records older than now-capacity fall
// out even when nothing new was added in between.
func TestBucketLog_GetAllAdvancesToNow(t *testing.T) {
	l := newBucketLog(4)
	l.add(10, 1)

	if got := sumAll(l.getAll(20)); len(got) != 0 {
		t.Errorf("counts after idle gap = %v, want empty", got)
	}
}

// TestBucketLog_Merge checks that merge adds co-indexed records, creates
// missing ones, and leaves the source untouched.
func TestBucketLog_Merge(t *testing.T) {
	dst := newBucketLog(8)
	dst.add(10, 1)
	dst.add(11, 1)

	src := newBucketLog(8)
	src.add(10, 1)
	src.add(10, 2)
	src.add(12, 3)

	dst.merge(&src)

	got := sumAll(dst.getAll(12))
	want := map[int32]uint64{1: 3, 2: 1, 3: 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("merged counts = %v, want %v", got, want)
	}

	// Source unchanged.
	gotSrc := sumAll(src.getAll(12))
	wantSrc := map[int32]uint64{1: 1, 2: 1, 3: 1}
	if !reflect.DeepEqual(gotSrc, wantSrc) {
		t.Errorf("source counts = %v, want %v", gotSrc, wantSrc)
	}
}

// TestBucketLog_MergeIntoEmpty: merging into a fresh log reproduces the
// source exactly.
func TestBucketLog_MergeIntoEmpty(t *testing.T) {
	src := newBucketLog(8)
	src.add(3, 42)
	src.add(4, 42)

	dst := newBucketLog(8)
	dst.merge(&src)

	if got := sumAll(dst.getAll(4)); got[42] != 2 {
		t.Errorf("counts = %v, want pid 42 count 2", got)
	}
}

// TestBucketLog_Clear: clear drops every record but keeps capacity usable.
func TestBucketLog_Clear(t *testing.T) {
	l := newBucketLog(4)
	l.add(10, 1)
	l.clear()

	if records := l.getAll(10); records != nil {
		t.Errorf("getAll after clear = %v, want nil", records)
	}
	if !l.add(2, 1) {
		t.Error("add after clear should start a fresh window")
	}
	if got := sumAll(l.getAll(2)); got[1] != 1 {
		t.Errorf("counts after clear+add = %v", got)
	}
}
