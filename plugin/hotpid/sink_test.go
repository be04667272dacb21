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

package hotpid

import (
	"context"
	"errors"
	"testing"

	"github.com/quark-zju/eden/internal/export"
)

type countingSink struct {
	published int
	err       error
}

func (s *countingSink) Publish(context.Context, export.Snapshot) error {
	s.published++
	return s.err
}

// TestObservingSink_ClassifiesAndForwards: the wrapper observes snapshot
// counts and still hands the snapshot to the wrapped sink.
func TestObservingSink_ClassifiesAndForwards(t *testing.T) {
	next := &countingSink{}
	s := NewObservingSink(next, NewClassifier(5, 2))

	snap := export.Snapshot{Window: 10, Counts: map[int32]uint64{42: 9}}
	if err := s.Publish(context.Background(), snap); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if next.published != 1 {
		t.Errorf("forwarded %d snapshots, want 1", next.published)
	}
	if !s.Classifier().IsHot(42) {
		t.Error("pid 42 not classified hot")
	}
}

// TestObservingSink_PropagatesError and classifies even when the wrapped
// sink fails.
func TestObservingSink_PropagatesError(t *testing.T) {
	next := &countingSink{err: errors.New("down")}
	s := NewObservingSink(next, NewClassifier(1, 1))

	err := s.Publish(context.Background(), export.Snapshot{Counts: map[int32]uint64{7: 3}})
	if err == nil {
		t.Fatal("expected wrapped sink error")
	}
	if !s.Classifier().IsHot(7) {
		t.Error("classification skipped on sink error")
	}
}

// TestObservingSink_NilNext classifies without forwarding.
func TestObservingSink_NilNext(t *testing.T) {
	s := NewObservingSink(nil, NewClassifier(1, 1))
	if err := s.Publish(context.Background(), export.Snapshot{Counts: map[int32]uint64{1: 1}}); err != nil {
		t.Fatalf("Publish with nil next: %v", err)
	}
}
