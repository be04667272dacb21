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
	"fmt"

	"github.com/quark-zju/eden/internal/export"
)

// ObservingSink feeds every published snapshot through a Classifier before
// forwarding it, logging promotions as they happen. It lets the daemon run
// hot-process detection without a second export pipeline.
type ObservingSink struct {
	next       export.Sink
	classifier *Classifier
}

// NewObservingSink wraps next. next may be nil to classify without
// forwarding.
func NewObservingSink(next export.Sink, classifier *Classifier) *ObservingSink {
	return &ObservingSink{next: next, classifier: classifier}
}

func (s *ObservingSink) Publish(ctx context.Context, snap export.Snapshot) error {
	for _, pid := range s.classifier.Observe(snap.Counts) {
		name := snap.Names[pid]
		if name == "" {
			name = "?"
		}
		fmt.Printf("hot process: pid=%d name=%s accesses=%d window=%ds\n",
			pid, name, snap.Counts[pid], snap.Window)
	}
	if s.next == nil {
		return nil
	}
	return s.next.Publish(ctx, snap)
}

// Classifier exposes the wrapped classifier so callers can query the hot set.
func (s *ObservingSink) Classifier() *Classifier { return s.classifier }
