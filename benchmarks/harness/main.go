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

// The harness sweeps recorder variants under an identical concurrent
// workload and prints ops/sec plus latency percentiles, so the sharded hot
// path can be compared A/B against a global mutex and a bare atomic counter.
//
// Usage:
//
//	go run ./benchmarks/harness -variant=sharded -ops=2000000 -c=16
//	go run ./benchmarks/harness -variant=mutex   -ops=2000000 -c=16
package main

import (
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quark-zju/eden/accesslog"
)

type variantType string

const (
	variantSharded variantType = "sharded"
	variantMutex   variantType = "mutex"
	variantAtomic  variantType = "atomic"
)

// recorder is the hot-path contract every variant implements.
type recorder interface {
	record(pid int32)
	totals() uint64
}

type shardedRecorder struct{ log *accesslog.AccessLog }

func (s *shardedRecorder) record(pid int32) { s.log.RecordAccess(pid) }
func (s *shardedRecorder) totals() uint64 {
	var total uint64
	for _, n := range s.log.AllAccesses(accesslog.DefaultWindow) {
		total += n
	}
	return total
}

type mutexRecorder struct {
	mu     sync.Mutex
	counts map[int32]uint64
}

func (m *mutexRecorder) record(pid int32) {
	m.mu.Lock()
	m.counts[pid]++
	m.mu.Unlock()
}

func (m *mutexRecorder) totals() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total uint64
	for _, n := range m.counts {
		total += n
	}
	return total
}

type atomicRecorder struct{ n atomic.Uint64 }

func (a *atomicRecorder) record(int32) { a.n.Add(1) }
func (a *atomicRecorder) totals() uint64 {
	return a.n.Load()
}

func buildRecorder(v variantType) (recorder, func()) {
	switch v {
	case variantSharded:
		l := accesslog.New(nil, accesslog.Options{})
		return &shardedRecorder{log: l}, l.Close
	case variantMutex:
		return &mutexRecorder{counts: make(map[int32]uint64)}, func() {}
	case variantAtomic:
		return &atomicRecorder{}, func() {}
	default:
		fmt.Fprintf(os.Stderr, "unknown -variant=%s (want sharded|mutex|atomic)\n", v)
		os.Exit(2)
		return nil, nil
	}
}

func main() {
	var (
		variantS  = flag.String("variant", string(variantSharded), "Recorder variant: sharded|mutex|atomic")
		ops       = flag.Int("ops", 1_000_000, "Total records to perform")
		conc      = flag.Int("c", runtime.GOMAXPROCS(0), "Number of concurrent workers")
		pids      = flag.Int("pids", 32, "Number of distinct pids in the workload")
		sample    = flag.Int("latency_sample", 64, "Measure latency on every Nth op to keep timer overhead off the hot path")
		pprofAddr = flag.String("pprof_addr", "", "If non-empty, serve net/http/pprof on this address")
	)
	flag.Parse()

	if *ops <= 0 || *conc <= 0 || *pids <= 0 {
		fmt.Fprintln(os.Stderr, "-ops, -c and -pids must be > 0")
		os.Exit(2)
	}
	if *sample < 1 {
		*sample = 1
	}
	if *pprofAddr != "" {
		go func() { _ = http.ListenAndServe(*pprofAddr, nil) }()
	}

	v := variantType(*variantS)
	rec, closeRec := buildRecorder(v)

	perWorker := *ops / *conc
	latencies := make([][]time.Duration, *conc)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		go func(id int) {
			defer wg.Done()
			local := make([]time.Duration, 0, perWorker/(*sample)+1)
			for i := 0; i < perWorker; i++ {
				pid := int32((i+id)%(*pids) + 1)
				if i%(*sample) == 0 {
					t0 := time.Now()
					rec.record(pid)
					local = append(local, time.Since(t0))
				} else {
					rec.record(pid)
				}
			}
			latencies[id] = local
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	total := rec.totals()
	closeRec()

	var all []time.Duration
	for _, l := range latencies {
		all = append(all, l...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	done := perWorker * *conc
	fmt.Printf("Variant: %s  Ops: %d  Counted: %d  Workers: %d  Pids: %d\n", v, done, total, *conc, *pids)
	fmt.Printf("Duration: %s  Ops/sec: %.0f\n", elapsed.Truncate(time.Microsecond), float64(done)/elapsed.Seconds())
	if len(all) > 0 {
		fmt.Printf("Latency p50: %.2fµs  p95: %.2fµs  p99: %.2fµs\n",
			micros(percentile(all, 0.50)), micros(percentile(all, 0.95)), micros(percentile(all, 0.99)))
	}
	if total != uint64(done) {
		fmt.Printf("WARNING: counted %d of %d ops (samples crossed the retention window?)\n", total, done)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func micros(d time.Duration) float64 { return float64(d.Nanoseconds()) / 1e3 }
