package benchmarks

import (
	"sync"
	"time"
)

// MutexLog is the baseline the sharded log is measured against: a single
// bucket ring behind one global mutex. Every writer serializes on mu, so
// contended throughput shows the cost the per-writer shards avoid.
type MutexLog struct {
	mu      sync.Mutex
	buckets []map[int32]uint64
	latest  uint64
	started bool
	start   time.Time
}

func NewMutexLog(window int) *MutexLog {
	if window <= 0 {
		window = 64
	}
	return &MutexLog{buckets: make([]map[int32]uint64, window), start: time.Now()}
}

func (m *MutexLog) now() uint64 { return uint64(time.Since(m.start) / time.Second) }

func (m *MutexLog) Record(pid int32) {
	sec := m.now()
	m.mu.Lock()
	n := uint64(len(m.buckets))
	if m.started && m.latest+1 > n && sec < m.latest+1-n {
		m.mu.Unlock()
		return
	}
	if !m.started || sec > m.latest {
		if m.started {
			for s := m.latest + 1; s <= sec && s-m.latest <= n; s++ {
				m.buckets[s%n] = nil
			}
		}
		m.latest = sec
		m.started = true
	}
	idx := sec % n
	if m.buckets[idx] == nil {
		m.buckets[idx] = make(map[int32]uint64)
	}
	m.buckets[idx][pid]++
	m.mu.Unlock()
}

// Totals sums every retained bucket.
func (m *MutexLog) Totals() map[int32]uint64 {
	out := make(map[int32]uint64)
	m.mu.Lock()
	for _, b := range m.buckets {
		for pid, n := range b {
			out[pid] += n
		}
	}
	m.mu.Unlock()
	return out
}
