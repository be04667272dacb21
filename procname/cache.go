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

// Package procname resolves process ids to executable names and caches the
// results. The access log hands it every pid it sees; lookups hit /proc once
// per pid, immediately, because many processes are gone by the time anyone
// asks about them.
package procname

import (
	"sync"
	"time"

	"github.com/prometheus/procfs"
)

// DefaultTTL is how long an idle entry survives before the janitor drops it.
const DefaultTTL = 5 * time.Minute

type entry struct {
	name       string // empty when the lookup failed; failures are cached too
	lastAccess time.Time
}

// Cache remembers the executable name of every pid it has been told about.
// It is safe for concurrent use; its locking is independent of the access
// log's.
type Cache struct {
	mu      sync.Mutex
	entries map[int32]*entry

	// readName resolves a pid to a name. Swapped out in tests and usable as
	// a seam on platforms without /proc.
	readName func(pid int32) (string, error)

	ttl      time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Cache whose entries expire after ttl of not being seen.
// A ttl of 0 uses DefaultTTL. The returned cache runs a janitor goroutine;
// call Close to stop it.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries:  make(map[int32]*entry),
		readName: readProcName,
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.janitorLoop()
	}()
	return c
}

// Add records that pid was just seen. The first sighting resolves the
// executable name right away; later sightings only refresh the last-access
// stamp, so calling Add repeatedly for a hot pid is cheap.
func (c *Cache) Add(pid int32) {
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[pid]; ok {
		e.lastAccess = now
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// Resolve outside the lock; a /proc read is cheap but not free.
	name, err := c.readName(pid)
	if err != nil {
		name = ""
	}

	c.mu.Lock()
	if e, ok := c.entries[pid]; ok {
		// Another caller resolved it first.
		e.lastAccess = now
	} else {
		c.entries[pid] = &entry{name: name, lastAccess: now}
	}
	c.mu.Unlock()
}

// Lookup returns the cached name for pid. ok is false when the pid has never
// been added (or has already expired); an empty name with ok true means the
// pid was seen but its name could not be read.
func (c *Cache) Lookup(pid int32) (name string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[pid]
	if !ok {
		return "", false
	}
	return e.name, true
}

// All returns a copy of the current pid -> name mapping.
func (c *Cache) All() map[int32]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int32]string, len(c.entries))
	for pid, e := range c.entries {
		out[pid] = e.name
	}
	return out
}

// Close stops the janitor. Safe to call more than once.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()
}

func (c *Cache) janitorLoop() {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictIdle(time.Now())
		case <-c.stopChan:
			return
		}
	}
}

// evictIdle drops entries not seen for longer than the TTL.
func (c *Cache) evictIdle(now time.Time) {
	cutoff := now.Add(-c.ttl)
	c.mu.Lock()
	for pid, e := range c.entries {
		if e.lastAccess.Before(cutoff) {
			delete(c.entries, pid)
		}
	}
	c.mu.Unlock()
}

// readProcName resolves a pid via /proc, preferring the exe symlink and
// falling back to comm for processes whose binary path is unreadable.
func readProcName(pid int32) (string, error) {
	p, err := procfs.NewProc(int(pid))
	if err != nil {
		return "", err
	}
	if exe, err := p.Executable(); err == nil && exe != "" {
		return exe, nil
	}
	return p.Comm()
}
