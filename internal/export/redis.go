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

package export

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisCommander abstracts the minimal Redis surface the sink needs.
// Implementations may wrap github.com/redis/go-redis/v9 or any equivalent;
// tests use an in-memory fake.
type RedisCommander interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisSink publishes each snapshot as a pair of Redis hashes:
//
//	<prefix>        field=pid  value=count
//	<prefix>:names  field=pid  value=executable name (only resolved pids)
//
// Both keys are rewritten on every publish and carry a TTL so a stopped
// daemon leaves no stale counters behind.
type RedisSink struct {
	client    RedisCommander
	keyPrefix string
	ttl       time.Duration
}

// NewRedisSink returns a sink writing under keyPrefix with the given TTL.
// The TTL should be comfortably larger than the export interval.
func NewRedisSink(client RedisCommander, keyPrefix string, ttl time.Duration) *RedisSink {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisSink{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *RedisSink) Publish(ctx context.Context, snap Snapshot) error {
	countsKey := s.keyPrefix
	namesKey := s.keyPrefix + ":names"

	// Rewrite from scratch: pids that left the window must not linger.
	if err := s.client.Del(ctx, countsKey, namesKey); err != nil {
		return fmt.Errorf("redis sink: clearing %s: %w", countsKey, err)
	}
	if len(snap.Counts) == 0 {
		return nil
	}

	counts := make(map[string]string, len(snap.Counts))
	names := make(map[string]string)
	for pid, n := range snap.Counts {
		field := strconv.FormatInt(int64(pid), 10)
		counts[field] = strconv.FormatUint(n, 10)
		if name := snap.Names[pid]; name != "" {
			names[field] = name
		}
	}

	if err := s.client.HSet(ctx, countsKey, counts); err != nil {
		return fmt.Errorf("redis sink: writing %s: %w", countsKey, err)
	}
	if err := s.client.Expire(ctx, countsKey, s.ttl); err != nil {
		return fmt.Errorf("redis sink: expiring %s: %w", countsKey, err)
	}
	if len(names) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, namesKey, names); err != nil {
		return fmt.Errorf("redis sink: writing %s: %w", namesKey, err)
	}
	if err := s.client.Expire(ctx, namesKey, s.ttl); err != nil {
		return fmt.Errorf("redis sink: expiring %s: %w", namesKey, err)
	}
	return nil
}

// GoRedisCommander is a production RedisCommander backed by
// github.com/redis/go-redis/v9. Construct with NewGoRedisCommander and an
// address like "127.0.0.1:6379".
type GoRedisCommander struct{ c *redis.Client }

func NewGoRedisCommander(addr string) *GoRedisCommander {
	return &GoRedisCommander{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisCommander) HSet(ctx context.Context, key string, fields map[string]string) error {
	return g.c.HSet(ctx, key, fields).Err()
}

func (g *GoRedisCommander) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return g.c.Expire(ctx, key, ttl).Err()
}

func (g *GoRedisCommander) Del(ctx context.Context, keys ...string) error {
	return g.c.Del(ctx, keys...).Err()
}

// LoggingRedisCommander is a tiny demo client that just logs the commands.
// It lets the daemon select the Redis sink without a real Redis.
// Not for production use.
type LoggingRedisCommander struct{}

func (LoggingRedisCommander) HSet(ctx context.Context, key string, fields map[string]string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[redis-demo] HSET %s fields=%d\n", key, len(fields))
	return nil
}

func (LoggingRedisCommander) Expire(ctx context.Context, key string, ttl time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[redis-demo] EXPIRE %s %s\n", key, ttl)
	return nil
}

func (LoggingRedisCommander) Del(ctx context.Context, keys ...string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[redis-demo] DEL %v\n", keys)
	return nil
}
