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
	"fmt"
	"time"
)

// Options carries the knobs the sink factory needs.
type Options struct {
	// RedisAddr selects a real Redis client when non-empty; the demo
	// logging client is used otherwise.
	RedisAddr string
	// RedisTTL is the expiry of published keys. 0 means one minute.
	RedisTTL time.Duration
	// KeyPrefix is the Redis key the counts hash is written under.
	// Empty means "accesslog:recent".
	KeyPrefix string
	// FilePath is where the file sink appends its JSONL snapshots.
	FilePath string
}

// BuildSink constructs a Sink from a string selector:
//   - "log" (or empty): console sink, no infrastructure needed
//   - "redis": snapshot hashes via Redis; uses a logging demo client unless
//     Options.RedisAddr is set
//   - "file": JSONL appended to Options.FilePath
//   - "none": discard
func BuildSink(kind string, opts Options) (Sink, error) {
	switch kind {
	case "", "log":
		return NewLogSink(), nil
	case "redis":
		prefix := opts.KeyPrefix
		if prefix == "" {
			prefix = "accesslog:recent"
		}
		var client RedisCommander
		if opts.RedisAddr != "" {
			client = NewGoRedisCommander(opts.RedisAddr)
		} else {
			client = LoggingRedisCommander{}
		}
		return NewRedisSink(client, prefix, opts.RedisTTL), nil
	case "file":
		if opts.FilePath == "" {
			return nil, fmt.Errorf("file sink requires a path")
		}
		return NewFileSink(opts.FilePath)
	case "none":
		return NopSink{}, nil
	default:
		return nil, fmt.Errorf("unknown export sink: %s", kind)
	}
}
