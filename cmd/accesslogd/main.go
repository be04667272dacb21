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

// Package main provides the entry point for the access log daemon.
//
// The daemon is a runnable demonstration of the core accounting library
// (`accesslog`). It stands in for a filesystem driver: every POST /record is
// one dispatched filesystem request attributed to a client pid, counted on
// the sharded hot path in nanoseconds. The rare read side is served three
// ways: a JSON endpoint (GET /accesses), a Prometheus collector, and a
// periodic exporter that fans snapshots out to a sink (console, Redis, or a
// JSONL file).
//
// This file is responsible for orchestrating the service:
//  1. Initializing the core components (name cache, access log, sink).
//  2. Registering the Prometheus collector and starting the metrics server.
//  3. Starting the background exporter and the API server.
//  4. Managing graceful shutdown so the last partial interval is flushed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quark-zju/eden/accesslog"
	"github.com/quark-zju/eden/internal/api"
	"github.com/quark-zju/eden/internal/export"
	"github.com/quark-zju/eden/internal/telemetry"
	"github.com/quark-zju/eden/plugin/hotpid"
	"github.com/quark-zju/eden/procname"
)

func main() {
	// Configuration flags. The retention window bounds how far back any read
	// can see; the export window is what the periodic snapshots cover.
	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address for /record and /accesses (e.g., :8080)")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	retention := flag.Int("retention", accesslog.DefaultWindow, "Seconds of per-second history to retain")
	exportWindow := flag.Int("export_window", 10, "Trailing window in seconds covered by periodic exports and /metrics")
	exportInterval := flag.Duration("export_interval", 10*time.Second, "How often the background exporter publishes a snapshot")
	exportSink := flag.String("export_sink", "log", "Snapshot sink: log, redis, file, or none")
	exportFile := flag.String("export_file", "", "Path the file sink appends JSONL snapshots to")
	redisAddr := flag.String("redis_addr", "", "Redis address for the redis sink; empty uses a logging demo client")
	redisTTL := flag.Duration("redis_ttl", time.Minute, "Expiry of snapshot keys written by the redis sink")
	keyPrefix := flag.String("redis_key_prefix", "accesslog:recent", "Redis key the counts hash is written under")
	nameTTL := flag.Duration("name_ttl", procname.DefaultTTL, "How long an idle pid keeps its cached executable name")
	topN := flag.Int("top_n", 10, "Top N processes to print with each export; 0 disables the console list")
	hotHigh := flag.Uint64("hot_threshold", 0, "Accesses per export window that mark a process hot; 0 disables hot-process detection")
	hotLow := flag.Uint64("hot_low_watermark", 0, "Accesses per export window below which a hot process cools down; 0 uses hot_threshold/2")
	flag.Parse()

	// 1. Initialize core components. The name cache is handed to the access
	// log as its resolver, so every newly seen pid gets its executable name
	// read from /proc while the process is still likely alive.
	names := procname.New(*nameTTL)
	accessLog := accesslog.New(names, accesslog.Options{Window: *retention})

	sink, err := export.BuildSink(*exportSink, export.Options{
		RedisAddr: *redisAddr,
		RedisTTL:  *redisTTL,
		KeyPrefix: *keyPrefix,
		FilePath:  *exportFile,
	})
	if err != nil {
		log.Fatalf("Invalid export configuration: %v", err)
	}
	baseSink := sink
	if *hotHigh > 0 {
		sink = hotpid.NewObservingSink(sink, hotpid.NewClassifier(*hotHigh, *hotLow))
	}

	// 2. Register the Prometheus collector and start the metrics server when
	// requested. The collector reads the log on every scrape, which is the
	// rare path the library is built to tolerate.
	if *metricsAddr != "" {
		prometheus.MustRegister(telemetry.NewCollector(accessLog, names, *exportWindow))
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			fmt.Printf("Prometheus metrics listening on %s\n", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, metricsMux); err != nil {
				log.Fatalf("Could not serve metrics on %s: %v\n", *metricsAddr, err)
			}
		}()
	}

	// 3. Create and start the background exporter. It snapshots the trailing
	// window on an interval and performs one final flush on Stop.
	exporter := telemetry.NewExporter(accessLog, names, sink, *exportWindow, *exportInterval, *topN)
	exporter.Start()

	// 4. Set up the HTTP server and routes. The http.Server instance lives in
	// main so shutdown can be coordinated with the exporter's final flush.
	apiServer := api.NewServer(accessLog, names, *exportWindow)
	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:         *httpAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 5. Start the HTTP server in a separate goroutine so it doesn't block.
	go func() {
		fmt.Printf("Access log API server listening on %s\n", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", *httpAddr, err)
		}
	}()

	// 6. Wait for an OS signal.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nShutting down server...")

	// 7. Stop accepting traffic first, then flush. The exporter's Stop
	// publishes one last snapshot covering the trailing partial interval.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	exporter.Stop()
	if c, ok := baseSink.(io.Closer); ok {
		_ = c.Close()
	}
	accessLog.Close()
	names.Close()

	fmt.Println("Server gracefully stopped.")
}
