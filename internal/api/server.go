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

// Package api implements the HTTP surface of the access log daemon: a
// record endpoint standing in for the filesystem-driver dispatch boundary,
// and a read endpoint for telemetry consumers.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/quark-zju/eden/accesslog"
)

// NameLookup resolves a pid to a cached executable name.
type NameLookup interface {
	Lookup(pid int32) (string, bool)
}

// Server handles the HTTP requests of the access log daemon.
type Server struct {
	log           *accesslog.AccessLog
	names         NameLookup
	defaultWindow int
}

// NewServer creates a server over log. names may be nil; defaultWindow is
// used by /accesses when the request does not specify one.
func NewServer(log *accesslog.AccessLog, names NameLookup, defaultWindow int) *Server {
	if defaultWindow <= 0 {
		defaultWindow = 10
	}
	return &Server{log: log, names: names, defaultWindow: defaultWindow}
}

// RegisterRoutes sets up the HTTP routes for the server on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/record", s.handleRecord)
	mux.HandleFunc("/accesses", s.handleAccesses)
	mux.HandleFunc("/healthz", s.handleHealthz)
}

// handleRecord counts one access for the pid in the query string. This is
// the per-request path of the demo daemon, so it does nothing beyond the
// parse and the record call.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	raw := r.URL.Query().Get("pid")
	if raw == "" {
		http.Error(w, "pid is required", http.StatusBadRequest)
		return
	}
	pid, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || pid < 0 {
		http.Error(w, "pid must be a non-negative 32-bit integer", http.StatusBadRequest)
		return
	}
	s.log.RecordAccess(int32(pid))
	w.WriteHeader(http.StatusNoContent)
}

// accessRow is one process in the /accesses response.
type accessRow struct {
	Pid   int32  `json:"pid"`
	Name  string `json:"name,omitempty"`
	Count uint64 `json:"count"`
}

type accessesResponse struct {
	Window    int         `json:"window"`
	Processes []accessRow `json:"processes"`
}

// handleAccesses returns the per-process counts over the trailing window,
// heaviest first. An explicit negative or zero window yields an empty list,
// matching the log's own contract.
func (s *Server) handleAccesses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET required", http.StatusMethodNotAllowed)
		return
	}
	window := s.defaultWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "window must be an integer", http.StatusBadRequest)
			return
		}
		window = parsed
	}

	counts := s.log.AllAccesses(window)
	rows := make([]accessRow, 0, len(counts))
	for pid, n := range counts {
		row := accessRow{Pid: pid, Count: n}
		if s.names != nil {
			row.Name, _ = s.names.Lookup(pid)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Pid < rows[j].Pid
		}
		return rows[i].Count > rows[j].Count
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(accessesResponse{Window: window, Processes: rows}); err != nil {
		// The response is already partially written; nothing sane to do.
		return
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// ListenAndServe starts the HTTP server on the specified address.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	fmt.Printf("Access log API server listening on %s\n", addr)
	return httpServer.ListenAndServe()
}
