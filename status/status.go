// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package status serves the status and the metrics of a collector over HTTP.
package status

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/giadasql/IoT-Project/collector"
	"github.com/giadasql/IoT-Project/registry"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Source of the status
type Source interface {
	Identity() string
	State() collector.State
	LastPublish() time.Time
	Registry() *registry.Registry
}

// System status of the host
type System struct {
	Load1         float64 `json:"load_1"`
	Load5         float64 `json:"load_5"`
	Load15        float64 `json:"load_15"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Response of the status endpoint
type Response struct {
	CollectorAddress string            `json:"collector_address"`
	State            string            `json:"state"`
	BinID            string            `json:"bin_id"`
	Endpoints        map[string]string `json:"endpoints"`
	LastPublish      *time.Time        `json:"last_publish,omitempty"`
	System           *System           `json:"system,omitempty"`
}

// Server serves /status and /metrics
type Server struct {
	ctx    log.Interface
	source Source

	mu         sync.Mutex
	accessKeys []string
	srv        *http.Server
}

// New returns a new status Server
func New(ctx log.Interface, source Source) *Server {
	return &Server{
		ctx:    ctx.WithField("Component", "Status"),
		source: source,
	}
}

// AddAccessKey adds an access key for a client. Without access keys, the status is public.
func (s *Server) AddAccessKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessKeys = append(s.accessKeys, key)
}

func (s *Server) authorized(r *http.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.accessKeys) == 0 {
		return true
	}
	key := strings.TrimPrefix(r.Header.Get("Authorization"), "Key ")
	for _, allowed := range s.accessKeys {
		if key == allowed {
			return true
		}
	}
	return false
}

func system() *System {
	avg, err := load.Avg()
	if err != nil {
		return nil
	}
	system := &System{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
	if vm, err := mem.VirtualMemory(); err == nil {
		system.MemoryPercent = vm.UsedPercent
	}
	return system
}

// GetStatus returns the current status
func (s *Server) GetStatus() *Response {
	reg := s.source.Registry()
	res := &Response{
		CollectorAddress: s.source.Identity(),
		State:            s.source.State().String(),
		BinID:            reg.BinID(),
		Endpoints:        make(map[string]string),
		System:           system(),
	}
	for role, endpoint := range reg.Endpoints() {
		res.Endpoints[role.Key()] = endpoint.URI
	}
	if last := s.source.LastPublish(); !last.IsZero() {
		res.LastPublish = &last
	}
	return res
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.GetStatus()); err != nil {
		s.ctx.WithError(err).Warn("Could not write status")
	}
}

// Handler returns the HTTP handler of the Server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start listening on the given address
func (s *Server) Start(address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.srv = &http.Server{Handler: s.Handler()}
	srv := s.srv
	s.mu.Unlock()
	s.ctx.WithField("Address", lis.Addr().String()).Info("Serving status")
	go func() {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.ctx.WithError(err).Warn("Status server stopped")
		}
	}()
	return nil
}

// Stop the Server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
