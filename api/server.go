package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mysqlwire/mysqlwire/config"
	"github.com/mysqlwire/mysqlwire/metrics"
	"github.com/mysqlwire/mysqlwire/pool"
)

// Server is the admin REST API and metrics server for a single MySQL
// connection pool (§11 Domain stack: gorilla/mux + promhttp).
type Server struct {
	pool      *pool.Pool
	metrics   *metrics.Collector
	cfg       *config.Config

	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates a new admin API server.
func NewServer(p *pool.Pool, m *metrics.Collector, cfg *config.Config) *Server {
	return &Server{
		pool:      p,
		metrics:   m,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// Start begins serving on bind:port.
func (s *Server) Start(bind string, port int) error {
	r := mux.NewRouter()

	r.HandleFunc("/pool/stats", s.poolStatsHandler).Methods("GET")
	r.HandleFunc("/pool/drain", s.poolDrainHandler).Methods("POST")
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/config", s.configHandler).Methods("GET")
	r.HandleFunc("/healthz", s.healthzHandler).Methods("GET")

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.HandleFunc("/", s.dashboardHandler).Methods("GET")
	r.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%d", bind, port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("[api] admin API listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) poolStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Stats())
}

func (s *Server) poolDrainHandler(w http.ResponseWriter, r *http.Request) {
	s.pool.Drain()
	log.Printf("[api] pool drain requested")
	writeJSON(w, http.StatusOK, map[string]string{"status": "drained"})
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	if stats.Total == 0 && stats.MinConnections > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
		"pool":           s.pool.Stats(),
	})
}

func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	redacted := map[string]config.TargetConfig{}
	for name, t := range s.cfg.Targets {
		redacted[name] = t.Redacted()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"targets": redacted,
		"pool":    s.cfg.Pool,
		"api":     s.cfg.API,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
