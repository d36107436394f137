package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/walletwatch/internal/indexing/scheduler"
)

// JobLister exposes scheduler job status.
type JobLister interface {
	Status() []scheduler.JobStatus
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	monitor *Monitor
	jobs    JobLister
	server  *http.Server
}

// NewServer creates a new health server listening on addr. jobs may be nil.
func NewServer(monitor *Monitor, jobs JobLister, addr string) *Server {
	s := &Server{monitor: monitor, jobs: jobs}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.HandleFunc("GET /health/chains/{chain}", s.handleChain)
	mux.HandleFunc("GET /jobs", s.handleJobs)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusCode maps critical to 503 so load balancers and probes see it.
func statusCode(status SystemStatus) int {
	if status == StatusCritical {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := Aggregate(s.monitor.CheckHealth(r.Context()))
	writeJSON(w, statusCode(status), map[string]string{"status": string(status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	chains := s.monitor.CheckHealth(r.Context())
	status := Aggregate(chains)
	writeJSON(w, statusCode(status), HealthReport{SystemStatus: status, Chains: chains})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	h, ok := s.monitor.CheckHealth(r.Context())[r.PathValue("chain")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown chain"})
		return
	}
	writeJSON(w, statusCode(h.Status), h)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeJSON(w, http.StatusOK, []scheduler.JobStatus{})
		return
	}
	writeJSON(w, http.StatusOK, s.jobs.Status())
}
