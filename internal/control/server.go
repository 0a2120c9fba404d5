package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serviceName and serviceVersion identify this engine on GET /.
const (
	serviceName    = "chainwatch"
	serviceVersion = "0.1.0"
)

// Server exposes the Supervisor's control-plane contract over HTTP.
type Server struct {
	supervisor *Supervisor
	runCtx     context.Context
	server     *http.Server
}

// NewServer builds the control-plane HTTP server on the given port. runCtx
// is the parent context a /start request's run lives under — it must
// outlive the HTTP request that triggers Start, so the run isn't canceled
// the moment the response is written. It does not start listening until
// Start is called.
func NewServer(supervisor *Supervisor, runCtx context.Context, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		supervisor: supervisor,
		runCtx:     runCtx,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/backfill-progress", s.handleBackfillProgress)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"name": serviceName, "version": serviceVersion})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result, reason := s.supervisor.Start(s.runCtx)
	switch result {
	case StartAlreadyRunning:
		writeJSON(w, http.StatusConflict, map[string]string{"error": string(result)})
	case StartRejected:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": reason})
	default:
		startedAt, _, _ := s.supervisor.RunInfo()
		writeJSON(w, http.StatusOK, map[string]time.Time{"started_at": startedAt})
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result := s.supervisor.Stop()
	if result == StopNotRunning {
		writeJSON(w, http.StatusConflict, map[string]string{"error": string(result)})
		return
	}
	_, stoppedAt, reason := s.supervisor.RunInfo()
	writeJSON(w, http.StatusOK, map[string]any{"stopped_at": stoppedAt, "reason": reason})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.supervisor.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.supervisor.Health())
}

func (s *Server) handleBackfillProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.supervisor.BackfillProgress())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
