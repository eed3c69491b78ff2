// Package httpapi exposes the refresh trigger and the progress poll over
// plain HTTP for a local client to drive.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/mukuzz/myfi-sub000/internal/progress"
)

// Refresher is the slice of the refresh coordinator the API needs.
type Refresher interface {
	TriggerRefresh()
	Status() progress.AggregatedStatus
}

// Server routes the two operational endpoints plus a health probe.
type Server struct {
	refresher Refresher
	mux       *http.ServeMux
}

// NewServer builds the HTTP handler around a refresh coordinator.
func NewServer(refresher Refresher) *Server {
	s := &Server{refresher: refresher, mux: http.NewServeMux()}
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/refresh/status", s.handleStatus)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.refresher.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.refresher.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("WARNING: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
