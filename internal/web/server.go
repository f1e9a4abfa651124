// Package web provides an HTTP status server for the relay-clock daemon.
package web

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/relay-clock/internal/journal"
	"github.com/sweeney/relay-clock/internal/status"
)

// History returns recorded cycles, newest first.
type History interface {
	Recent(limit int) ([]journal.Entry, error)
}

const (
	defaultCycleLimit = 60
	maxCycleLimit     = 1440
)

// Server is the daemon's status endpoint. ListenAndServe and Shutdown come
// from the embedded http.Server.
type Server struct {
	*http.Server
	tracker *status.Tracker
	history History
}

// New creates a Server that reads state from the given tracker. history
// may be nil when no journal is configured.
func New(addr string, tracker *status.Tracker, history History) *Server {
	s := &Server{tracker: tracker, history: history}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /cycles.json", s.handleCycles)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.Server = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}

	limit := defaultCycleLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxCycleLimit)
	}

	entries, err := s.history.Recent(limit)
	if err != nil {
		log.Printf("web: read journal: %v", err)
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Cycles []journal.Entry `json:"cycles"`
	}{entries})
}
