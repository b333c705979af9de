// Package api exposes nasguard's HTTP surface: the current report,
// Prometheus metrics, a feedback endpoint agents learn from, and a
// websocket stream that pushes each new report as it's generated.
package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/nasguard/nasguard/internal/agent"
	"github.com/nasguard/nasguard/internal/auth"
	"github.com/nasguard/nasguard/internal/report"
	"github.com/nasguard/nasguard/internal/store"
)

// AgentRegistry resolves an agent by name so feedback can be routed
// to the agent that actually owns the learning state.
type AgentRegistry interface {
	AgentByName(name string) (agent.Agent, bool)
}

// Server is nasguard's HTTP API.
type Server struct {
	hashedToken string
	agents      AgentRegistry

	mu     sync.RWMutex
	latest report.Report

	hub *hub

	mux *http.ServeMux
}

// NewServer builds a Server that authenticates requests against
// hashedToken (the output of auth.HashAPIToken), empty to disable
// auth entirely (e.g. in local development).
func NewServer(hashedToken string, agents AgentRegistry) *Server {
	s := &Server{
		hashedToken: hashedToken,
		agents:      agents,
		hub:         newHub(),
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/report", s.authenticated(s.handleReport))
	s.mux.HandleFunc("/feedback", s.authenticated(s.handleFeedback))
	s.mux.HandleFunc("/ws", s.authenticated(s.handleWebsocket))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.hashedToken == "" {
			next(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" || !auth.CompareAPIToken(token, s.hashedToken) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SetReport updates the report served by /report and pushed to any
// connected websocket client.
func (s *Server) SetReport(r report.Report) {
	s.mu.Lock()
	s.latest = r
	s.mu.Unlock()

	payload, err := json.Marshal(r)
	if err != nil {
		log.Error().Err(err).Msg("api: failed to marshal report for websocket push")
		return
	}
	s.hub.broadcast(payload)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	current := s.latest
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(current); err != nil {
		log.Error().Err(err).Msg("api: failed to encode report")
	}
}

type feedbackRequest struct {
	Agent     string         `json:"agent"`
	AlertType string         `json:"alert_type"`
	Kind      string         `json:"kind"`
	Context   map[string]any `json:"context"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	a, ok := s.agents.AgentByName(req.Agent)
	if !ok {
		http.Error(w, "unknown agent", http.StatusNotFound)
		return
	}

	ctx, err := storeContextFrom(req.Context)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fb := agent.Feedback{AlertType: req.AlertType, Kind: store.FeedbackKind(req.Kind), Context: ctx}

	var feedbackErr error
	switch fb.Kind {
	case store.FeedbackTooSensitive, store.FeedbackTooLate:
		feedbackErr = a.ReceiveUserFeedback(fb)
	default:
		feedbackErr = a.AddFeedbackWithContext(fb)
	}
	if feedbackErr != nil {
		http.Error(w, "failed to record feedback", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("api: websocket upgrade failed")
		return
	}
	s.hub.register(conn)
}
