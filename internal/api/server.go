// Package api provides the HTTP API for observing the simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/npcsim/internal/agents"
	"github.com/talgya/npcsim/internal/engine"
	"github.com/talgya/npcsim/internal/metrics"
	"github.com/talgya/npcsim/internal/persistence"
	"github.com/talgya/npcsim/internal/world"
)

const (
	maxStreamConns = 8
	maxEventLimit  = 500
	maxSpeed       = 1000
)

// Server serves the simulation state over HTTP.
type Server struct {
	Sim             *engine.Simulation
	Eng             *engine.Engine
	DB              *persistence.DB // nil disables POST /snapshot
	Addr            string
	AdminKey        string // Bearer token for POST endpoints. Empty = POST disabled.
	CORSOrigins     []string
	ObserveInterval time.Duration
	StreamsPerHour  int

	streamConns atomic.Int32
	upgrader    websocket.Upgrader
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	if s.ObserveInterval <= 0 {
		s.ObserveInterval = 500 * time.Millisecond
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     s.originAllowed,
	}
	streamLimiter := NewRateLimiter(s.StreamsPerHour, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/agents", s.handleAgents)
	mux.HandleFunc("GET /api/v1/agent/{id}", s.handleAgent)
	mux.HandleFunc("GET /api/v1/objects", s.handleObjects)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.Handle("GET /debug/vars", expvar.Handler())

	// Long-lived streams.
	mux.HandleFunc("GET /api/v1/stream", RateLimitMiddleware(streamLimiter, s.handleStream))
	mux.HandleFunc("GET /api/v1/observe", RateLimitMiddleware(streamLimiter, s.handleObserve))

	// Admin endpoints.
	mux.HandleFunc("GET /api/v1/speed", s.handleSpeed)
	mux.HandleFunc("POST /api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("POST /api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return countRequests(s.corsMiddleware(mux))
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.Inc(metrics.APIRequests)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.CORSOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// corsMiddleware adds CORS headers for the configured frontend origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && token == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no api.admin_key set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Stats()
	status := map[string]any{
		"name":     s.Sim.Name,
		"tick":     st.Tick,
		"sim_time": st.SimTime,
		"agents":   st.Agents,
		"objects":  st.Objects,
		"events":   st.Events,
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["tick_rate"] = int(time.Second / s.Eng.Step)
	}
	writeJSON(w, status)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	type agentSummary struct {
		ID          world.ObjectID     `json:"id"`
		Name        string             `json:"name"`
		State       string             `json:"state"`
		Plan        string             `json:"plan"`
		Position    [3]float64         `json:"position"`
		Needs       map[string]float64 `json:"needs"`
		UrgentNeeds []string           `json:"urgent_needs,omitempty"`
		Inventory   int                `json:"inventory"`
		Memories    int                `json:"memories"`
		Recovering  bool               `json:"recovering,omitempty"`
	}

	state := r.URL.Query().Get("state")
	result := []agentSummary{}
	for _, snap := range s.Sim.Snapshots() {
		if state != "" && snap.State != state {
			continue
		}
		result = append(result, agentSummary{
			ID:          snap.ID,
			Name:        snap.Name,
			State:       snap.State,
			Plan:        snap.Plan,
			Position:    [3]float64{snap.Position.X, snap.Position.Y, snap.Position.Z},
			Needs:       snap.Needs,
			UrgentNeeds: snap.UrgentNeeds,
			Inventory:   len(snap.Inventory),
			Memories:    len(snap.Memories),
			Recovering:  snap.Recovering,
		})
	}
	writeJSON(w, result)
}

// handleAgent looks an agent up by ID, falling back to its name.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if snap, ok := s.Sim.Snapshot(world.ObjectID(id)); ok {
		writeJSON(w, snap)
		return
	}
	for _, snap := range s.Sim.Snapshots() {
		if strings.EqualFold(snap.Name, id) {
			writeJSON(w, snap)
			return
		}
	}
	http.Error(w, "agent not found", http.StatusNotFound)
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	objs := s.Sim.Objects()
	if objs == nil {
		objs = []engine.ObjectView{}
	}
	writeJSON(w, objs)
}

// eventView is the wire form of an agent event.
type eventView struct {
	At      float64        `json:"at"` // simulated seconds
	SimTime string         `json:"sim_time"`
	AgentID world.ObjectID `json:"agent_id"`
	Agent   string         `json:"agent"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
}

func viewEvent(e agents.Event) eventView {
	return eventView{
		At:      e.At.Seconds(),
		SimTime: engine.SimTime(e.At),
		AgentID: e.AgentID,
		Agent:   e.Agent,
		Kind:    string(e.Kind),
		Message: e.Message,
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= maxEventLimit {
			limit = n
		}
	}
	agent := world.ObjectID(r.URL.Query().Get("agent"))
	kind := r.URL.Query().Get("kind")

	result := []eventView{}
	for _, e := range s.Sim.RecentEvents(0, agent) {
		if kind != "" && string(e.Kind) != kind {
			continue
		}
		result = append(result, viewEvent(e))
		if len(result) == limit {
			break
		}
	}
	writeJSON(w, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Stats())
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > maxSpeed {
			http.Error(w, fmt.Sprintf("speed must be 0-%d", maxSpeed), http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.SaveWorldState(s.Sim); err != nil {
		metrics.Inc(metrics.SaveErrors)
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	metrics.Inc(metrics.SavesTotal)

	writeJSON(w, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "snapshot saved",
	})
}

// acquireStream enforces the concurrent stream limit. The returned func
// releases the slot.
func (s *Server) acquireStream(w http.ResponseWriter) (func(), bool) {
	if s.streamConns.Add(1) > maxStreamConns {
		s.streamConns.Add(-1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return nil, false
	}
	return func() { s.streamConns.Add(-1) }, true
}

// handleStream pushes agent events as server-sent events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	release, ok := s.acquireStream(w)
	if !ok {
		return
	}
	defer release()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	agent := world.ObjectID(r.URL.Query().Get("agent"))
	ch, cancel := s.Sim.Subscribe(256)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Catch-up: the last 50 events, oldest first.
	recent := s.Sim.RecentEvents(50, agent)
	for i := len(recent) - 1; i >= 0; i-- {
		writeSSEEvent(w, recent[i])
	}
	flusher.Flush()

	slog.Debug("SSE client connected", "remote", clientIP(r))

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if agent != "" && e.AgentID != agent {
				continue
			}
			writeSSEEvent(w, e)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Debug("SSE client disconnected", "remote", clientIP(r))
			return
		}
	}
}

// writeSSEEvent writes a single event in SSE format.
func writeSSEEvent(w http.ResponseWriter, e agents.Event) {
	data, err := json.Marshal(viewEvent(e))
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
}

// ObserveFrame is one websocket push.
type ObserveFrame struct {
	Type    string            `json:"type"` // "snapshot"
	Tick    uint64            `json:"tick"`
	SimTime string            `json:"sim_time"`
	Agents  []agents.Snapshot `json:"agents"`
}

// handleObserve upgrades to a websocket and pushes agent snapshots every
// ObserveInterval. ?agent= restricts the frame to one agent.
func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	release, ok := s.acquireStream(w)
	if !ok {
		return
	}
	defer release()

	agent := world.ObjectID(r.URL.Query().Get("agent"))
	interval := s.ObserveInterval
	if v := r.URL.Query().Get("interval"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= s.ObserveInterval {
			interval = d
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: drain control frames and notice the client leaving.
	go func() {
		defer cancel()
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.writeFrame(conn, agent); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, agent world.ObjectID) error {
	frame := ObserveFrame{Type: "snapshot", Tick: s.Sim.CurrentTick()}
	if agent != "" {
		if snap, ok := s.Sim.Snapshot(agent); ok {
			frame.Agents = []agents.Snapshot{snap}
		}
	} else {
		frame.Agents = s.Sim.Snapshots()
	}
	frame.SimTime = s.Sim.Stats().SimTime

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(frame)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
