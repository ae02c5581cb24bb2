package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npcsim/internal/agents"
	"github.com/talgya/npcsim/internal/engine"
	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/persistence"
	"github.com/talgya/npcsim/internal/world"
)

const adminKey = "test-admin-key"

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	sim := engine.NewSimulation("village", nil, nil, 100)
	pantry := world.NewEntity("pantry", "Pantry", "station", geom.V(0, 0, 3)).
		WithInteractable(world.NewStation(world.DefaultStationSpec()))
	require.NoError(t, sim.Registry.Add(pantry))

	cfg := agents.DefaultConfig()
	cfg.Debug.Log = false
	for _, name := range []string{"Ada", "Bo"} {
		a := agents.New(agents.Spec{
			ID:     world.ObjectID("agent-" + strings.ToLower(name)),
			Name:   name,
			Needs:  map[world.NeedType]float64{world.NeedHunger: 30},
			Config: cfg,
			Sink:   sim,
		})
		require.NoError(t, sim.AddAgent(a))
	}
	sim.Publish(agents.Event{At: time.Second, AgentID: "agent-ada", Agent: "Ada", Kind: agents.EventDiscovery, Message: "Discovered Pantry"})
	sim.Publish(agents.Event{At: 2 * time.Second, AgentID: "agent-bo", Agent: "Bo", Kind: agents.EventStuck, Message: "Stuck"})

	db, err := persistence.Open(filepath.Join(t.TempDir(), "npcsim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := &Server{
		Sim:             sim,
		Eng:             engine.NewEngine(10),
		DB:              db,
		AdminKey:        adminKey,
		CORSOrigins:     []string{"http://localhost:5173"},
		ObserveInterval: 20 * time.Millisecond,
		StreamsPerHour:  100,
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func post(t *testing.T, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestReadEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	var status map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/status", &status))
	assert.Equal(t, "village", status["name"])
	assert.EqualValues(t, 2, status["agents"])
	assert.EqualValues(t, 10, status["tick_rate"])

	var list []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/agents", &list))
	assert.Len(t, list, 2)

	var snap agents.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/agent/agent-ada", &snap))
	assert.Equal(t, "Ada", snap.Name)
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/agent/bo", &snap))
	assert.Equal(t, world.ObjectID("agent-bo"), snap.ID)
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/agent/nobody", nil))

	var objs []engine.ObjectView
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/objects", &objs))
	require.Len(t, objs, 1)
	assert.Equal(t, "Pantry", objs[0].Name)

	var stats engine.SimStats
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/stats", &stats))
	assert.Equal(t, 2, stats.Agents)
	assert.Equal(t, uint64(2), stats.Events)
}

func TestEventsFilters(t *testing.T) {
	_, ts := newTestServer(t)

	var evs []eventView
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/events", &evs))
	require.Len(t, evs, 2)
	assert.Equal(t, "Bo", evs[0].Agent, "newest first")

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/events?agent=agent-ada", &evs))
	require.Len(t, evs, 1)
	assert.Equal(t, "discovery", evs[0].Kind)
	assert.Equal(t, 1.0, evs[0].At)

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/events?limit=1", &evs))
	assert.Len(t, evs, 1)

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/events?kind=stuck", &evs))
	require.Len(t, evs, 1)
	assert.Equal(t, "Bo", evs[0].Agent)
}

func TestAdminEndpoints(t *testing.T) {
	s, ts := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, post(t, ts.URL+"/api/v1/speed", "", `{"speed":5}`).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, post(t, ts.URL+"/api/v1/speed", "wrong", `{"speed":5}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/api/v1/speed", adminKey, `{"speed":5000}`).StatusCode)
	assert.Equal(t, http.StatusOK, post(t, ts.URL+"/api/v1/speed", adminKey, `{"speed":5}`).StatusCode)
	assert.Equal(t, 5.0, s.Eng.Speed())

	resp := post(t, ts.URL+"/api/v1/snapshot", adminKey, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, s.DB.HasWorldState())
	rows, err := s.DB.LoadAgents()
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	s.AdminKey = ""
	assert.Equal(t, http.StatusForbidden, post(t, ts.URL+"/api/v1/snapshot", "", "").StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/speed", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStreamSendsCatchUpAndLiveEvents(t *testing.T) {
	s, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	var kinds []string
	for sc.Scan() {
		if kind, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			kinds = append(kinds, kind)
			if len(kinds) == 2 {
				s.Sim.Publish(agents.Event{At: 3 * time.Second, AgentID: "agent-ada", Agent: "Ada", Kind: agents.EventPickup})
			}
			if len(kinds) == 3 {
				break
			}
		}
	}
	assert.Equal(t, []string{"discovery", "stuck", "pickup"}, kinds)
}

func TestObserveWebsocket(t *testing.T) {
	_, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/observe?agent=agent-ada"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for range 2 {
		var frame ObserveFrame
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&frame))
		assert.Equal(t, "snapshot", frame.Type)
		require.Len(t, frame.Agents, 1)
		assert.Equal(t, "Ada", frame.Agents[0].Name)
	}
}

func TestExpvarEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	var vars map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/debug/vars", &vars))
	assert.Contains(t, vars, "npcsim_api_requests_total")
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))
	assert.Equal(t, 61, rl.RetryAfter("1.2.3.4"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"))

	assert.True(t, NewRateLimiter(0, time.Minute).Allow("x"))
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	h := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
