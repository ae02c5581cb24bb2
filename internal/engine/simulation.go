// Simulation ties together the world and its agents and runs them each tick.
package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/talgya/npcsim/internal/agents"
	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

// DefaultMaxEvents bounds the recent event buffer.
const DefaultMaxEvents = 1000

// Simulation holds the complete world state.
type Simulation struct {
	Name       string
	Registry   *world.Registry
	Sensor     *world.Sensor
	Agents     []*agents.Agent
	AgentIndex map[world.ObjectID]*agents.Agent
	Spawner    *agents.Spawner

	LastTick uint64        // Most recent tick processed
	Now      time.Duration // Simulated time of the last tick

	mu sync.RWMutex

	evMu      sync.Mutex
	maxEvents int
	events    []agents.Event // oldest first
	published uint64         // total events ever published
	subs      map[chan agents.Event]struct{}
	sinks     []agents.EventSink
}

// NewSimulation creates an empty simulation over a registry and sensor.
func NewSimulation(name string, reg *world.Registry, sensor *world.Sensor, maxEvents int) *Simulation {
	if reg == nil {
		reg = world.NewRegistry()
	}
	if sensor == nil {
		sensor = world.NewSensor(world.FlatTerrain(0))
	}
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Simulation{
		Name:       name,
		Registry:   reg,
		Sensor:     sensor,
		AgentIndex: make(map[world.ObjectID]*agents.Agent),
		maxEvents:  maxEvents,
		subs:       make(map[chan agents.Event]struct{}),
	}
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastTick
}

// AddAgent registers an agent so it ticks and can be perceived by others.
func (s *Simulation) AddAgent(a *agents.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Registry.Add(a); err != nil {
		return fmt.Errorf("add agent %s: %w", a.Name(), err)
	}
	s.Agents = append(s.Agents, a)
	s.AgentIndex[a.ID()] = a
	return nil
}

// RemoveAgent despawns an agent and drops it from the world.
func (s *Simulation) RemoveAgent(id world.ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.AgentIndex[id]
	if !ok {
		return false
	}
	a.Despawn()
	s.Registry.Remove(id)
	delete(s.AgentIndex, id)
	for i, other := range s.Agents {
		if other == a {
			s.Agents = append(s.Agents[:i], s.Agents[i+1:]...)
			break
		}
	}
	return true
}

// Tick advances every agent one step, in insertion order.
func (s *Simulation) Tick(tick uint64, now, dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastTick = tick
	s.Now = now

	env := agents.Env{Registry: s.Registry, Sensor: s.Sensor}
	for _, a := range s.Agents {
		a.Tick(env, now, dt)
	}
}

// ── events ───────────────────────────────────────────────────────────

// Publish records an agent event and fans it out. Slow subscribers miss
// events rather than stall the tick.
func (s *Simulation) Publish(ev agents.Event) {
	s.evMu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.maxEvents {
		// Trim old events to prevent unbounded growth.
		s.events = append(s.events[:0], s.events[len(s.events)-s.maxEvents:]...)
	}
	s.published++
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	sinks := s.sinks
	s.evMu.Unlock()

	for _, sink := range sinks {
		sink.Publish(ev)
	}
}

// AddSink forwards every published event to sink as well.
func (s *Simulation) AddSink(sink agents.EventSink) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Subscribe returns a channel receiving new events and a cancel func.
func (s *Simulation) Subscribe(buffer int) (<-chan agents.Event, func()) {
	ch := make(chan agents.Event, max(1, buffer))
	s.evMu.Lock()
	s.subs[ch] = struct{}{}
	s.evMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.evMu.Lock()
			delete(s.subs, ch)
			s.evMu.Unlock()
			close(ch)
		})
	}
}

// RecentEvents returns up to limit events, newest first, optionally only
// those of one agent.
func (s *Simulation) RecentEvents(limit int, agent world.ObjectID) []agents.Event {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	var out []agents.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if agent != "" && ev.AgentID != agent {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// EventsSince returns the buffered events published after the cursor,
// oldest first, and the new cursor. Events that already fell out of the
// buffer are skipped.
func (s *Simulation) EventsSince(cursor uint64) ([]agents.Event, uint64) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if cursor >= s.published {
		return nil, s.published
	}
	n := min(int(s.published-cursor), len(s.events))
	out := make([]agents.Event, n)
	copy(out, s.events[len(s.events)-n:])
	return out, s.published
}

// ── views ────────────────────────────────────────────────────────────

// Snapshots captures every agent.
func (s *Simulation) Snapshots() []agents.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agents.Snapshot, 0, len(s.Agents))
	for _, a := range s.Agents {
		out = append(out, a.Snapshot())
	}
	return out
}

// Snapshot captures one agent.
func (s *Simulation) Snapshot(id world.ObjectID) (agents.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.AgentIndex[id]
	if !ok {
		return agents.Snapshot{}, false
	}
	return a.Snapshot(), true
}

// ObjectView is the public description of a non-agent world object.
type ObjectView struct {
	ID           world.ObjectID `json:"id"`
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	Position     geom.Vec3      `json:"position"`
	Desirability float64        `json:"desirability"`
	Interactable bool           `json:"interactable"`
	Available    bool           `json:"available,omitempty"`
	ItemType     string         `json:"item_type,omitempty"`
}

// Objects lists the active non-agent objects.
func (s *Simulation) Objects() []ObjectView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ObjectView
	for _, o := range s.Registry.All() {
		if o.Actor() != nil {
			continue
		}
		v := ObjectView{
			ID:           o.ID(),
			Name:         o.Name(),
			Kind:         o.Kind(),
			Position:     o.Position(),
			Desirability: o.Desirability(),
		}
		if st := o.Interactable(); st != nil {
			v.Interactable = true
			v.Available = st.Available()
		}
		if p := o.Pickup(); p != nil {
			v.ItemType = p.ItemType()
		}
		out = append(out, v)
	}
	return out
}

// SimStats tracks aggregate statistics.
type SimStats struct {
	Tick       uint64             `json:"tick"`
	SimTime    string             `json:"sim_time"`
	Agents     int                `json:"agents"`
	Objects    int                `json:"objects"`
	Idle       int                `json:"idle"`
	Performing int                `json:"performing"`
	Tasks      map[string]int     `json:"tasks"` // active tasks by action
	AvgNeeds   map[string]float64 `json:"avg_needs"`
	Memories   int                `json:"memories"`
	Events     uint64             `json:"events"`
}

// Stats computes aggregate statistics.
func (s *Simulation) Stats() SimStats {
	s.mu.RLock()
	st := SimStats{
		Tick:     s.LastTick,
		SimTime:  SimTime(s.Now),
		Agents:   len(s.Agents),
		Objects:  s.Registry.Len() - len(s.Agents),
		Tasks:    make(map[string]int),
		AvgNeeds: make(map[string]float64),
	}
	for _, a := range s.Agents {
		switch a.State() {
		case agents.StateIdle:
			st.Idle++
		case agents.StatePerforming:
			st.Performing++
		}
		if t := a.CurrentTask(); t != nil {
			st.Tasks[t.Action.String()]++
		}
		for _, need := range world.AllNeeds {
			st.AvgNeeds[need.String()] += a.NeedValue(need)
		}
		st.Memories += a.Memory().Len()
	}
	s.mu.RUnlock()

	if st.Agents > 0 {
		for k, v := range st.AvgNeeds {
			st.AvgNeeds[k] = v / float64(st.Agents)
		}
	}

	s.evMu.Lock()
	st.Events = s.published
	s.evMu.Unlock()
	return st
}

// Report logs a periodic summary.
func (s *Simulation) Report(tick uint64) {
	st := s.Stats()

	kinds := make([]string, 0, len(st.Tasks))
	for k := range st.Tasks {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	attrs := []any{
		"tick", tick,
		"time", st.SimTime,
		"agents", st.Agents,
		"idle", st.Idle,
		"performing", st.Performing,
		"memories", st.Memories,
		"events", st.Events,
	}
	for _, k := range kinds {
		attrs = append(attrs, "tasks_"+k, st.Tasks[k])
	}
	for _, need := range world.AllNeeds {
		attrs = append(attrs, "avg_"+need.String(), fmt.Sprintf("%.1f", st.AvgNeeds[need.String()]))
	}
	slog.Info("simulation report", attrs...)
}
