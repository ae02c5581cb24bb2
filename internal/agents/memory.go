// Agent memory: what an agent believes about objects it has seen or was
// told about. Perception refreshes it; the planner only ever reasons over
// remembered objects, never over the raw world.
package agents

import (
	"time"

	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

// NeverSeen marks an entry that was seeded but never actually observed.
const NeverSeen time.Duration = -1

// movedThreshold is how far a visible object must shift before the agent
// notices it moved.
const movedThreshold = 0.5

// MemoryEntry is the last known state of one object.
type MemoryEntry struct {
	Object       world.Object
	LastPosition geom.Vec3
	Visible      bool
	LastSeen     time.Duration
}

// SeenFor returns how long ago the object was last seen, or -1 if never.
func (m *MemoryEntry) SeenFor(now time.Duration) time.Duration {
	if m.LastSeen == NeverSeen {
		return NeverSeen
	}
	return now - m.LastSeen
}

// ObservationKind classifies what a refresh learned about an object.
type ObservationKind uint8

const (
	ObservedDiscovered ObservationKind = iota // first time in memory
	ObservedReacquired                        // known, back in sight
	ObservedMoved                             // in sight, noticeably moved
)

// Observation reports one noteworthy refresh outcome.
type Observation struct {
	Kind   ObservationKind
	Object world.Object
}

// MemoryStore keeps at most one entry per object, in insertion order.
type MemoryStore struct {
	entries []*MemoryEntry
	index   map[world.ObjectID]*MemoryEntry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[world.ObjectID]*MemoryEntry)}
}

// Recall returns the entry for an object, if any.
func (m *MemoryStore) Recall(id world.ObjectID) (*MemoryEntry, bool) {
	e, ok := m.index[id]
	return e, ok
}

// Remember returns the existing entry or creates a not-yet-seen one.
func (m *MemoryStore) Remember(obj world.Object) *MemoryEntry {
	if e, ok := m.index[obj.ID()]; ok {
		return e
	}
	e := &MemoryEntry{
		Object:       obj,
		LastPosition: obj.Position(),
		LastSeen:     NeverSeen,
	}
	m.index[obj.ID()] = e
	m.entries = append(m.entries, e)
	return e
}

// Forget drops an entry. It reports whether one existed.
func (m *MemoryStore) Forget(id world.ObjectID) bool {
	if _, ok := m.index[id]; !ok {
		return false
	}
	delete(m.index, id)
	for i, e := range m.entries {
		if e.Object.ID() == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
	return true
}

// Refresh marks everything unseen, prunes destroyed objects, then records
// the currently visible set.
func (m *MemoryStore) Refresh(visible []world.Object, now time.Duration) []Observation {
	wasVisible := make(map[world.ObjectID]bool, len(m.entries))
	kept := m.entries[:0]
	for _, e := range m.entries {
		id := e.Object.ID()
		if e.Object.Destroyed() {
			delete(m.index, id)
			continue
		}
		wasVisible[id] = e.Visible
		e.Visible = false
		kept = append(kept, e)
	}
	for i := len(kept); i < len(m.entries); i++ {
		m.entries[i] = nil
	}
	m.entries = kept

	var out []Observation
	for _, obj := range visible {
		pos := obj.Position()
		e, ok := m.index[obj.ID()]
		if !ok {
			e = m.Remember(obj)
			out = append(out, Observation{Kind: ObservedDiscovered, Object: obj})
		} else if !wasVisible[obj.ID()] {
			out = append(out, Observation{Kind: ObservedReacquired, Object: obj})
		} else if geom.Dist(e.LastPosition, pos) > movedThreshold {
			out = append(out, Observation{Kind: ObservedMoved, Object: obj})
		}
		e.Visible = true
		e.LastSeen = now
		e.LastPosition = pos
	}
	return out
}

// Entries returns the entries in insertion order. Callers must not mutate
// the slice.
func (m *MemoryStore) Entries() []*MemoryEntry {
	return m.entries
}

// Len returns the number of remembered objects.
func (m *MemoryStore) Len() int { return len(m.entries) }

// VisibleCount returns how many remembered objects are currently in sight.
func (m *MemoryStore) VisibleCount() int {
	n := 0
	for _, e := range m.entries {
		if e.Visible {
			n++
		}
	}
	return n
}
