package agents

import (
	"fmt"
	"time"

	"github.com/talgya/npcsim/internal/world"
)

// EventKind categorizes agent events.
type EventKind string

const (
	EventInit         EventKind = "init"
	EventDiscovery    EventKind = "discovery"
	EventSighting     EventKind = "sighting"
	EventTaskSelected EventKind = "task_selected"
	EventTaskCleared  EventKind = "task_cleared"
	EventTaskComplete EventKind = "task_complete"
	EventGoalComplete EventKind = "goal_complete"
	EventGoalFailed   EventKind = "goal_failed"
	EventPickup       EventKind = "pickup"
	EventInteraction  EventKind = "interaction"
	EventSocial       EventKind = "social"
	EventStuck        EventKind = "stuck"
	EventUnreachable  EventKind = "unreachable"
	EventBlocked      EventKind = "blocked"
	EventForgotten    EventKind = "forgotten"
	EventInventory    EventKind = "inventory"
	EventNeed         EventKind = "need"
	EventStatus       EventKind = "status"
)

// Event is a timestamped, human-readable record of something an agent did
// or noticed.
type Event struct {
	At      time.Duration  `json:"at"`
	AgentID world.ObjectID `json:"agent_id"`
	Agent   string         `json:"agent"`
	Kind    EventKind      `json:"kind"`
	Message string         `json:"message"`
	Verbose bool           `json:"verbose,omitempty"`
}

// String formats the event the way the recent-events panel shows it.
func (e Event) String() string {
	return fmt.Sprintf("%.1fs %s", e.At.Seconds(), e.Message)
}

// EventSink receives every event an agent keeps.
type EventSink interface {
	Publish(Event)
}

// EventLog is a bounded newest-first ring of recent events.
type EventLog struct {
	max    int
	buf    []Event
	head   int // index of the newest event
	filled int
}

// NewEventLog keeps at most max events. A zero max keeps nothing.
func NewEventLog(max int) *EventLog {
	if max < 0 {
		max = 0
	}
	return &EventLog{max: max, buf: make([]Event, max), head: -1}
}

// Add pushes an event, evicting the oldest when full.
func (l *EventLog) Add(e Event) {
	if l.max == 0 {
		return
	}
	l.head = (l.head + 1) % l.max
	l.buf[l.head] = e
	if l.filled < l.max {
		l.filled++
	}
}

// Recent returns up to n events, newest first. n <= 0 returns all.
func (l *EventLog) Recent(n int) []Event {
	if n <= 0 || n > l.filled {
		n = l.filled
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.head - i + l.max) % l.max
		out = append(out, l.buf[idx])
	}
	return out
}

// Len returns how many events are held.
func (l *EventLog) Len() int { return l.filled }
