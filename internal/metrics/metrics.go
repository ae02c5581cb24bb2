// Package metrics provides application-level counters using stdlib expvar.
// Counters are exported on the API's /debug/vars endpoint.
package metrics

import (
	"expvar"

	"github.com/talgya/npcsim/internal/agents"
)

// Simulation counters.
var (
	TicksTotal  = expvar.NewInt("npcsim_ticks_total")
	SavesTotal  = expvar.NewInt("npcsim_saves_total")
	SaveErrors  = expvar.NewInt("npcsim_save_errors_total")
	APIRequests = expvar.NewInt("npcsim_api_requests_total")
	RateLimited = expvar.NewInt("npcsim_api_rate_limited_total")

	// EventsByKind counts published agent events per kind.
	EventsByKind = expvar.NewMap("npcsim_events_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }

// EventSink counts every event it receives in EventsByKind.
type EventSink struct{}

func (EventSink) Publish(ev agents.Event) { EventsByKind.Add(string(ev.Kind), 1) }

// EventCount returns the count for one kind.
func EventCount(kind agents.EventKind) int64 {
	v, ok := EventsByKind.Get(string(kind)).(*expvar.Int)
	if !ok {
		return 0
	}
	return v.Value()
}
