// Needs implements the physiological pressures that drive
// an agent: hunger, boredom and tiredness on a 0–100 scale where 100 is
// the worst. Needs only grow with time; tasks bring them down.
package agents

import (
	"time"

	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

// Need scale bounds.
const (
	MinNeed = 0.0
	MaxNeed = 100.0
)

// DefaultInitialNeed is the starting level when a scenario does not say.
const DefaultInitialNeed = 10.0

// Needs holds the current need levels and their per-second growth rates.
type Needs struct {
	values [world.NeedCount]float64
	rates  [world.NeedCount]float64
}

// NewNeeds starts every need at DefaultInitialNeed.
func NewNeeds(s NeedSettings) *Needs {
	n := &Needs{}
	n.rates[world.NeedHunger] = s.HungerRate
	n.rates[world.NeedBoredom] = s.BoredomRate
	n.rates[world.NeedTiredness] = s.TirednessRate
	for _, need := range world.AllNeeds {
		n.values[need] = DefaultInitialNeed
	}
	return n
}

// Value returns the current level of a need.
func (n *Needs) Value(need world.NeedType) float64 {
	if need >= world.NeedCount {
		return 0
	}
	return n.values[need]
}

// Set overwrites a need level, clamped to the scale.
func (n *Needs) Set(need world.NeedType, v float64) {
	if need >= world.NeedCount {
		return
	}
	n.values[need] = geom.Clamp(v, MinNeed, MaxNeed)
}

// Adjust adds delta to a need and returns the clamped result.
func (n *Needs) Adjust(need world.NeedType, delta float64) float64 {
	if need >= world.NeedCount {
		return 0
	}
	n.Set(need, n.values[need]+delta)
	return n.values[need]
}

// Tick grows every need by rate × dt.
func (n *Needs) Tick(dt time.Duration) {
	secs := dt.Seconds()
	for _, need := range world.AllNeeds {
		n.Adjust(need, n.rates[need]*secs)
	}
}

// Map returns the levels keyed by need name.
func (n *Needs) Map() map[string]float64 {
	out := make(map[string]float64, world.NeedCount)
	for _, need := range world.AllNeeds {
		out[need.String()] = n.values[need]
	}
	return out
}
