package world

import (
	"strings"
	"sync"
	"time"
)

// Default station settings.
const (
	DefaultInteractionDuration = 1500 * time.Millisecond
	DefaultItemType            = "GenericItem"
)

// Station is an Interactable: using it applies per-need deltas to the user,
// optionally gated on (and consuming) a held item.
type Station struct {
	owner *Entity

	duration         time.Duration
	deltas           [NeedCount]float64
	requiresItem     bool
	requiredItemType string
	consumeItem      bool
	oneShot          bool

	mu   sync.Mutex
	used bool
}

// StationSpec configures a Station. Negative deltas satisfy a need.
type StationSpec struct {
	Duration         time.Duration
	Hunger           float64
	Boredom          float64
	Tiredness        float64
	RequiresItem     bool
	RequiredItemType string
	ConsumeItem      bool
	OneShot          bool
}

// DefaultStationSpec mirrors a generic "rest and eat" station.
func DefaultStationSpec() StationSpec {
	return StationSpec{
		Duration:  DefaultInteractionDuration,
		Hunger:    -35,
		Boredom:   -10,
		Tiredness: -20,
	}
}

// NewStation builds a Station from its spec.
func NewStation(spec StationSpec) *Station {
	if spec.Duration <= 0 {
		spec.Duration = 10 * time.Millisecond
	}
	s := &Station{
		duration:         spec.Duration,
		requiresItem:     spec.RequiresItem,
		requiredItemType: strings.TrimSpace(spec.RequiredItemType),
		consumeItem:      spec.ConsumeItem,
		oneShot:          spec.OneShot,
	}
	s.deltas[NeedHunger] = spec.Hunger
	s.deltas[NeedBoredom] = spec.Boredom
	s.deltas[NeedTiredness] = spec.Tiredness
	return s
}

// Available is false once a one-shot station has been used or its owner
// has been disabled.
func (s *Station) Available() bool {
	s.mu.Lock()
	used := s.used
	s.mu.Unlock()
	if s.oneShot && used {
		return false
	}
	return s.owner == nil || s.owner.Active()
}

func (s *Station) CanInteract(a Actor) bool {
	if a == nil || !s.Available() {
		return false
	}
	if !s.requiresItem {
		return true
	}
	return a.HasItem(s.requiredItemType)
}

func (s *Station) NeedDelta(need NeedType) float64 {
	if need >= NeedCount {
		return 0
	}
	return s.deltas[need]
}

func (s *Station) NeedRelief(need NeedType) float64 {
	if d := s.NeedDelta(need); d < 0 {
		return -d
	}
	return 0
}

func (s *Station) Duration() time.Duration { return s.duration }

// RequiredItem reports the gating item type, if the station needs one.
func (s *Station) RequiredItem() (string, bool) {
	return s.requiredItemType, s.requiresItem
}

// Apply adjusts the actor's needs and handles item consumption and
// one-shot retirement. It returns false when the actor cannot interact.
func (s *Station) Apply(a Actor) bool {
	if !s.CanInteract(a) {
		return false
	}

	for _, need := range AllNeeds {
		a.AdjustNeed(need, s.deltas[need])
	}

	if s.requiresItem && s.consumeItem {
		a.ConsumeItem(s.requiredItemType)
	}

	if s.oneShot {
		s.mu.Lock()
		s.used = true
		s.mu.Unlock()
		if s.owner != nil {
			s.owner.SetActive(false)
		}
	}
	return true
}
