// Agent spawning turns scenario entries into agents with reproducible IDs,
// personalities and starting needs.
package agents

import (
	"log/slog"
	"time"

	"github.com/talgya/npcsim/internal/entropy"
	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

// SpawnRequest describes one agent to create.
type SpawnRequest struct {
	Name      string
	Archetype string
	Position  geom.Vec3
	Forward   geom.Vec3
	// Needs overrides individual starting needs; the rest are rolled.
	Needs map[world.NeedType]float64
	// Personality, when non-nil, is applied on top of the archetype.
	Personality func(p *Personality)
	Goals       []*Goal
	Known       []world.Object
	Config      *Config // nil uses the spawner's config
}

// Spawner creates agents for a simulation.
type Spawner struct {
	namespace string
	cfg       Config
	rng       *entropy.Seeded
	log       *slog.Logger
	sink      EventSink

	// Jitter scales random per-agent personality variation; 0 disables it.
	Jitter float64
}

// NewSpawner creates a spawner. namespace scopes the derived agent IDs.
func NewSpawner(namespace string, seed int64, cfg Config, logger *slog.Logger, sink EventSink) *Spawner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Spawner{
		namespace: namespace,
		cfg:       cfg,
		rng:       entropy.NewSeeded(seed + 300),
		log:       logger,
		sink:      sink,
	}
}

// SetSink changes where spawned agents publish events.
func (s *Spawner) SetSink(sink EventSink) { s.sink = sink }

// Spawn builds an agent at simulated time now.
func (s *Spawner) Spawn(req SpawnRequest, now time.Duration) (*Agent, error) {
	p, err := ArchetypePersonality(req.Archetype)
	if err != nil {
		return nil, err
	}
	if s.Jitter > 0 {
		s.jitter(&p)
	}
	if req.Personality != nil {
		req.Personality(&p)
	}

	// Needs: mostly met at spawn, so agents do not all rush for food at once.
	needs := make(map[world.NeedType]float64, world.NeedCount)
	for _, need := range world.AllNeeds {
		needs[need] = entropy.Range(s.rng, 0, 20)
	}
	for need, v := range req.Needs {
		needs[need] = v
	}

	cfg := s.cfg
	if req.Config != nil {
		cfg = *req.Config
	}

	return New(Spec{
		ID:          world.StableObjectID(s.namespace, "agent/"+req.Name),
		Name:        req.Name,
		Position:    req.Position,
		Forward:     req.Forward,
		Personality: p,
		Needs:       needs,
		Goals:       req.Goals,
		Known:       req.Known,
		Config:      cfg,
		Random:      s.rng.Derive(),
		Logger:      s.log,
		Sink:        s.sink,
		Now:         now,
	}), nil
}

func (s *Spawner) jitter(p *Personality) {
	vary := func(v float64) float64 {
		return max(0, v*(1+entropy.Range(s.rng, -s.Jitter, s.Jitter)))
	}
	p.HungerPriority = vary(p.HungerPriority)
	p.BoredomPriority = vary(p.BoredomPriority)
	p.TirednessPriority = vary(p.TirednessPriority)
	p.Sociability = vary(p.Sociability)
	p.TravelCostBias = max(0.1, vary(p.TravelCostBias))
}
