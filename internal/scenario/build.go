package scenario

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/talgya/npcsim/internal/agents"
	"github.com/talgya/npcsim/internal/engine"
	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

// Options are the process-level settings a scenario builds on.
type Options struct {
	Brain     agents.Config // base tuning; the scenario's brain section overrides it
	Seed      int64         // used when the scenario sets none
	MaxEvents int
	Logger    *slog.Logger
}

// AgentID is the stable ID an agent gets in a scenario.
func AgentID(scenario, name string) world.ObjectID {
	return world.StableObjectID(scenario, "agent/"+name)
}

// ObjectID is the stable ID an object gets in a scenario.
func ObjectID(scenario, name string) world.ObjectID {
	return world.StableObjectID(scenario, "object/"+name)
}

// BrainConfig returns the base tuning with the scenario's overrides applied.
func (f *File) BrainConfig(base agents.Config) (agents.Config, error) {
	cfg := base
	if f.Brain.Kind != 0 {
		if err := f.Brain.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("brain: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("brain: %w", err)
	}
	return cfg, nil
}

// Build constructs the world and its agents.
func (f *File) Build(opts Options) (*engine.Simulation, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	brain, err := f.BrainConfig(opts.Brain)
	if err != nil {
		return nil, err
	}
	seed := f.Seed
	if seed == 0 {
		seed = opts.Seed
	}

	terrain := world.FlatTerrain(0)
	if f.Terrain != nil {
		terrain = world.NewTerrain(*f.Terrain)
	}
	obstacles := make([]world.Obstacle, 0, len(f.Obstacles))
	for _, o := range f.Obstacles {
		obstacles = append(obstacles, world.Obstacle{Name: o.Name, Center: o.Center, Radius: o.Radius})
	}
	sensor := world.NewSensor(terrain, obstacles...)

	reg := world.NewRegistry()
	objects := make(map[string]world.Object, len(f.Objects))
	var all []world.Object
	for _, spec := range f.Objects {
		e := f.buildObject(spec, terrain)
		if err := reg.Add(e); err != nil {
			return nil, fmt.Errorf("object %q: %w", spec.Name, err)
		}
		objects[spec.Name] = e
		all = append(all, e)
	}

	sim := engine.NewSimulation(f.Name, reg, sensor, opts.MaxEvents)
	spawner := agents.NewSpawner(f.Name, seed, brain, logger, sim)
	sim.Spawner = spawner

	resolve := func(name string) world.ObjectID {
		if o, ok := objects[name]; ok {
			return o.ID()
		}
		return AgentID(f.Name, name)
	}

	for _, as := range f.Agents {
		req := agents.SpawnRequest{
			Name:      as.Name,
			Archetype: as.Archetype,
			Position:  ground(as.Position, terrain),
			Forward:   facing(as.Facing),
			Needs:     make(map[world.NeedType]float64, len(as.Needs)),
		}
		for name, v := range as.Needs {
			need, err := world.ParseNeed(name)
			if err != nil {
				return nil, fmt.Errorf("agent %q: %w", as.Name, err)
			}
			req.Needs[need] = v
		}
		if as.Personality.Kind != 0 {
			node := as.Personality
			req.Personality = func(p *agents.Personality) {
				if err := node.Decode(p); err != nil {
					logger.Warn("personality override ignored", "agent", as.Name, "error", err)
				}
			}
		}
		for _, k := range as.Knows {
			if k == "*" {
				req.Known = append(req.Known, all...)
				continue
			}
			if o, ok := objects[k]; ok {
				req.Known = append(req.Known, o)
			}
		}
		for _, gs := range as.Goals {
			g, err := gs.goal(resolve)
			if err != nil {
				return nil, fmt.Errorf("agent %q: %w", as.Name, err)
			}
			req.Goals = append(req.Goals, g)
		}

		a, err := spawner.Spawn(req, 0)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", as.Name, err)
		}
		if err := sim.AddAgent(a); err != nil {
			return nil, err
		}
	}

	logger.Info("scenario built",
		"scenario", f.Name,
		"objects", len(f.Objects),
		"agents", len(f.Agents),
		"obstacles", len(f.Obstacles),
		"seed", seed,
	)
	return sim, nil
}

func (f *File) buildObject(spec ObjectSpec, terrain *world.Terrain) *world.Entity {
	kind := spec.Kind
	switch {
	case kind != "":
	case spec.Station != nil:
		kind = "station"
	case spec.Item != nil:
		kind = "item"
	default:
		kind = "landmark"
	}

	e := world.NewEntity(ObjectID(f.Name, spec.Name), spec.Name, kind, ground(spec.Position, terrain))
	if spec.Desirability != nil {
		e.WithDesirability(*spec.Desirability)
	}
	if spec.Hidden {
		e.Hidden()
	}
	if st := spec.Station; st != nil {
		e.WithInteractable(world.NewStation(world.StationSpec{
			Duration:         orDefault(st.Duration),
			Hunger:           st.Hunger,
			Boredom:          st.Boredom,
			Tiredness:        st.Tiredness,
			RequiresItem:     st.RequiresItem,
			RequiredItemType: st.RequiredItemType,
			ConsumeItem:      st.ConsumeItem,
			OneShot:          st.OneShot,
		}))
	}
	if it := spec.Item; it != nil {
		usefulness := 1.0
		if it.Usefulness != nil {
			usefulness = *it.Usefulness
		}
		item := world.NewItem(it.Type, usefulness)
		if it.KeepVisible {
			item.KeepVisible()
		}
		e.WithPickup(item)
	}
	return e
}

func (gs GoalSpec) goal(resolve func(string) world.ObjectID) (*agents.Goal, error) {
	typ, err := agents.ParseGoalType(gs.Type)
	if err != nil {
		return nil, err
	}
	g := agents.DefaultGoal(gs.Name, typ)
	if gs.Priority != nil {
		g.BasePriority = *gs.Priority
	}
	g.Repeatable = gs.Repeatable
	if gs.Cooldown != nil {
		g.RepeatCooldown = *gs.Cooldown
	}
	if gs.Deadline > 0 {
		g.HasDeadline = true
		g.Deadline = gs.Deadline
	}
	if gs.FailOnDeadline != nil {
		g.FailWhenDeadlineMissed = *gs.FailOnDeadline
	}
	if gs.Need != "" {
		need, err := world.ParseNeed(gs.Need)
		if err != nil {
			return nil, err
		}
		g.PreferredNeed = need
	}
	if gs.Target != "" {
		g.Target = resolve(gs.Target)
	}
	g.RequiredItemType = gs.ItemType
	return g, nil
}

// ground lifts a scenario position, given as height above ground, onto the terrain.
func ground(p geom.Vec3, t *world.Terrain) geom.Vec3 {
	p.Y += t.Height(p.X, p.Z)
	return p
}

func facing(yawDeg float64) geom.Vec3 {
	r := yawDeg * math.Pi / 180
	return geom.V(math.Sin(r), 0, math.Cos(r))
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return world.DefaultInteractionDuration
	}
	return d
}
