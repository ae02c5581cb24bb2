// Package scenario loads designer-authored YAML scenarios and builds a
// ready-to-run simulation from them.
package scenario

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/npcsim/internal/agents"
	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

//go:embed scenario.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("scenario.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// File is a parsed scenario.
type File struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Seed        int64                `yaml:"seed"`
	Terrain     *world.TerrainConfig `yaml:"terrain"` // nil is flat ground at y=0
	Brain       yaml.Node            `yaml:"brain"`   // overrides on the base brain config
	Obstacles   []ObstacleSpec       `yaml:"obstacles"`
	Objects     []ObjectSpec         `yaml:"objects"`
	Agents      []AgentSpec          `yaml:"agents"`
}

type ObstacleSpec struct {
	Name   string    `yaml:"name"`
	Center geom.Vec3 `yaml:"center"`
	Radius float64   `yaml:"radius"`
}

// ObjectSpec places a world object. Position.Y is height above the ground.
type ObjectSpec struct {
	Name         string       `yaml:"name"`
	Kind         string       `yaml:"kind"`
	Position     geom.Vec3    `yaml:"position"`
	Desirability *float64     `yaml:"desirability"`
	Hidden       bool         `yaml:"hidden"`
	Station      *StationSpec `yaml:"station"`
	Item         *ItemSpec    `yaml:"item"`
}

type StationSpec struct {
	Duration         time.Duration `yaml:"duration"`
	Hunger           float64       `yaml:"hunger"`
	Boredom          float64       `yaml:"boredom"`
	Tiredness        float64       `yaml:"tiredness"`
	RequiresItem     bool          `yaml:"requires_item"`
	RequiredItemType string        `yaml:"required_item_type"`
	ConsumeItem      bool          `yaml:"consume_item"`
	OneShot          bool          `yaml:"one_shot"`
}

type ItemSpec struct {
	Type        string   `yaml:"type"`
	Usefulness  *float64 `yaml:"usefulness"`
	KeepVisible bool     `yaml:"keep_visible"`
}

// AgentSpec places an agent. Facing is a yaw in degrees, 0 along +Z.
type AgentSpec struct {
	Name        string             `yaml:"name"`
	Archetype   string             `yaml:"archetype"`
	Position    geom.Vec3          `yaml:"position"`
	Facing      float64            `yaml:"facing"`
	Needs       map[string]float64 `yaml:"needs"`
	Personality yaml.Node          `yaml:"personality"`
	Knows       []string           `yaml:"knows"` // object names; "*" is every object
	Goals       []GoalSpec         `yaml:"goals"`
}

type GoalSpec struct {
	Name           string         `yaml:"name"`
	Type           string         `yaml:"type"`
	Target         string         `yaml:"target"` // object or agent name
	ItemType       string         `yaml:"item_type"`
	Priority       *float64       `yaml:"priority"`
	Repeatable     bool           `yaml:"repeatable"`
	Cooldown       *time.Duration `yaml:"cooldown"`
	Deadline       time.Duration  `yaml:"deadline"` // 0 means none
	FailOnDeadline *bool          `yaml:"fail_on_deadline"`
	Need           string         `yaml:"need"`
}

// Load reads and validates a scenario file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse validates raw YAML against the scenario schema, decodes it and
// checks cross references.
func Parse(raw []byte) (*File, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func validateSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse scenario: %w", err)
	}
	// The validator wants JSON-shaped values.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("parse scenario: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("parse scenario: %w", err)
	}

	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile scenario schema: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("scenario schema: %w", err)
	}
	return nil
}

// Validate checks names, references and enum values the schema cannot.
func (f *File) Validate() error {
	var errs []error
	names := make(map[string]string) // name -> "object" | "agent"

	for i, o := range f.Objects {
		if prev, dup := names[o.Name]; dup {
			errs = append(errs, fmt.Errorf("objects[%d]: name %q already used by an %s", i, o.Name, prev))
		}
		names[o.Name] = "object"
		if o.Station != nil && o.Item != nil {
			errs = append(errs, fmt.Errorf("objects[%d] %q: an object is either a station or an item", i, o.Name))
		}
	}
	for i, a := range f.Agents {
		if prev, dup := names[a.Name]; dup {
			errs = append(errs, fmt.Errorf("agents[%d]: name %q already used by an %s", i, a.Name, prev))
		}
		names[a.Name] = "agent"
	}

	for i, a := range f.Agents {
		where := fmt.Sprintf("agents[%d] %q", i, a.Name)
		if _, err := agents.ArchetypePersonality(a.Archetype); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}
		if err := checkPersonality(&a.Personality); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}
		for need := range a.Needs {
			if _, err := world.ParseNeed(need); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", where, err))
			}
		}
		for _, k := range a.Knows {
			if k != "*" && names[k] != "object" {
				errs = append(errs, fmt.Errorf("%s: knows unknown object %q", where, k))
			}
		}
		for j, g := range a.Goals {
			gw := fmt.Sprintf("%s goals[%d]", where, j)
			typ, err := agents.ParseGoalType(g.Type)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", gw, err))
				continue
			}
			if g.Need != "" {
				if _, err := world.ParseNeed(g.Need); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", gw, err))
				}
			}
			if g.Target != "" {
				if _, ok := names[g.Target]; !ok {
					errs = append(errs, fmt.Errorf("%s: unknown target %q", gw, g.Target))
				} else if g.Target == a.Name {
					errs = append(errs, fmt.Errorf("%s: agent cannot target itself", gw))
				}
			}
			switch typ {
			case agents.GoalGoToObject:
				if g.Target == "" {
					errs = append(errs, fmt.Errorf("%s: go_to_object needs a target", gw))
				}
			case agents.GoalAcquireItem:
				if g.Target == "" && strings.TrimSpace(g.ItemType) == "" {
					errs = append(errs, fmt.Errorf("%s: acquire_item needs a target or item_type", gw))
				}
			case agents.GoalSocialize:
				if g.Target != "" && names[g.Target] != "agent" {
					errs = append(errs, fmt.Errorf("%s: socialize target %q is not an agent", gw, g.Target))
				}
			}
		}
	}
	return errors.Join(errs...)
}

var personalityKeys = map[string]bool{
	"hunger_priority":      true,
	"boredom_priority":     true,
	"tiredness_priority":   true,
	"explicit_goal_drive":  true,
	"deadline_stress":      true,
	"sociability":          true,
	"item_usefulness_bias": true,
	"travel_cost_bias":     true,
}

func checkPersonality(n *yaml.Node) error {
	if n.Kind == 0 {
		return nil
	}
	var m map[string]float64
	if err := n.Decode(&m); err != nil {
		return fmt.Errorf("personality: %w", err)
	}
	for k := range m {
		if !personalityKeys[k] {
			return fmt.Errorf("personality: unknown key %q", k)
		}
	}
	return nil
}
