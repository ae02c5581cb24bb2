// Personality and archetypes: scalar weights that bias the utility planner,
// plus a handful of named presets scenarios can start from.
package agents

import (
	"fmt"
	"sort"
	"strings"

	"github.com/talgya/npcsim/internal/world"
)

// Personality weights the planner's scoring terms.
type Personality struct {
	HungerPriority     float64 `mapstructure:"hunger_priority" yaml:"hunger_priority" json:"hunger_priority"`
	BoredomPriority    float64 `mapstructure:"boredom_priority" yaml:"boredom_priority" json:"boredom_priority"`
	TirednessPriority  float64 `mapstructure:"tiredness_priority" yaml:"tiredness_priority" json:"tiredness_priority"`
	ExplicitGoalDrive  float64 `mapstructure:"explicit_goal_drive" yaml:"explicit_goal_drive" json:"explicit_goal_drive"`
	DeadlineStress     float64 `mapstructure:"deadline_stress" yaml:"deadline_stress" json:"deadline_stress"`
	Sociability        float64 `mapstructure:"sociability" yaml:"sociability" json:"sociability"`
	ItemUsefulnessBias float64 `mapstructure:"item_usefulness_bias" yaml:"item_usefulness_bias" json:"item_usefulness_bias"`
	TravelCostBias     float64 `mapstructure:"travel_cost_bias" yaml:"travel_cost_bias" json:"travel_cost_bias"`
}

// DefaultPersonality is a balanced, mildly food-motivated agent.
func DefaultPersonality() Personality {
	return Personality{
		HungerPriority:     1.4,
		BoredomPriority:    1,
		TirednessPriority:  1.15,
		ExplicitGoalDrive:  1,
		DeadlineStress:     1,
		Sociability:        1,
		ItemUsefulnessBias: 1,
		TravelCostBias:     1,
	}
}

// NeedPriority returns the weight for a need.
func (p Personality) NeedPriority(need world.NeedType) float64 {
	switch need {
	case world.NeedHunger:
		return p.HungerPriority
	case world.NeedBoredom:
		return p.BoredomPriority
	case world.NeedTiredness:
		return p.TirednessPriority
	}
	return 1
}

// travelBias guards the divisions the planner does with TravelCostBias.
func (p Personality) travelBias() float64 {
	if p.TravelCostBias <= 0.01 {
		return 0.01
	}
	return p.TravelCostBias
}

// Archetype names.
const (
	ArchBalanced  = "balanced"
	ArchGlutton   = "glutton"
	ArchSocialite = "socialite"
	ArchHomebody  = "homebody"
	ArchWanderer  = "wanderer"
	ArchDiligent  = "diligent"
)

// archetypeTemplates maps an archetype to a transform of the default personality.
var archetypeTemplates = map[string]func(p *Personality){
	ArchBalanced: func(p *Personality) {},
	ArchGlutton: func(p *Personality) {
		p.HungerPriority = 2.2 // eats long before it has to
		p.ExplicitGoalDrive = 0.7
	},
	ArchSocialite: func(p *Personality) {
		p.Sociability = 2
		p.BoredomPriority = 1.4
		p.TravelCostBias = 0.8
	},
	ArchHomebody: func(p *Personality) {
		p.TravelCostBias = 2.5 // strongly prefers what is close
		p.Sociability = 0.3
		p.TirednessPriority = 1.5
	},
	ArchWanderer: func(p *Personality) {
		p.TravelCostBias = 0.4
		p.ItemUsefulnessBias = 1.3
		p.DeadlineStress = 0.5
	},
	ArchDiligent: func(p *Personality) {
		p.ExplicitGoalDrive = 2
		p.DeadlineStress = 1.8
		p.BoredomPriority = 0.7
	},
}

// ArchetypePersonality returns the personality preset for an archetype.
// An empty name is the balanced preset.
func ArchetypePersonality(name string) (Personality, error) {
	p := DefaultPersonality()
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = ArchBalanced
	}
	apply, ok := archetypeTemplates[key]
	if !ok {
		return p, fmt.Errorf("unknown archetype %q (known: %s)", name, strings.Join(Archetypes(), ", "))
	}
	apply(&p)
	return p, nil
}

// Archetypes lists the known archetype names, sorted.
func Archetypes() []string {
	out := make([]string, 0, len(archetypeTemplates))
	for k := range archetypeTemplates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
