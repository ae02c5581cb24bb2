package agents

import (
	"fmt"
	"time"
)

// Config is the per-agent brain tuning. Every field has a sensible default
// from DefaultConfig; config files and scenarios override individual keys.
type Config struct {
	Perception PerceptionConfig `mapstructure:"perception" yaml:"perception" json:"perception"`
	Movement   MovementConfig   `mapstructure:"movement" yaml:"movement" json:"movement"`
	Ground     GroundConfig     `mapstructure:"ground" yaml:"ground" json:"ground"`
	Stuck      StuckConfig      `mapstructure:"stuck" yaml:"stuck" json:"stuck"`
	Needs      NeedSettings     `mapstructure:"needs" yaml:"needs" json:"needs"`
	Social     SocialConfig     `mapstructure:"social" yaml:"social" json:"social"`
	Idle       IdleConfig       `mapstructure:"idle" yaml:"idle" json:"idle"`
	Planner    PlannerConfig    `mapstructure:"planner" yaml:"planner" json:"planner"`
	Debug      DebugConfig      `mapstructure:"debug" yaml:"debug" json:"debug"`
}

type PerceptionConfig struct {
	EyeHeight   float64       `mapstructure:"eye_height" yaml:"eye_height" json:"eye_height"`
	VisionRange float64       `mapstructure:"vision_range" yaml:"vision_range" json:"vision_range"`
	VisionAngle float64       `mapstructure:"vision_angle" yaml:"vision_angle" json:"vision_angle"` // full cone, degrees
	LineOfSight bool          `mapstructure:"line_of_sight" yaml:"line_of_sight" json:"line_of_sight"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
}

type MovementConfig struct {
	Speed              float64       `mapstructure:"speed" yaml:"speed" json:"speed"` // m/s
	StoppingDistance   float64       `mapstructure:"stopping_distance" yaml:"stopping_distance" json:"stopping_distance"`
	TurnSpeed          float64       `mapstructure:"turn_speed" yaml:"turn_speed" json:"turn_speed"`
	InteractionReach   float64       `mapstructure:"interaction_reach" yaml:"interaction_reach" json:"interaction_reach"`
	ForgetMissingAfter time.Duration `mapstructure:"forget_missing_after" yaml:"forget_missing_after" json:"forget_missing_after"`
}

type GroundConfig struct {
	Align                bool          `mapstructure:"align" yaml:"align" json:"align"`
	ProbeDistance        float64       `mapstructure:"probe_distance" yaml:"probe_distance" json:"probe_distance"`
	ProbeStartHeight     float64       `mapstructure:"probe_start_height" yaml:"probe_start_height" json:"probe_start_height"`
	SnapOffset           float64       `mapstructure:"snap_offset" yaml:"snap_offset" json:"snap_offset"`
	MaxVerticalSnapSpeed float64       `mapstructure:"max_vertical_snap_speed" yaml:"max_vertical_snap_speed" json:"max_vertical_snap_speed"`
	GroundedGrace        time.Duration `mapstructure:"grounded_grace" yaml:"grounded_grace" json:"grounded_grace"`
	MaxClimbSlope        float64       `mapstructure:"max_climb_slope" yaml:"max_climb_slope" json:"max_climb_slope"`
	MaxTiltSlope         float64       `mapstructure:"max_tilt_slope" yaml:"max_tilt_slope" json:"max_tilt_slope"`
	AlignSpeed           float64       `mapstructure:"align_speed" yaml:"align_speed" json:"align_speed"`
}

type StuckConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	CheckInterval    time.Duration `mapstructure:"check_interval" yaml:"check_interval" json:"check_interval"`
	MinTravel        float64       `mapstructure:"min_travel" yaml:"min_travel" json:"min_travel"`
	ChecksToRecover  int           `mapstructure:"checks_to_recover" yaml:"checks_to_recover" json:"checks_to_recover"`
	RecoveryDuration time.Duration `mapstructure:"recovery_duration" yaml:"recovery_duration" json:"recovery_duration"`
}

// NeedSettings are growth rates (points per second) and the planner
// thresholds on the 0–100 need scale.
type NeedSettings struct {
	HungerRate    float64 `mapstructure:"hunger_rate" yaml:"hunger_rate" json:"hunger_rate"`
	BoredomRate   float64 `mapstructure:"boredom_rate" yaml:"boredom_rate" json:"boredom_rate"`
	TirednessRate float64 `mapstructure:"tiredness_rate" yaml:"tiredness_rate" json:"tiredness_rate"`
	ConsiderAbove float64 `mapstructure:"consider_above" yaml:"consider_above" json:"consider_above"`
	UrgentAbove   float64 `mapstructure:"urgent_above" yaml:"urgent_above" json:"urgent_above"`
}

type SocialConfig struct {
	Duration    time.Duration `mapstructure:"duration" yaml:"duration" json:"duration"`
	SelfRelief  float64       `mapstructure:"self_relief" yaml:"self_relief" json:"self_relief"`
	OtherRelief float64       `mapstructure:"other_relief" yaml:"other_relief" json:"other_relief"`
}

type IdleConfig struct {
	Wander       bool    `mapstructure:"wander" yaml:"wander" json:"wander"`
	WanderRadius float64 `mapstructure:"wander_radius" yaml:"wander_radius" json:"wander_radius"`
}

type PlannerConfig struct {
	ReplanInterval       time.Duration `mapstructure:"replan_interval" yaml:"replan_interval" json:"replan_interval"`
	Hysteresis           float64       `mapstructure:"hysteresis" yaml:"hysteresis" json:"hysteresis"`
	DestinationTolerance float64       `mapstructure:"destination_tolerance" yaml:"destination_tolerance" json:"destination_tolerance"`
	MaxUnreachable       int           `mapstructure:"max_unreachable" yaml:"max_unreachable" json:"max_unreachable"`
	UnreachableCooldown  time.Duration `mapstructure:"unreachable_cooldown" yaml:"unreachable_cooldown" json:"unreachable_cooldown"`
}

type DebugConfig struct {
	Log             bool          `mapstructure:"log" yaml:"log" json:"log"`
	Verbose         bool          `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	MaxRecentEvents int           `mapstructure:"max_recent_events" yaml:"max_recent_events" json:"max_recent_events"`
	StatusInterval  time.Duration `mapstructure:"status_interval" yaml:"status_interval" json:"status_interval"`
}

// DefaultConfig returns the stock brain tuning.
func DefaultConfig() Config {
	return Config{
		Perception: PerceptionConfig{
			EyeHeight:   1.6,
			VisionRange: 15,
			VisionAngle: 120,
			LineOfSight: true,
			Interval:    250 * time.Millisecond,
		},
		Movement: MovementConfig{
			Speed:              2.4,
			StoppingDistance:   1.25,
			TurnSpeed:          8,
			InteractionReach:   1.75,
			ForgetMissingAfter: 1500 * time.Millisecond,
		},
		Ground: GroundConfig{
			Align:                true,
			ProbeDistance:        3,
			ProbeStartHeight:     1.1,
			SnapOffset:           0.05,
			MaxVerticalSnapSpeed: 6,
			GroundedGrace:        200 * time.Millisecond,
			MaxClimbSlope:        55,
			MaxTiltSlope:         50,
			AlignSpeed:           10,
		},
		Stuck: StuckConfig{
			Enabled:          true,
			CheckInterval:    500 * time.Millisecond,
			MinTravel:        0.08,
			ChecksToRecover:  3,
			RecoveryDuration: 700 * time.Millisecond,
		},
		Needs: NeedSettings{
			HungerRate:    2,
			BoredomRate:   1.2,
			TirednessRate: 1,
			ConsiderAbove: 25,
			UrgentAbove:   75,
		},
		Social: SocialConfig{
			Duration:    2 * time.Second,
			SelfRelief:  30,
			OtherRelief: 20,
		},
		Idle: IdleConfig{
			Wander:       true,
			WanderRadius: 8,
		},
		Planner: PlannerConfig{
			ReplanInterval:       200 * time.Millisecond,
			Hysteresis:           0.05,
			DestinationTolerance: 1.5,
			MaxUnreachable:       3,
			UnreachableCooldown:  2 * time.Second,
		},
		Debug: DebugConfig{
			Log:             true,
			MaxRecentEvents: 20,
			StatusInterval:  3 * time.Second,
		},
	}
}

// Validate rejects tunings that would make the state machine misbehave.
func (c Config) Validate() error {
	switch {
	case c.Perception.VisionRange <= 0:
		return fmt.Errorf("perception.vision_range must be positive")
	case c.Perception.VisionAngle <= 0 || c.Perception.VisionAngle > 360:
		return fmt.Errorf("perception.vision_angle must be in (0, 360]")
	case c.Perception.Interval < 0:
		return fmt.Errorf("perception.interval must not be negative")
	case c.Movement.Speed < 0:
		return fmt.Errorf("movement.speed must not be negative")
	case c.Movement.StoppingDistance <= 0:
		return fmt.Errorf("movement.stopping_distance must be positive")
	case c.Needs.ConsiderAbove < 0 || c.Needs.ConsiderAbove >= MaxNeed:
		return fmt.Errorf("needs.consider_above must be in [0, %v)", MaxNeed)
	case c.Needs.UrgentAbove < c.Needs.ConsiderAbove:
		return fmt.Errorf("needs.urgent_above must be >= needs.consider_above")
	case c.Planner.Hysteresis < 0:
		return fmt.Errorf("planner.hysteresis must not be negative")
	case c.Planner.MaxUnreachable < 1:
		return fmt.Errorf("planner.max_unreachable must be at least 1")
	case c.Stuck.Enabled && c.Stuck.ChecksToRecover < 1:
		return fmt.Errorf("stuck.checks_to_recover must be at least 1")
	case c.Debug.MaxRecentEvents < 0:
		return fmt.Errorf("debug.max_recent_events must not be negative")
	}
	return nil
}
