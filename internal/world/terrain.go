package world

import (
	"math"

	"github.com/ojrac/opensimplex-go"

	"github.com/talgya/npcsim/internal/geom"
)

// TerrainConfig controls heightfield generation.
type TerrainConfig struct {
	Seed        int64   `yaml:"seed" json:"seed"`
	Amplitude   float64 `yaml:"amplitude" json:"amplitude"`     // peak height in metres; 0 = flat
	Frequency   float64 `yaml:"frequency" json:"frequency"`     // base noise frequency per metre
	Octaves     int     `yaml:"octaves" json:"octaves"`         // noise layers
	Persistence float64 `yaml:"persistence" json:"persistence"` // amplitude falloff per octave
	BaseHeight  float64 `yaml:"base_height" json:"base_height"`
}

// DefaultTerrainConfig returns gentle rolling hills.
func DefaultTerrainConfig() TerrainConfig {
	return TerrainConfig{
		Seed:        42,
		Amplitude:   2.5,
		Frequency:   0.04,
		Octaves:     3,
		Persistence: 0.5,
	}
}

// Terrain is a continuous heightfield sampled from layered simplex noise.
type Terrain struct {
	cfg   TerrainConfig
	noise opensimplex.Noise
}

// NewTerrain builds a heightfield. It is deterministic for a given seed.
func NewTerrain(cfg TerrainConfig) *Terrain {
	if cfg.Octaves <= 0 {
		cfg.Octaves = 1
	}
	if cfg.Persistence <= 0 {
		cfg.Persistence = 0.5
	}
	return &Terrain{cfg: cfg, noise: opensimplex.NewNormalized(cfg.Seed)}
}

// FlatTerrain returns a level plane at the given height.
func FlatTerrain(height float64) *Terrain {
	return NewTerrain(TerrainConfig{BaseHeight: height})
}

// Height returns the ground height at (x, z).
func (t *Terrain) Height(x, z float64) float64 {
	if t.cfg.Amplitude == 0 {
		return t.cfg.BaseHeight
	}
	n := octaveNoise(t.noise, x, z, t.cfg.Octaves, t.cfg.Frequency, t.cfg.Persistence)
	return t.cfg.BaseHeight + n*t.cfg.Amplitude
}

// Normal returns the surface normal at (x, z) using central differences.
func (t *Terrain) Normal(x, z float64) geom.Vec3 {
	if t.cfg.Amplitude == 0 {
		return geom.Up
	}
	const e = 0.25
	dx := t.Height(x+e, z) - t.Height(x-e, z)
	dz := t.Height(x, z+e) - t.Height(x, z-e)
	return geom.V(-dx, 2*e, -dz).Normalize()
}

// Slope returns the terrain inclination at (x, z) in degrees.
func (t *Terrain) Slope(x, z float64) float64 {
	return geom.Angle(t.Normal(x, z), geom.Up)
}

// Ground returns the point on the surface below (x, z).
func (t *Terrain) Ground(x, z float64) geom.Vec3 {
	return geom.V(x, t.Height(x, z), z)
}

// octaveNoise generates fractal noise by layering multiple frequencies.
// The result stays within [0, 1] for normalized noise.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return math.Max(0, total/maxVal)
}
