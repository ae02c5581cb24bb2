// Package entropy supplies the randomness agents use for wandering and stuck
// recovery. Seeded sources make runs reproducible; the crypto source is the
// fallback when no seed is configured.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	mrand "math/rand"
	"sync"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

// Seeded is a deterministic, goroutine-safe Source.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded creates a deterministic source.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed))}
}

// Float64 returns the next float in [0, 1).
func (s *Seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Derive returns a new seeded source whose seed is drawn from s, so each
// agent gets its own reproducible stream.
func (s *Seeded) Derive() *Seeded {
	s.mu.Lock()
	seed := s.rng.Int63()
	s.mu.Unlock()
	return NewSeeded(seed)
}

// Crypto is a Source backed by crypto/rand.
type Crypto struct{}

// Float64 returns a random float using crypto/rand.
func (Crypto) Float64() float64 {
	return cryptoRandFloat()
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Or returns src, or the crypto source when src is nil.
func Or(src Source) Source {
	if src == nil {
		return Crypto{}
	}
	return src
}

// InsideUnitCircle returns a uniformly distributed point in the unit disc.
func InsideUnitCircle(src Source) (x, y float64) {
	src = Or(src)
	r := math.Sqrt(src.Float64())
	theta := src.Float64() * 2 * math.Pi
	return r * math.Cos(theta), r * math.Sin(theta)
}

// Sign returns -1 or +1 with equal probability.
func Sign(src Source) float64 {
	if Or(src).Float64() < 0.5 {
		return -1
	}
	return 1
}

// Range returns a float in [lo, hi).
func Range(src Source, lo, hi float64) float64 {
	return lo + Or(src).Float64()*(hi-lo)
}
