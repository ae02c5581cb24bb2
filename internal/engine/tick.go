// Package engine provides the fixed-step simulation loop and the
// Simulation that owns the world and its agents.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTickRate is the number of simulation steps per simulated second.
const DefaultTickRate = 10

// Engine drives the simulation forward in fixed steps.
type Engine struct {
	Tick uint64        // Current tick counter (monotonic, never resets)
	Step time.Duration // Simulated time per tick

	// Cadences in ticks; zero disables the callback.
	ReportEvery uint64
	SaveEvery   uint64

	// Callbacks, populated during setup.
	OnTick   func(tick uint64, now time.Duration) // Every tick
	OnReport func(tick uint64)                    // Every ReportEvery ticks
	OnSave   func(tick uint64)                    // Every SaveEvery ticks

	mu    sync.RWMutex
	speed float64 // 1.0 = real time, 0 = paused
}

// NewEngine creates an engine stepping tickRate times per simulated second.
func NewEngine(tickRate int) *Engine {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	return &Engine{
		Step:  time.Second / time.Duration(tickRate),
		speed: 1,
	}
}

// Speed returns the real-time multiplier.
func (e *Engine) Speed() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.speed
}

// SetSpeed changes the real-time multiplier. Zero pauses the loop.
func (e *Engine) SetSpeed(s float64) {
	if s < 0 {
		s = 0
	}
	e.mu.Lock()
	e.speed = s
	e.mu.Unlock()
}

// Now returns the simulated time of the current tick.
func (e *Engine) Now() time.Duration {
	return time.Duration(e.Tick) * e.Step
}

// Run paces ticks against the wall clock until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed(), "step", e.Step)

	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation engine stopped", "tick", e.Tick, "sim_time", SimTime(e.Now()))
			return
		default:
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			sleep(ctx, 100*time.Millisecond)
			continue
		}

		start := time.Now()
		e.advance()

		// Sleep for the remainder of the step, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Step) / speed)
		if elapsed < target {
			sleep(ctx, target-elapsed)
		}
	}
}

// RunTicks advances n ticks as fast as possible.
func (e *Engine) RunTicks(n uint64) {
	for i := uint64(0); i < n; i++ {
		e.advance()
	}
}

func (e *Engine) advance() {
	now := e.Now()
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick, now)
	}
	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}
	if e.SaveEvery > 0 && e.Tick%e.SaveEvery == 0 && e.OnSave != nil {
		e.OnSave(e.Tick)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// SimTime renders a simulated time as h:mm:ss.s.
func SimTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := (d % time.Minute).Seconds()
	return fmt.Sprintf("%d:%02d:%04.1f", h, m, s)
}
