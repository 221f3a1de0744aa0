// Package engine provides the tick-based simulation loop.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Engine drives the simulation forward.
type Engine struct {
	Tick        uint64        // Last tick run (monotonic, never resets)
	MaxTicks    uint64        // Stop after this tick; 0 runs until stopped
	Interval    time.Duration // Wall-clock pause between ticks; 0 runs flat out
	ReportEvery uint64        // OnReport period in ticks; 0 disables

	// Callbacks, populated during setup.
	OnTick   func(tick uint64) // Every tick
	OnReport func(tick uint64) // Every ReportEvery ticks and once on exit

	running atomic.Bool
}

// NewEngine creates an engine that runs maxTicks ticks without pausing.
func NewEngine(maxTicks uint64) *Engine {
	return &Engine{MaxTicks: maxTicks}
}

// Run advances ticks until MaxTicks is reached, Stop is called or ctx is
// cancelled. Cancellation is returned as ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	e.running.Store(true)
	defer e.running.Store(false)

	slog.Info("simulation engine started", "tick", e.Tick, "max_ticks", e.MaxTicks, "interval", e.Interval)

	var pace <-chan time.Time
	if e.Interval > 0 {
		ticker := time.NewTicker(e.Interval)
		defer ticker.Stop()
		pace = ticker.C
	}

	var err error
	for e.running.Load() {
		if e.MaxTicks > 0 && e.Tick >= e.MaxTicks {
			break
		}
		if err = ctx.Err(); err != nil {
			break
		}
		if pace != nil {
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-pace:
			}
			if err != nil {
				break
			}
		}
		e.step()
	}

	if e.OnReport != nil && e.ReportEvery > 0 && e.Tick%e.ReportEvery != 0 {
		e.OnReport(e.Tick)
	}
	slog.Info("simulation engine stopped", "tick", e.Tick, "err", err)
	return err
}

// Stop halts the loop after the current tick.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Running reports whether Run is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

func (e *Engine) step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}

	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}
}
