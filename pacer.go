// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"context"
	"fmt"
	"math"
	"time"
)

// DefaultPacingInterval is the delay between input events when no rate is
// given, a 50 Hz cadence.
const DefaultPacingInterval = 20 * time.Millisecond

// PacingInterval converts an optional event rate in events per second into
// the delay enforced after every input event. A nil rate selects
// DefaultPacingInterval. Rates that are not positive and finite fail with
// ErrInvalidRate; they are never clamped.
func PacingInterval(rate *float64) (time.Duration, error) {
	if rate == nil {
		return DefaultPacingInterval, nil
	}
	r := *rate
	if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
		return 0, invalidRateError("PacingInterval", fmt.Sprintf("rate must be a positive finite number, got %v", r))
	}
	interval := float64(time.Second) / r
	if interval >= math.MaxInt64 {
		return 0, invalidRateError("PacingInterval", fmt.Sprintf("rate %v is too low to represent", r))
	}
	return time.Duration(interval), nil
}

// Pacer enforces a fixed delay between consecutive input events.
type Pacer struct {
	interval time.Duration
	clock    Clock
}

// NewPacer returns a Pacer for rate, see PacingInterval. A nil clock uses the
// real clock.
func NewPacer(rate *float64, clock Clock) (*Pacer, error) {
	interval, err := PacingInterval(rate)
	if err != nil {
		return nil, err
	}
	return &Pacer{interval: interval, clock: clockOrReal(clock)}, nil
}

// Interval returns the delay applied by Wait.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Wait suspends the caller for one pacing interval. It returns ctx.Err() if
// the context ends first.
func (p *Pacer) Wait(ctx context.Context) error {
	return sleep(ctx, p.clock, p.interval)
}
