// Package safety enforces per-joint position and velocity limits. Every
// command bound for hardware passes through a Limiter first.
package safety

import (
	"fmt"
	"sync"
	"time"

	"github.com/gwillem/roarm/pkg/units"
)

// Limit holds one joint's safety envelope in normalized units (radians).
type Limit struct {
	Min         float64
	Max         float64
	MaxVelocity float64 // normalized units per second; <= 0 disables the rate cap
}

// Result reports what the limiter did to a target.
type Result struct {
	RangeClamped bool // target was outside [Min, Max]
	RateLimited  bool // displacement was cut to MaxVelocity * dt
}

type lastCommand struct {
	pos     float64
	at      time.Time
	hasTime bool
}

// Limiter admits commands against per-joint limits, tracking the last
// admitted position and timestamp per joint. Safe for concurrent use, though
// the control model is a single loop per robot instance.
type Limiter struct {
	mu     sync.Mutex
	limits map[units.JointName]Limit
	last   map[units.JointName]lastCommand
}

// New creates a limiter for the given joints.
func New(limits map[units.JointName]Limit) *Limiter {
	l := &Limiter{
		limits: make(map[units.JointName]Limit, len(limits)),
		last:   make(map[units.JointName]lastCommand, len(limits)),
	}
	for name, lim := range limits {
		l.limits[name] = lim
	}
	return l
}

// Seed initializes the per-joint baseline from observed hardware positions,
// without a timestamp. The next admitted command per joint skips velocity
// limiting, so the first motion after (re)connect is never rate-limited
// against a stale or zero baseline.
func (l *Limiter) Seed(positions map[units.JointName]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, pos := range positions {
		if _, ok := l.limits[name]; !ok {
			continue
		}
		l.last[name] = lastCommand{pos: pos}
	}
}

// Reset discards all baselines. Called on disconnect so a later connect
// starts velocity limiting fresh instead of trusting pre-disconnect state.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = make(map[units.JointName]lastCommand, len(l.limits))
}

// Admit clamps target to the joint's range, then caps the displacement from
// the last admitted position at MaxVelocity times the elapsed time. The
// admitted value is recorded as the new baseline. Clamping and rate capping
// are the defined safety behavior, not errors.
func (l *Limiter) Admit(name units.JointName, target float64, now time.Time) (float64, Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limits[name]
	if !ok {
		return target, Result{}, fmt.Errorf("no safety limit configured for joint %q", name)
	}

	var res Result
	admitted := target
	if admitted < lim.Min {
		admitted = lim.Min
		res.RangeClamped = true
	} else if admitted > lim.Max {
		admitted = lim.Max
		res.RangeClamped = true
	}

	prev, seeded := l.last[name]
	if seeded && prev.hasTime && lim.MaxVelocity > 0 {
		dt := now.Sub(prev.at).Seconds()
		if dt > 0 {
			maxDelta := lim.MaxVelocity * dt
			delta := admitted - prev.pos
			if delta > maxDelta {
				admitted = prev.pos + maxDelta
				res.RateLimited = true
			} else if delta < -maxDelta {
				admitted = prev.pos - maxDelta
				res.RateLimited = true
			}
		}
	}

	l.last[name] = lastCommand{pos: admitted, at: now, hasTime: true}
	return admitted, res, nil
}

// LastPosition returns the last admitted (or seeded) position for a joint.
func (l *Limiter) LastPosition(name units.JointName) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, ok := l.last[name]
	return prev.pos, ok
}
