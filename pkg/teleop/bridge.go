// Package teleop mirrors a leader arm's joint state onto a follower at a
// fixed control rate.
package teleop

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gwillem/roarm/pkg/event"
	"github.com/gwillem/roarm/pkg/robot"
	"github.com/gwillem/roarm/pkg/units"
)

// State of the bridge. Transitions: Idle -> Bridging -> Stopped, one way.
type State int32

const (
	Idle State = iota
	Bridging
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Bridging:
		return "bridging"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Defaults for the control loop.
const (
	DefaultRateHz           = 60
	DefaultFailureThreshold = 3
)

// Leader is the arm being moved by hand. It is read-only from the loop's
// perspective; torque is released while bridging and restored on every stop
// path so the arm does not go limp and fall.
type Leader interface {
	Connect(ctx context.Context) error
	ReleaseTorque(ctx context.Context) error
	RestoreTorque(ctx context.Context) error
	// Action returns the leader's current pose as a percentage action.
	Action(ctx context.Context) (robot.Action, error)
	Close() error
}

// ActionSender receives the mirrored actions. *robot.Robot satisfies it.
type ActionSender interface {
	SendAction(ctx context.Context, a robot.Action) (robot.Action, error)
}

// Config tunes the bridge.
type Config struct {
	RateHz           int
	FailureThreshold int
	// Remap translates leader joint names to follower joint names when the
	// two models differ. Identity when empty.
	Remap map[units.JointName]units.JointName
}

// Snapshot is one completed cycle, published for UIs.
type Snapshot struct {
	Action robot.Action
	At     time.Time
}

// Bridge runs the leader-follower control loop on a single goroutine.
type Bridge struct {
	leader   Leader
	follower ActionSender
	cfg      Config
	sink     event.Sink
	session  string

	state       atomic.Int32
	restoreOnce sync.Once
	snapCh      chan Snapshot

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a bridge in the Idle state.
func New(leader Leader, follower ActionSender, cfg Config, sink event.Sink) *Bridge {
	if cfg.RateHz <= 0 {
		cfg.RateHz = DefaultRateHz
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if sink == nil {
		sink = event.Discard
	}
	return &Bridge{
		leader:   leader,
		follower: follower,
		cfg:      cfg,
		sink:     sink,
		session:  uuid.NewString(),
		snapCh:   make(chan Snapshot, 1),
	}
}

// State returns the current bridge state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Session returns the unique ID attached to this bridge's events.
func (b *Bridge) Session() string {
	return b.session
}

// Snapshots returns a channel carrying the latest completed cycle. Old
// snapshots are dropped when the consumer lags.
func (b *Bridge) Snapshots() <-chan Snapshot {
	return b.snapCh
}

// Period returns the configured control period.
func (b *Bridge) Period() time.Duration {
	return time.Second / time.Duration(b.cfg.RateHz)
}

// Stop requests a transition to Stopped. It is observable before the next
// cycle begins. Leader torque is restored regardless of why the loop stops.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Start transitions Idle -> Bridging, releases leader torque and runs the
// control loop until Stop, context cancellation, or the consecutive-failure
// threshold. It always restores leader torque exactly once before returning.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(Idle), int32(Bridging)) {
		return fmt.Errorf("bridge is %s, not idle", b.State())
	}

	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
	defer cancel()
	defer b.finish()

	if err := b.leader.ReleaseTorque(ctx); err != nil {
		return fmt.Errorf("release leader torque: %w", err)
	}
	b.emit(event.Info, event.CodeBridgeState, "bridging at %d Hz", b.cfg.RateHz)

	ticker := time.NewTicker(b.Period())
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			b.emit(event.Info, event.CodeBridgeState, "stopped: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := b.step(ctx); err != nil {
				failures++
				b.emit(event.Warn, event.CodeCycleSkipped, "cycle skipped (%d/%d): %v",
					failures, b.cfg.FailureThreshold, err)
				if failures >= b.cfg.FailureThreshold {
					b.emit(event.Error, event.CodeBridgeState,
						"stopping after %d consecutive failures", failures)
					return fmt.Errorf("teleoperation aborted after %d consecutive failures: %w",
						failures, err)
				}
				continue
			}
			failures = 0
		}
	}
}

// step runs one cycle: read the leader, remap joint names, drive the
// follower. A slow transport simply makes the next cycle start late; there
// is no catch-up, since bursty motion is itself a safety concern.
func (b *Bridge) step(ctx context.Context) error {
	act, err := b.leader.Action(ctx)
	if err != nil {
		return fmt.Errorf("leader read: %w", err)
	}

	act = b.remap(act)

	if _, err := b.follower.SendAction(ctx, act); err != nil {
		return fmt.Errorf("follower write: %w", err)
	}

	snap := Snapshot{Action: act, At: time.Now()}
	select {
	case b.snapCh <- snap:
	default:
		select {
		case <-b.snapCh:
		default:
		}
		select {
		case b.snapCh <- snap:
		default:
		}
	}
	return nil
}

func (b *Bridge) remap(act robot.Action) robot.Action {
	if len(b.cfg.Remap) == 0 {
		return act
	}
	out := make(robot.Action, len(act))
	for key, v := range act {
		name, ok := strings.CutSuffix(key, ".pos")
		if !ok {
			out[key] = v
			continue
		}
		if mapped, ok := b.cfg.Remap[units.JointName(name)]; ok {
			out[string(mapped)+".pos"] = v
			continue
		}
		out[key] = v
	}
	return out
}

// finish enters Stopped and restores leader torque exactly once, on a fresh
// context so restoration happens even when the loop died to cancellation.
func (b *Bridge) finish() {
	b.state.Store(int32(Stopped))
	b.restoreOnce.Do(func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := b.leader.RestoreTorque(rctx); err != nil {
			b.emit(event.Error, event.CodeTorque, "restore leader torque: %v", err)
			return
		}
		b.emit(event.Info, event.CodeTorque, "leader torque restored")
	})
}

func (b *Bridge) emit(level event.Level, code event.Code, format string, args ...any) {
	b.sink.Emit(event.Event{
		Time:    time.Now(),
		Level:   level,
		Code:    code,
		Session: b.session,
		Message: fmt.Sprintf(format, args...),
	})
}
