package teleop

import (
	"context"
	"fmt"

	"github.com/gwillem/roarm/pkg/event"
	"github.com/gwillem/roarm/pkg/robot"
	"github.com/gwillem/roarm/pkg/transport"
	"github.com/gwillem/roarm/pkg/units"
)

// RoarmLeader reads a second RoArm, moved by hand with torque released, and
// emits its pose as a symmetric-percentage action: each joint's degree
// reading scaled over its asymmetric mechanical range.
type RoarmLeader struct {
	mgr   *transport.Manager
	conv  *units.Converter
	order []units.JointName
	sink  event.Sink
}

// LeaderOption customizes a RoarmLeader.
type LeaderOption func(*RoarmLeader)

// WithLeaderLink substitutes the transport link, for tests.
func WithLeaderLink(l transport.Link) LeaderOption {
	return func(r *RoarmLeader) { r.mgr = transport.NewManager(l) }
}

// WithLeaderSink routes the leader's events to the given sink.
func WithLeaderSink(s event.Sink) LeaderOption {
	return func(r *RoarmLeader) { r.sink = s }
}

// NewRoarmLeader builds a leader from an arm config.
func NewRoarmLeader(cfg robot.ArmConfig, opts ...LeaderOption) (*RoarmLeader, error) {
	specs := cfg.Specs()
	conv, err := units.NewConverter(specs, cfg.Calibration)
	if err != nil {
		return nil, fmt.Errorf("leader joint specs: %w", err)
	}
	order := make([]units.JointName, len(specs))
	for i, s := range specs {
		order[i] = s.Name
	}

	l := &RoarmLeader{conv: conv, order: order, sink: event.Discard}
	for _, opt := range opts {
		opt(l)
	}
	if l.mgr == nil {
		mgr, err := transport.Dial(cfg.Transport(), order)
		if err != nil {
			return nil, err
		}
		l.mgr = mgr
	}
	return l, nil
}

func (l *RoarmLeader) Connect(ctx context.Context) error {
	return l.mgr.Connect(ctx)
}

func (l *RoarmLeader) ReleaseTorque(ctx context.Context) error {
	return l.mgr.SetTorque(ctx, false)
}

func (l *RoarmLeader) RestoreTorque(ctx context.Context) error {
	return l.mgr.SetTorque(ctx, true)
}

// Action reads the leader's joint angles and maps each onto [-100, 100]
// through its joint's degree range.
func (l *RoarmLeader) Action(ctx context.Context) (robot.Action, error) {
	raw, err := l.mgr.ReadJoints(ctx)
	if err != nil {
		return nil, err
	}

	act := make(robot.Action, len(l.order))
	for _, name := range l.order {
		deg, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("leader joint %s missing from read", name)
		}
		spec, _ := l.conv.Spec(name)
		pct := units.DegreesToPercent(spec, deg)
		if pct > 100 {
			pct = 100
			event.Emitf(l.sink, event.Warn, event.CodeRangeClamp, name, "leader reading %.1f° past limit", deg)
		} else if pct < -100 {
			pct = -100
			event.Emitf(l.sink, event.Warn, event.CodeRangeClamp, name, "leader reading %.1f° past limit", deg)
		}
		act[string(name)+".pos"] = pct
	}
	return act, nil
}

func (l *RoarmLeader) Close() error {
	return l.mgr.Disconnect()
}
