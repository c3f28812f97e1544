package robot

import (
	"context"
	"fmt"
	"sync"

	"github.com/gwillem/roarm/pkg/event"
	"github.com/gwillem/roarm/pkg/safety"
	"github.com/gwillem/roarm/pkg/transport"
	"github.com/gwillem/roarm/pkg/units"
)

// FeatureKind is the semantic type of one observation or action feature.
type FeatureKind int

const (
	KindJointPosition FeatureKind = iota
	KindGripperPosition
	KindCameraFrame
)

func (k FeatureKind) String() string {
	switch k {
	case KindJointPosition:
		return "joint_position"
	case KindGripperPosition:
		return "gripper_position"
	case KindCameraFrame:
		return "camera_frame"
	default:
		return "unknown"
	}
}

// Robot is one arm behind one exclusively-owned transport handle. All
// commands pass through the safety limiter before reaching hardware.
type Robot struct {
	cfg     ArmConfig
	mgr     *transport.Manager
	conv    *units.Converter
	limiter *safety.Limiter
	cameras map[string]Camera
	sink    event.Sink
	order   []units.JointName

	mu        sync.Mutex
	connected bool
	lastObs   *Observation
}

// Option customizes a Robot at construction.
type Option func(*Robot)

// WithSink routes structured events to the given sink.
func WithSink(s event.Sink) Option {
	return func(r *Robot) { r.sink = s }
}

// WithCameras attaches named camera collaborators whose frames are merged
// into every observation.
func WithCameras(cams map[string]Camera) Option {
	return func(r *Robot) { r.cameras = cams }
}

// WithLink substitutes the transport link, bypassing port/host dialing.
// Intended for tests and simulators.
func WithLink(l transport.Link) Option {
	return func(r *Robot) { r.mgr = transport.NewManager(l) }
}

// New builds a Robot from configuration. Transport selection errors (port
// and host both set, or neither) surface here, before any hardware is
// touched.
func New(cfg ArmConfig, opts ...Option) (*Robot, error) {
	specs := cfg.Specs()
	conv, err := units.NewConverter(specs, cfg.Calibration)
	if err != nil {
		return nil, fmt.Errorf("joint specs: %w", err)
	}

	order := make([]units.JointName, 0, len(specs))
	limits := make(map[units.JointName]safety.Limit, len(specs))
	for _, s := range specs {
		if !cfg.HasGripper && s.Name == units.Gripper {
			continue
		}
		order = append(order, s.Name)

		min, max, err := conv.NormalizedRange(s.Name)
		if err != nil {
			return nil, err
		}
		vel := cfg.MaxJointVelocity
		if s.Name == units.Gripper {
			vel = cfg.MaxGripperVelocity
			if vel == 0 {
				vel = DefaultMaxGripperVelocity
			}
		}
		if vel == 0 {
			vel = DefaultMaxJointVelocity
		}
		limits[s.Name] = safety.Limit{Min: min, Max: max, MaxVelocity: vel}
	}

	r := &Robot{
		cfg:     cfg,
		conv:    conv,
		limiter: safety.New(limits),
		sink:    event.Discard,
		order:   order,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.mgr == nil {
		mgr, err := transport.Dial(cfg.Transport(), order)
		if err != nil {
			return nil, err
		}
		r.mgr = mgr
	}
	return r, nil
}

// Converter exposes the robot's unit converter.
func (r *Robot) Converter() *units.Converter {
	return r.conv
}

// Joints returns the joint names in wire order.
func (r *Robot) Joints() []units.JointName {
	return r.order
}

// IsConnected reports whether Connect succeeded and Disconnect has not run.
func (r *Robot) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected && r.mgr.IsConnected()
}

// Connect establishes the link, seeds the safety baseline from the observed
// hardware pose and enables torque. The seed guarantees the first command is
// never velocity-limited against a zero baseline.
func (r *Robot) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		return nil
	}

	if err := r.mgr.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	raw, err := r.mgr.ReadJoints(ctx)
	if err != nil {
		r.mgr.Disconnect()
		return fmt.Errorf("initial pose read: %w", err)
	}
	seed := make(map[units.JointName]float64, len(raw))
	for name, v := range raw {
		norm, clamped, err := r.conv.ToNormalized(name, v)
		if err != nil {
			continue
		}
		if clamped {
			event.Emitf(r.sink, event.Warn, event.CodeRangeClamp, name,
				"initial reading %.2f outside native range, clamped", v)
		}
		seed[name] = norm
	}
	r.limiter.Seed(seed)

	if err := r.mgr.SetTorque(ctx, true); err != nil {
		r.mgr.Disconnect()
		return fmt.Errorf("enable torque: %w", err)
	}

	r.connected = true
	event.Emitf(r.sink, event.Info, event.CodeConnection, "", "connected to %s", r.describeLink())
	return nil
}

// Disconnect releases torque best-effort, then drops the transport
// unconditionally and marks the safety context stale.
func (r *Robot) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return nil
	}

	if err := r.mgr.SetTorque(ctx, false); err != nil {
		event.Emitf(r.sink, event.Warn, event.CodeTorque, "", "release torque on disconnect: %v", err)
	}

	err := r.mgr.Disconnect()
	r.limiter.Reset()
	r.lastObs = nil
	r.connected = false
	event.Emitf(r.sink, event.Info, event.CodeConnection, "", "disconnected")
	return err
}

// Configure applies post-connect parameters: holding torque on.
func (r *Robot) Configure(ctx context.Context) error {
	if err := r.mgr.SetTorque(ctx, true); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	return nil
}

// SafetyStop releases torque immediately. The arm goes limp; use only when a
// human is clear of the workspace.
func (r *Robot) SafetyStop(ctx context.Context) error {
	event.Emitf(r.sink, event.Warn, event.CodeTorque, "", "safety stop: releasing torque")
	return r.mgr.SetTorque(ctx, false)
}

// Home commands the reference pose (all joints at zero) through the normal
// safety-checked dispatch path.
func (r *Robot) Home(ctx context.Context) error {
	a := make(Action, len(r.order))
	for _, name := range r.order {
		a[posKey(name)] = 0
	}
	if _, err := r.SendAction(ctx, a); err != nil {
		return fmt.Errorf("home: %w", err)
	}
	return nil
}

// ObservationFeatures declares the observation schema: one scalar position
// per joint, one per gripper, one frame per named camera.
func (r *Robot) ObservationFeatures() map[string]FeatureKind {
	features := make(map[string]FeatureKind, len(r.order)+len(r.cameras))
	for _, name := range r.order {
		if name == units.Gripper {
			features[posKey(name)] = KindGripperPosition
			continue
		}
		features[posKey(name)] = KindJointPosition
	}
	for cam := range r.cameras {
		features[cam] = KindCameraFrame
	}
	return features
}

// ActionFeatures declares the action schema: the observation schema minus
// camera frames.
func (r *Robot) ActionFeatures() map[string]FeatureKind {
	features := make(map[string]FeatureKind, len(r.order))
	for _, name := range r.order {
		if name == units.Gripper {
			features[posKey(name)] = KindGripperPosition
			continue
		}
		features[posKey(name)] = KindJointPosition
	}
	return features
}

func (r *Robot) describeLink() string {
	if r.cfg.Port != "" {
		return r.cfg.Port
	}
	return r.cfg.Host
}

func (r *Robot) writeParams() transport.WriteParams {
	p := transport.WriteParams{Speed: r.cfg.Speed, Acc: r.cfg.Acc}
	if p.Speed == 0 {
		p.Speed = DefaultSpeed
	}
	if p.Acc == 0 {
		p.Acc = DefaultAcc
	}
	return p
}
