package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/gwillem/roarm/pkg/event"
	"github.com/gwillem/roarm/pkg/units"
)

// Frame is one camera image supplied by an external collaborator. The core
// performs no capture or encoding.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	At     time.Time
}

// Camera supplies named frames on demand.
type Camera interface {
	Frame(ctx context.Context) (Frame, error)
}

// JointState maps joint names to normalized positions in radians. Produced
// fresh on every read, never mutated in place.
type JointState map[units.JointName]float64

// Observation is one complete snapshot: joint state, gripper state and
// camera frames. It is either fully populated or not produced at all.
type Observation struct {
	Joints     JointState
	Velocities JointState // estimated from consecutive reads; nil on the first
	Gripper    *float64
	Frames     map[string]Frame
	At         time.Time
}

// Values flattens the observation into the feature mapping the host
// framework consumes: "<joint>.pos" keys with normalized scalars.
func (o *Observation) Values() map[string]float64 {
	out := make(map[string]float64, len(o.Joints)+1)
	for name, pos := range o.Joints {
		out[posKey(name)] = pos
	}
	if o.Gripper != nil {
		out[posKey(units.Gripper)] = *o.Gripper
	}
	return out
}

// Observation reads one snapshot. A failure on any part — hardware read or
// camera frame — fails the whole observation, so callers never act on a
// partially fresh joint set.
func (r *Robot) Observation(ctx context.Context) (*Observation, error) {
	if !r.IsConnected() {
		return nil, fmt.Errorf("observation: not connected")
	}

	raw, err := r.mgr.ReadJoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("observation: %w", err)
	}

	now := time.Now()
	obs := &Observation{
		Joints: make(JointState, len(r.order)),
		At:     now,
	}
	for _, name := range r.order {
		native, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("observation: joint %s missing from hardware read", name)
		}
		norm, clamped, err := r.conv.ToNormalized(name, native)
		if err != nil {
			return nil, fmt.Errorf("observation: %w", err)
		}
		if clamped {
			event.Emitf(r.sink, event.Warn, event.CodeRangeClamp, name,
				"reading %.2f outside native range, clamped", native)
		}
		if name == units.Gripper {
			g := norm
			obs.Gripper = &g
			continue
		}
		obs.Joints[name] = norm
	}

	if len(r.cameras) > 0 {
		obs.Frames = make(map[string]Frame, len(r.cameras))
		for camName, cam := range r.cameras {
			frame, err := cam.Frame(ctx)
			if err != nil {
				return nil, fmt.Errorf("observation: camera %s: %w", camName, err)
			}
			obs.Frames[camName] = frame
		}
	}

	r.mu.Lock()
	if prev := r.lastObs; prev != nil {
		if dt := now.Sub(prev.At).Seconds(); dt > 0 {
			obs.Velocities = make(JointState, len(obs.Joints))
			for name, pos := range obs.Joints {
				if prevPos, ok := prev.Joints[name]; ok {
					obs.Velocities[name] = (pos - prevPos) / dt
				}
			}
		}
	}
	r.lastObs = obs
	r.mu.Unlock()

	return obs, nil
}
