package robot

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gwillem/roarm/pkg/event"
	"github.com/gwillem/roarm/pkg/units"
)

// Action maps "<joint>.pos" keys to target scalars. The unit family of each
// scalar is ambiguous at this boundary and resolved by magnitude before
// conversion.
type Action map[string]float64

// Disambiguation bands for action values. The boundary is inherently
// ambiguous (an exact ±1 could be one radian or a one-percent command); both
// thresholds are deliberate, tested constants rather than buried literals.
const (
	// NormalizedBand: values with magnitude at or below this are treated
	// as already-normalized radians.
	NormalizedBand = 1.0
	// PercentBand: values beyond NormalizedBand up to this magnitude are
	// treated as symmetric percentages.
	PercentBand = 100.0
)

// ValueClass is the resolved unit family of one action scalar.
type ValueClass int

const (
	ClassNormalized ValueClass = iota
	ClassPercent
	ClassNative
)

func (c ValueClass) String() string {
	switch c {
	case ClassNormalized:
		return "normalized"
	case ClassPercent:
		return "percent"
	case ClassNative:
		return "native"
	default:
		return "unknown"
	}
}

// Classify resolves a scalar's unit family by magnitude. Values beyond
// PercentBand are taken as the target joint's own native units.
func Classify(v float64) ValueClass {
	switch abs := math.Abs(v); {
	case abs <= NormalizedBand:
		return ClassNormalized
	case abs <= PercentBand:
		return ClassPercent
	default:
		return ClassNative
	}
}

func posKey(name units.JointName) string {
	return string(name) + ".pos"
}

func splitPosKey(key string) (units.JointName, bool) {
	name, ok := strings.CutSuffix(key, ".pos")
	if !ok || name == "" {
		return "", false
	}
	return units.JointName(name), true
}

// SendAction converts, safety-checks and dispatches an action. Every joint
// key is classified, converted to radians, admitted by the limiter, then the
// whole batch goes out in a single write so a multi-joint command applies as
// atomically as the transport allows. Unknown keys are skipped with a
// warning so heterogeneous leader/follower joint sets degrade gracefully.
// The returned action holds the admitted normalized values.
func (r *Robot) SendAction(ctx context.Context, a Action) (Action, error) {
	if !r.IsConnected() {
		return nil, fmt.Errorf("send action: not connected")
	}

	now := time.Now()
	batch := make(map[units.JointName]float64, len(r.order))
	applied := make(Action, len(a))

	for key, value := range a {
		name, ok := splitPosKey(key)
		if !ok {
			event.Emitf(r.sink, event.Warn, event.CodeUnknownJoint, "", "malformed action key %q ignored", key)
			continue
		}
		if _, known := r.conv.Spec(name); !known || !r.hasJoint(name) {
			event.Emitf(r.sink, event.Warn, event.CodeUnknownJoint, name, "unknown joint in action, ignored")
			continue
		}

		var (
			norm    float64
			clamped bool
			err     error
		)
		switch Classify(value) {
		case ClassNormalized:
			norm = value
		case ClassPercent:
			norm, clamped, err = r.conv.PercentToNormalized(name, value)
		default:
			norm, clamped, err = r.conv.ToNormalized(name, value)
		}
		if err != nil {
			return nil, fmt.Errorf("send action: %w", err)
		}
		if clamped {
			event.Emitf(r.sink, event.Warn, event.CodeRangeClamp, name, "action value %.2f clamped to native range", value)
		}

		admitted, res, err := r.limiter.Admit(name, norm, now)
		if err != nil {
			return nil, fmt.Errorf("send action: %w", err)
		}
		if res.RangeClamped {
			event.Emitf(r.sink, event.Warn, event.CodeRangeClamp, name, "target %.3f clamped to joint range", norm)
		}
		if res.RateLimited {
			event.Emitf(r.sink, event.Warn, event.CodeRateLimit, name, "displacement capped by velocity limit")
		}

		native, _, err := r.conv.ToNative(name, admitted)
		if err != nil {
			return nil, fmt.Errorf("send action: %w", err)
		}
		batch[name] = native
		applied[posKey(name)] = admitted
	}

	if len(batch) == 0 {
		return applied, nil
	}

	// The wire frame carries all joints; hold absent ones at their current
	// position.
	if len(batch) < len(r.order) {
		current, err := r.mgr.ReadJoints(ctx)
		if err != nil {
			return nil, fmt.Errorf("send action: hold-position read: %w", err)
		}
		for _, name := range r.order {
			if _, ok := batch[name]; ok {
				continue
			}
			native, ok := current[name]
			if !ok {
				return nil, fmt.Errorf("send action: joint %s missing from hardware read", name)
			}
			batch[name] = native
		}
	}

	if err := r.mgr.WriteJoints(ctx, batch, r.writeParams()); err != nil {
		return nil, fmt.Errorf("send action: %w", err)
	}
	return applied, nil
}

func (r *Robot) hasJoint(name units.JointName) bool {
	for _, n := range r.order {
		if n == name {
			return true
		}
	}
	return false
}
