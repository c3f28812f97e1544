package robot

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gwillem/roarm/pkg/event"
	"github.com/gwillem/roarm/pkg/units"
)

// CalibrationTolerance is how far, in degrees, a joint may sit from the
// reference pose after homing before calibration fails.
const CalibrationTolerance = 5.0

// calibrationSettle is how long the arm gets to reach the reference pose.
var calibrationSettle = 2 * time.Second

// CalibrationError reports a joint that failed to reach the reference pose.
type CalibrationError struct {
	Joint units.JointName
	Want  float64 // degrees
	Got   float64 // degrees
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("calibration: joint %s at %.1f°, want %.1f° ±%.1f°",
		e.Joint, e.Got, e.Want, CalibrationTolerance)
}

// Calibrate homes the arm, verifies every joint reached the reference pose
// and records the residual readings as per-joint zero offsets. A failure is
// fatal for the calibration only; the established connection is unaffected.
// The recorded offsets are returned and installed on the robot; persisting
// them into the configuration is the caller's job.
func (r *Robot) Calibrate(ctx context.Context) (units.Offsets, error) {
	if !r.IsConnected() {
		return nil, fmt.Errorf("calibrate: not connected")
	}

	if err := r.Home(ctx); err != nil {
		return nil, fmt.Errorf("calibrate: %w", err)
	}

	select {
	case <-time.After(calibrationSettle):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	raw, err := r.mgr.ReadJoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("calibrate: reference read: %w", err)
	}

	offsets := make(units.Offsets, len(r.order))
	for _, name := range r.order {
		native, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("calibrate: joint %s missing from reference read", name)
		}
		if math.Abs(native) > CalibrationTolerance {
			return nil, &CalibrationError{Joint: name, Want: 0, Got: native}
		}
		// The residual at the reference pose becomes the zero offset, so
		// normalized zero is the actual mechanical home.
		sign := 1.0
		if prev, ok := r.cfg.Calibration[name]; ok && prev.Sign < 0 {
			sign = -1
		}
		offsets[name] = units.Offset{Zero: native, Sign: sign}
	}

	conv, err := units.NewConverter(r.cfg.Specs(), offsets)
	if err != nil {
		return nil, fmt.Errorf("calibrate: %w", err)
	}
	r.mu.Lock()
	r.conv = conv
	r.cfg.Calibration = offsets
	r.mu.Unlock()

	event.Emitf(r.sink, event.Info, event.CodeConnection, "", "calibration complete, %d joints", len(offsets))
	return offsets, nil
}
