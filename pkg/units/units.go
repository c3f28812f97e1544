// Package units converts between normalized joint values (radians) and the
// native representation each joint's hardware speaks: degrees for RoArm
// joints, symmetric percentages for teleoperation actions, raw encoder ticks
// for Feetech servos.
package units

import (
	"fmt"
	"math"
)

// JointName identifies a joint in the arm.
type JointName string

// Joint names for a 6-DOF arm, matching LeRobot's standard naming.
const (
	ShoulderPan  JointName = "shoulder_pan"
	ShoulderLift JointName = "shoulder_lift"
	ElbowFlex    JointName = "elbow_flex"
	WristFlex    JointName = "wrist_flex"
	WristRoll    JointName = "wrist_roll"
	Gripper      JointName = "gripper"
)

// Family is the unit family a joint's hardware natively speaks.
type Family int

const (
	// Degrees joints report and accept angles in degrees (RoArm firmware).
	Degrees Family = iota
	// Percent joints speak a symmetric percentage [-100,100] mapped onto
	// an asymmetric degree range.
	Percent
	// Raw joints report encoder ticks (Feetech STS3215: 0-4095).
	Raw
)

func (f Family) String() string {
	switch f {
	case Degrees:
		return "degrees"
	case Percent:
		return "percent"
	case Raw:
		return "raw"
	default:
		return "unknown"
	}
}

// Spec describes one joint's native representation. Immutable after
// configuration load.
type Spec struct {
	Name   JointName `json:"name"`
	Family Family    `json:"family"`

	// Native range. Degrees and Percent families express it in degrees
	// (the mechanical limits, possibly asymmetric around zero); Raw in
	// encoder ticks.
	Min float64 `json:"min"`
	Max float64 `json:"max"`

	// Raw family only.
	Center      float64 `json:"center,omitempty"`
	TicksPerRev float64 `json:"ticks_per_rev,omitempty"`
}

// Offset holds per-joint calibration: the native reading at the reference
// pose and the drive direction. Written during calibration, read-only
// elsewhere.
type Offset struct {
	Zero float64 `json:"zero"`
	Sign float64 `json:"sign"`
}

// Offsets maps joint names to calibration offsets.
type Offsets map[JointName]Offset

const (
	degPerRad = 180 / math.Pi

	// DefaultTicksPerRev is the encoder resolution of an STS3215 servo.
	DefaultTicksPerRev = 4096
)

// Converter maps between native joint values and normalized radians for one
// arm's joint set. Methods are pure functions of the specs and offsets.
type Converter struct {
	specs   map[JointName]Spec
	offsets Offsets
}

// NewConverter builds a converter for the given joint specs. Offsets may be
// nil, in which case every joint uses zero offset and positive direction.
func NewConverter(specs []Spec, offsets Offsets) (*Converter, error) {
	m := make(map[JointName]Spec, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("joint spec without a name")
		}
		if s.Min >= s.Max {
			return nil, fmt.Errorf("joint %s: min %v must be below max %v", s.Name, s.Min, s.Max)
		}
		if s.Family == Raw && s.TicksPerRev <= 0 {
			s.TicksPerRev = DefaultTicksPerRev
		}
		m[s.Name] = s
	}
	return &Converter{specs: m, offsets: offsets}, nil
}

// Spec returns the spec for a joint, if known.
func (c *Converter) Spec(name JointName) (Spec, bool) {
	s, ok := c.specs[name]
	return s, ok
}

// Joints returns the names of all joints known to the converter.
func (c *Converter) Joints() []JointName {
	names := make([]JointName, 0, len(c.specs))
	for name := range c.specs {
		names = append(names, name)
	}
	return names
}

func (c *Converter) offset(name JointName) Offset {
	if off, ok := c.offsets[name]; ok && off.Sign != 0 {
		return off
	}
	return Offset{Sign: 1}
}

// ToNormalized converts a native reading to radians. Out-of-range readings
// are clamped to the joint's native range and reported via the second return
// value; hardware noise must not abort the read path.
func (c *Converter) ToNormalized(name JointName, native float64) (float64, bool, error) {
	spec, ok := c.specs[name]
	if !ok {
		return 0, false, fmt.Errorf("unknown joint %q", name)
	}
	off := c.offset(name)

	clamped := false
	switch spec.Family {
	case Degrees:
		deg, cl := clamp(native, spec.Min, spec.Max)
		return (deg - off.Zero) * off.Sign / degPerRad, cl, nil
	case Percent:
		pct, cl := clamp(native, -100, 100)
		deg := PercentToDegrees(spec, pct)
		return (deg - off.Zero) * off.Sign / degPerRad, cl, nil
	case Raw:
		ticks, cl := clamp(native, spec.Min, spec.Max)
		rad := (ticks - spec.Center - off.Zero) * off.Sign * 2 * math.Pi / spec.TicksPerRev
		return rad, cl, nil
	default:
		return 0, clamped, fmt.Errorf("joint %s: unknown unit family %d", name, spec.Family)
	}
}

// ToNative converts radians back to the joint's native representation,
// clamping to the native range. The round trip with ToNormalized recovers the
// input within tolerance for in-range values.
func (c *Converter) ToNative(name JointName, rad float64) (float64, bool, error) {
	spec, ok := c.specs[name]
	if !ok {
		return 0, false, fmt.Errorf("unknown joint %q", name)
	}
	off := c.offset(name)

	switch spec.Family {
	case Degrees:
		deg := rad*degPerRad/off.Sign + off.Zero
		out, cl := clamp(deg, spec.Min, spec.Max)
		return out, cl, nil
	case Percent:
		deg := rad*degPerRad/off.Sign + off.Zero
		pct := DegreesToPercent(spec, deg)
		out, cl := clamp(pct, -100, 100)
		return out, cl, nil
	case Raw:
		ticks := rad*spec.TicksPerRev/(2*math.Pi)/off.Sign + spec.Center + off.Zero
		out, cl := clamp(ticks, spec.Min, spec.Max)
		return out, cl, nil
	default:
		return 0, false, fmt.Errorf("joint %s: unknown unit family %d", name, spec.Family)
	}
}

// PercentToNormalized converts a symmetric percentage [-100,100] to radians
// through the joint's asymmetric degree range. Used by the action path for
// percentage-class inputs regardless of the joint's own native family.
func (c *Converter) PercentToNormalized(name JointName, pct float64) (float64, bool, error) {
	spec, ok := c.specs[name]
	if !ok {
		return 0, false, fmt.Errorf("unknown joint %q", name)
	}
	off := c.offset(name)
	p, clamped := clamp(pct, -100, 100)
	deg := PercentToDegrees(spec, p)
	return (deg - off.Zero) * off.Sign / degPerRad, clamped, nil
}

// PercentToDegrees maps a percentage onto the spec's degree range using
// independent positive and negative scale factors, so zero percent is always
// zero degrees even when the mechanical limits are asymmetric: +100 maps to
// Max, -100 maps to Min.
func PercentToDegrees(spec Spec, pct float64) float64 {
	if pct >= 0 {
		return pct * spec.Max / 100
	}
	return pct * -spec.Min / 100
}

// DegreesToPercent is the inverse of PercentToDegrees.
func DegreesToPercent(spec Spec, deg float64) float64 {
	if deg >= 0 {
		if spec.Max == 0 {
			return 0
		}
		return deg * 100 / spec.Max
	}
	if spec.Min == 0 {
		return 0
	}
	return deg * 100 / -spec.Min
}

// NormalizedRange returns the joint's reachable range in radians, accounting
// for calibration sign and zero offset. Used to derive safety clamp limits.
func (c *Converter) NormalizedRange(name JointName) (min, max float64, err error) {
	spec, ok := c.specs[name]
	if !ok {
		return 0, 0, fmt.Errorf("unknown joint %q", name)
	}
	var lo, hi float64
	if spec.Family == Percent {
		lo, _, _ = c.ToNormalized(name, -100)
		hi, _, _ = c.ToNormalized(name, 100)
	} else {
		lo, _, _ = c.ToNormalized(name, spec.Min)
		hi, _, _ = c.ToNormalized(name, spec.Max)
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi, nil
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 { return deg / degPerRad }

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 { return rad * degPerRad }

func clamp(v, min, max float64) (float64, bool) {
	if v < min {
		return min, true
	}
	if v > max {
		return max, true
	}
	return v, false
}
