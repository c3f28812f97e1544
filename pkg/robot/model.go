// Package robot exposes the RoArm control surface: connect, calibrate,
// observation reads and safety-checked action dispatch.
package robot

import (
	"github.com/gwillem/roarm/pkg/units"
)

// AllJoints returns the joint names in wire order (the order the firmware
// reports and accepts angles in).
func AllJoints() []units.JointName {
	return []units.JointName{
		units.ShoulderPan,
		units.ShoulderLift,
		units.ElbowFlex,
		units.WristFlex,
		units.WristRoll,
		units.Gripper,
	}
}

// ArmJoints returns the joints excluding the gripper.
func ArmJoints() []units.JointName {
	return AllJoints()[:5]
}

// Defaults for the RoArm-M3.
const (
	ModelRoArmM3 = "roarm_m3"

	DefaultSpeed = 1000
	DefaultAcc   = 50

	// DefaultMaxJointVelocity caps commanded joint motion, rad/s.
	DefaultMaxJointVelocity = 3.0
	// DefaultMaxGripperVelocity caps commanded gripper motion, rad/s.
	DefaultMaxGripperVelocity = 2.0
)

// RoArmM3Specs returns the mechanical joint limits of the RoArm-M3 in
// degrees. Several joints are asymmetric around center.
func RoArmM3Specs() []units.Spec {
	return []units.Spec{
		{Name: units.ShoulderPan, Family: units.Degrees, Min: -190, Max: 190},
		{Name: units.ShoulderLift, Family: units.Degrees, Min: -110, Max: 110},
		{Name: units.ElbowFlex, Family: units.Degrees, Min: -70, Max: 190},
		{Name: units.WristFlex, Family: units.Degrees, Min: -110, Max: 110},
		{Name: units.WristRoll, Family: units.Degrees, Min: -190, Max: 190},
		{Name: units.Gripper, Family: units.Degrees, Min: -10, Max: 100},
	}
}
