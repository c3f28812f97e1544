// Package roarm provides control and teleoperation for Waveshare RoArm
// robot arms.
//
// It speaks the arm's JSON command protocol over serial or WiFi, converts
// between degrees, radians, symmetric percentages and raw servo ticks,
// enforces range and velocity limits on every command, and can mirror a
// leader arm onto a follower in real time.
//
// # Installation
//
//	go install github.com/gwillem/roarm/cmd/roarm@latest
//
// # Usage
//
// First, run setup to configure your arms:
//
//	roarm setup
//
// Then calibrate the follower and start teleoperation:
//
//	roarm calibrate
//	roarm teleoperate
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/roarm: CLI with setup, calibrate, status and teleoperate commands
//   - pkg/units: Joint specs and unit conversion
//   - pkg/safety: Range clamping and velocity limiting
//   - pkg/transport: Serial and HTTP links to the arm
//   - pkg/robot: Arm control, observations, actions and calibration
//   - pkg/teleop: Leader-follower teleoperation bridge
//   - pkg/event: Structured events from the control path
package roarm
