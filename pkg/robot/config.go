package robot

import (
	"encoding/json"
	"os"

	"github.com/gwillem/roarm/pkg/transport"
	"github.com/gwillem/roarm/pkg/units"
)

const DefaultConfigFile = "roarm.json"

// Config holds the full setup: a leader and follower arm plus teleoperation
// parameters. Loaded before connect and immutable for the connection's
// lifetime.
type Config struct {
	Leader   ArmConfig      `json:"leader"`
	Follower ArmConfig      `json:"follower"`
	Teleop   TeleopSettings `json:"teleop,omitempty"`
}

// TeleopSettings tunes the leader-follower control loop.
type TeleopSettings struct {
	RateHz           int `json:"rate_hz,omitempty"`
	FailureThreshold int `json:"failure_threshold,omitempty"`
}

// ArmConfig holds configuration for a single arm.
type ArmConfig struct {
	// Model selects the joint preset when Joints is empty.
	Model string `json:"model,omitempty"`

	// Exactly one of Port and Host must be set.
	Port string `json:"port,omitempty"`
	Host string `json:"host,omitempty"`
	Baud int    `json:"baud,omitempty"`

	// Joints overrides the model preset, e.g. with captured raw servo
	// ranges for an SO-101 leader.
	Joints []units.Spec `json:"joints,omitempty"`

	// Calibration offsets recorded by Calibrate.
	Calibration units.Offsets `json:"calibration,omitempty"`

	HasGripper         bool    `json:"has_gripper"`
	MaxJointVelocity   float64 `json:"max_joint_velocity,omitempty"`   // rad/s
	MaxGripperVelocity float64 `json:"max_gripper_velocity,omitempty"` // rad/s
	Speed              int     `json:"speed,omitempty"`
	Acc                int     `json:"acc,omitempty"`
}

// DefaultArmConfig returns a RoArm-M3 arm config with standard limits.
func DefaultArmConfig() ArmConfig {
	return ArmConfig{
		Model:              ModelRoArmM3,
		Baud:               transport.DefaultBaud,
		HasGripper:         true,
		MaxJointVelocity:   DefaultMaxJointVelocity,
		MaxGripperVelocity: DefaultMaxGripperVelocity,
		Speed:              DefaultSpeed,
		Acc:                DefaultAcc,
	}
}

// Specs returns the arm's joint specs, falling back to the model preset.
func (a *ArmConfig) Specs() []units.Spec {
	if len(a.Joints) > 0 {
		return a.Joints
	}
	return RoArmM3Specs()
}

// Transport returns the arm's link selection.
func (a *ArmConfig) Transport() transport.Config {
	return transport.Config{Port: a.Port, Host: a.Host, Baud: a.Baud}
}

// IsCalibrated returns true if the arm has calibration data.
func (a *ArmConfig) IsCalibrated() bool {
	return len(a.Calibration) > 0
}

// LoadConfig loads configuration from the default config file.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists.
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
