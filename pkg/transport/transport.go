// Package transport owns the physical link to a RoArm: a serial port or the
// firmware's WiFi interface. Exactly one of the two must be configured. The
// wire protocol is the vendor's JSON command set; callers only see a
// joint-name-keyed mapping of native values.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gwillem/roarm/pkg/units"
)

// ConfigError is a fatal configuration problem, raised at connect time and
// never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "transport config: " + e.Reason
}

// IOError is a transport read/write failure. It is surfaced to the caller;
// retry policy lives above this package.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ErrNotConnected is returned for operations on a closed manager.
var ErrNotConnected = errors.New("not connected")

// WriteParams carries the vendor motion parameters attached to a joint write.
type WriteParams struct {
	Speed int
	Acc   int
}

// Link is the vendor connection behind the manager. Implementations exist
// for serial, WiFi, and tests; none is safe for concurrent use on its own —
// the Manager serializes access.
type Link interface {
	// Open establishes the connection.
	Open(ctx context.Context) error
	// ReadJoints returns current joint positions in native units (degrees
	// for a RoArm), keyed by joint name.
	ReadJoints(ctx context.Context) (map[units.JointName]float64, error)
	// WriteJoints commands target positions in native units, as a single
	// frame so a multi-joint command applies as atomically as the wire
	// allows.
	WriteJoints(ctx context.Context, targets map[units.JointName]float64, p WriteParams) error
	// SetTorque enables or disables holding torque on all joints.
	SetTorque(ctx context.Context, on bool) error
	// Ping verifies the link is alive.
	Ping(ctx context.Context) error
	// Close releases the transport unconditionally.
	Close() error
}

// Config selects and parameterizes the physical link.
type Config struct {
	Port string `json:"port,omitempty"` // serial device, e.g. /dev/ttyUSB0
	Host string `json:"host,omitempty"` // firmware WiFi address, e.g. 192.168.4.1
	Baud int    `json:"baud,omitempty"`
}

// DefaultBaud is the RoArm firmware serial baud rate.
const DefaultBaud = 115200

// Validate checks the port/host selection. Providing both or neither is a
// configuration error, caught here rather than at first use.
func (c Config) Validate() error {
	switch {
	case c.Port == "" && c.Host == "":
		return &ConfigError{Reason: "either port (serial) or host (WiFi) must be set"}
	case c.Port != "" && c.Host != "":
		return &ConfigError{Reason: "port and host are mutually exclusive"}
	}
	return nil
}

// Manager owns one Link's lifecycle and serializes reads and writes against
// it, so an observation read never interleaves with a command write
// mid-frame. A handle is never shared between robot instances.
type Manager struct {
	mu        sync.Mutex
	link      Link
	connected bool
}

// NewManager wraps an existing link, typically a mock in tests.
func NewManager(link Link) *Manager {
	return &Manager{link: link}
}

// Dial builds a manager for the configured transport. joints gives the wire
// order of the arm's joints. Fails with ConfigError on an ambiguous or
// missing selection.
func Dial(cfg Config, joints []units.JointName) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Port != "" {
		return NewManager(newSerialLink(cfg.Port, cfg.Baud, joints)), nil
	}
	return NewManager(newHTTPLink(cfg.Host, joints)), nil
}

// Connect opens the link and verifies it responds.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		return nil
	}
	if err := m.link.Open(ctx); err != nil {
		return &IOError{Op: "connect", Err: err}
	}
	if err := m.link.Ping(ctx); err != nil {
		m.link.Close()
		return &IOError{Op: "connect", Err: err}
	}
	m.connected = true
	return nil
}

// Disconnect releases the transport unconditionally, even mid-motion. It
// does not attempt to home the arm.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil
	}
	m.connected = false
	if err := m.link.Close(); err != nil {
		return &IOError{Op: "disconnect", Err: err}
	}
	return nil
}

// Reconnect drops and re-establishes the link.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		m.connected = false
		m.link.Close()
	}
	if err := m.link.Open(ctx); err != nil {
		return &IOError{Op: "reconnect", Err: err}
	}
	if err := m.link.Ping(ctx); err != nil {
		m.link.Close()
		return &IOError{Op: "reconnect", Err: err}
	}
	m.connected = true
	return nil
}

// IsConnected reports whether the link is established.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// ReadJoints reads current native joint values. No internal retry: a failure
// surfaces to the caller, who owns the retry policy.
func (m *Manager) ReadJoints(ctx context.Context) (map[units.JointName]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, &IOError{Op: "read", Err: ErrNotConnected}
	}
	values, err := m.link.ReadJoints(ctx)
	if err != nil {
		return nil, &IOError{Op: "read", Err: err}
	}
	return values, nil
}

// WriteJoints issues one batched joint command.
func (m *Manager) WriteJoints(ctx context.Context, targets map[units.JointName]float64, p WriteParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return &IOError{Op: "write", Err: ErrNotConnected}
	}
	if err := m.link.WriteJoints(ctx, targets, p); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// SetTorque enables or disables holding torque on all joints.
func (m *Manager) SetTorque(ctx context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return &IOError{Op: "torque", Err: ErrNotConnected}
	}
	if err := m.link.SetTorque(ctx, on); err != nil {
		return &IOError{Op: "torque", Err: err}
	}
	return nil
}

// Ping health-checks the link.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return &IOError{Op: "ping", Err: ErrNotConnected}
	}
	if err := m.link.Ping(ctx); err != nil {
		return &IOError{Op: "ping", Err: err}
	}
	return nil
}
