package transport

import (
	"context"
	"sync"

	"github.com/gwillem/roarm/pkg/units"
)

// MockLink is a scriptable in-memory Link for tests. Writes update the
// simulated joint state so reads observe commanded positions.
type MockLink struct {
	mu sync.Mutex

	// Positions is the simulated joint state returned by ReadJoints.
	Positions map[units.JointName]float64

	// Drift is added to Positions on every read, simulating joints that
	// sag or fail to reach their commanded pose.
	Drift map[units.JointName]float64

	// Err injection. FailReads/FailWrites fail the next N calls.
	OpenErr    error
	ReadErr    error
	WriteErr   error
	FailReads  int
	FailWrites int

	// Recorded activity.
	Writes      []map[units.JointName]float64
	WriteParams []WriteParams
	TorqueLog   []bool
	Opened      bool
	Closed      bool
}

// NewMockLink creates a mock with the given initial joint state.
func NewMockLink(positions map[units.JointName]float64) *MockLink {
	p := make(map[units.JointName]float64, len(positions))
	for k, v := range positions {
		p[k] = v
	}
	return &MockLink{Positions: p}
}

func (m *MockLink) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.Opened = true
	return nil
}

func (m *MockLink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

func (m *MockLink) ReadJoints(ctx context.Context) (map[units.JointName]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads > 0 {
		m.FailReads--
		return nil, errInjected
	}
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	out := make(map[units.JointName]float64, len(m.Positions))
	for k, v := range m.Positions {
		out[k] = v + m.Drift[k]
	}
	return out, nil
}

func (m *MockLink) WriteJoints(ctx context.Context, targets map[units.JointName]float64, p WriteParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites > 0 {
		m.FailWrites--
		return errInjected
	}
	if m.WriteErr != nil {
		return m.WriteErr
	}
	batch := make(map[units.JointName]float64, len(targets))
	for k, v := range targets {
		batch[k] = v
		m.Positions[k] = v
	}
	m.Writes = append(m.Writes, batch)
	m.WriteParams = append(m.WriteParams, p)
	return nil
}

func (m *MockLink) SetTorque(ctx context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TorqueLog = append(m.TorqueLog, on)
	return nil
}

func (m *MockLink) Ping(ctx context.Context) error {
	_, err := m.ReadJoints(ctx)
	return err
}

// WriteCount returns how many batched writes were issued.
func (m *MockLink) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Writes)
}

// LastWrite returns the most recent batched write, or nil.
func (m *MockLink) LastWrite() map[units.JointName]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Writes) == 0 {
		return nil
	}
	return m.Writes[len(m.Writes)-1]
}

// TorqueCount returns how many times torque was set to the given state.
func (m *MockLink) TorqueCount(on bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.TorqueLog {
		if v == on {
			n++
		}
	}
	return n
}

// errInjected marks a scripted transient failure.
var errInjected = &injectedError{}

type injectedError struct{}

func (*injectedError) Error() string { return "injected transport failure" }
