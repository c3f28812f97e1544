package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/roarm/pkg/units"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"serial only", Config{Port: "/dev/ttyUSB0"}, true},
		{"host only", Config{Host: "192.168.4.1"}, true},
		{"both", Config{Port: "/dev/ttyUSB0", Host: "192.168.4.1"}, false},
		{"neither", Config{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.Error(t, err)
			assert.True(t, errors.As(err, &cfgErr), "want ConfigError, got %T", err)
		})
	}
}

func TestDial_RejectsAmbiguousTransport(t *testing.T) {
	_, err := Dial(Config{Port: "/dev/ttyUSB0", Host: "10.0.0.2"}, nil)
	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestManager_Lifecycle(t *testing.T) {
	link := NewMockLink(map[units.JointName]float64{units.ShoulderPan: 12.5})
	m := NewManager(link)
	ctx := context.Background()

	assert.False(t, m.IsConnected())
	require.NoError(t, m.Connect(ctx))
	assert.True(t, m.IsConnected())
	assert.True(t, link.Opened)

	values, err := m.ReadJoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12.5, values[units.ShoulderPan])

	require.NoError(t, m.Disconnect())
	assert.False(t, m.IsConnected())
	assert.True(t, link.Closed)
}

func TestManager_OpsFailWhenDisconnected(t *testing.T) {
	m := NewManager(NewMockLink(nil))
	ctx := context.Background()

	_, err := m.ReadJoints(ctx)
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "read", ioErr.Op)
	assert.ErrorIs(t, err, ErrNotConnected)

	err = m.WriteJoints(ctx, nil, WriteParams{})
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "write", ioErr.Op)
}

func TestManager_ReadFailureSurfacesWithoutRetry(t *testing.T) {
	link := NewMockLink(map[units.JointName]float64{units.ShoulderPan: 0})
	m := NewManager(link)
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))

	link.FailReads = 1
	_, err := m.ReadJoints(ctx)
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))

	// One failure, one call: the manager did not retry internally.
	values, err := m.ReadJoints(ctx)
	require.NoError(t, err)
	assert.Len(t, values, 1)
}

func TestManager_ConnectFailsOnDeadLink(t *testing.T) {
	link := NewMockLink(nil)
	link.ReadErr = errors.New("bus dead")
	m := NewManager(link)

	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, m.IsConnected())
	assert.True(t, link.Closed, "failed connect must release the transport")
}

func TestManager_WriteIsBatched(t *testing.T) {
	link := NewMockLink(map[units.JointName]float64{
		units.ShoulderPan: 0, units.ShoulderLift: 0,
	})
	m := NewManager(link)
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))

	targets := map[units.JointName]float64{
		units.ShoulderPan:  45,
		units.ShoulderLift: -30,
	}
	require.NoError(t, m.WriteJoints(ctx, targets, WriteParams{Speed: 1000, Acc: 50}))

	require.Len(t, link.Writes, 1, "multi-joint command must be one frame")
	assert.Equal(t, targets, link.Writes[0])
	assert.Equal(t, WriteParams{Speed: 1000, Acc: 50}, link.WriteParams[0])
}

func TestManager_Reconnect(t *testing.T) {
	link := NewMockLink(map[units.JointName]float64{units.ShoulderPan: 1})
	m := NewManager(link)
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))

	require.NoError(t, m.Reconnect(ctx))
	assert.True(t, m.IsConnected())
}
