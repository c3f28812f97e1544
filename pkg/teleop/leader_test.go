package teleop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/roarm/pkg/event"
	"github.com/gwillem/roarm/pkg/robot"
	"github.com/gwillem/roarm/pkg/transport"
	"github.com/gwillem/roarm/pkg/units"
)

func leaderPose() map[units.JointName]float64 {
	return map[units.JointName]float64{
		units.ShoulderPan:  0,
		units.ShoulderLift: 0,
		units.ElbowFlex:    0,
		units.WristFlex:    0,
		units.WristRoll:    0,
		units.Gripper:      0,
	}
}

func TestRoarmLeader_ActionIsPercent(t *testing.T) {
	pose := leaderPose()
	pose[units.ElbowFlex] = 95     // half of the +190° span
	pose[units.ShoulderLift] = -55 // half of the -110° span
	link := transport.NewMockLink(pose)

	cfg := robot.DefaultArmConfig()
	cfg.Port = "/dev/ttyLEADER"
	leader, err := NewRoarmLeader(cfg, WithLeaderLink(link))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, leader.Connect(ctx))

	act, err := leader.Action(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 50, act["elbow_flex.pos"], 1e-9)
	assert.InDelta(t, -50, act["shoulder_lift.pos"], 1e-9)
	assert.InDelta(t, 0, act["shoulder_pan.pos"], 1e-9)
}

func TestRoarmLeader_ClampsPastLimit(t *testing.T) {
	pose := leaderPose()
	pose[units.WristFlex] = 150 // limit is 110°; reads are noisy
	link := transport.NewMockLink(pose)

	cfg := robot.DefaultArmConfig()
	cfg.Port = "/dev/ttyLEADER"
	leader, err := NewRoarmLeader(cfg, WithLeaderLink(link))
	require.NoError(t, err)
	require.NoError(t, leader.Connect(context.Background()))

	act, err := leader.Action(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, act["wrist_flex.pos"])
}

func TestRoarmLeader_TorqueControl(t *testing.T) {
	link := transport.NewMockLink(leaderPose())
	cfg := robot.DefaultArmConfig()
	cfg.Port = "/dev/ttyLEADER"
	leader, err := NewRoarmLeader(cfg, WithLeaderLink(link))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, leader.Connect(ctx))
	require.NoError(t, leader.ReleaseTorque(ctx))
	require.NoError(t, leader.RestoreTorque(ctx))

	assert.Equal(t, 1, link.TorqueCount(false))
	assert.Equal(t, 1, link.TorqueCount(true))
}

func TestSO101ServoCalibration_Percent(t *testing.T) {
	cal := ServoCalibration{ID: 1, RangeMin: 1000, RangeMax: 3000}

	tests := []struct {
		raw int
		pct float64
	}{
		{1000, -100},
		{3000, 100},
		{2000, 0},
		{1500, -50},
		{500, -100}, // past the captured range: clamp
		{3500, 100},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.pct, cal.Percent(tt.raw), 1e-9, "Percent(%d)", tt.raw)
	}
}

// End to end: a RoArm leader at a fixed pose drives a RoArm follower through
// the bridge; the follower's transport sees the pose in degrees.
func TestBridge_LeaderFollowerEndToEnd(t *testing.T) {
	pose := leaderPose()
	pose[units.ElbowFlex] = 95 // 50%
	leaderLink := transport.NewMockLink(pose)

	leaderCfg := robot.DefaultArmConfig()
	leaderCfg.Port = "/dev/ttyLEADER"
	leader, err := NewRoarmLeader(leaderCfg, WithLeaderLink(leaderLink))
	require.NoError(t, err)

	followerLink := transport.NewMockLink(map[units.JointName]float64{
		units.ShoulderPan: 0, units.ShoulderLift: 0, units.ElbowFlex: 0,
		units.WristFlex: 0, units.WristRoll: 0, units.Gripper: 0,
	})
	followerCfg := robot.DefaultArmConfig()
	followerCfg.Port = "/dev/ttyFOLLOWER"
	follower, err := robot.New(followerCfg, robot.WithLink(followerLink))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, leader.Connect(ctx))
	require.NoError(t, follower.Connect(ctx))

	b := New(leader, follower, Config{RateHz: 500}, event.Discard)
	done := make(chan error, 1)
	go func() { done <- b.Start(ctx) }()

	waitFor(t, func() bool { return followerLink.WriteCount() >= 1 })
	b.Stop()
	<-done

	// 50% through the follower's -70°..190° elbow range is 95°: the first
	// command after connect is admitted in full.
	assert.InDelta(t, 95, followerLink.Writes[0][units.ElbowFlex], 1e-6)
	// Leader torque was released for hand-guiding and restored on stop.
	assert.Equal(t, 1, leaderLink.TorqueCount(false))
	assert.Equal(t, 1, leaderLink.TorqueCount(true))
}
