package robot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/roarm/pkg/event"
	"github.com/gwillem/roarm/pkg/transport"
	"github.com/gwillem/roarm/pkg/units"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		value float64
		class ValueClass
	}{
		{0, ClassNormalized},
		{0.5, ClassNormalized},
		{-1.0, ClassNormalized}, // exactly the band edge stays normalized
		{1.0, ClassNormalized},
		{1.01, ClassPercent},
		{55, ClassPercent},
		{-100, ClassPercent},
		{100.5, ClassNative},
		{-185, ClassNative},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.class, Classify(tt.value), "Classify(%v)", tt.value)
	}
}

func TestSendAction_PercentUsesAsymmetricScaling(t *testing.T) {
	// {"elbow_flex.pos": 55} is 55 percent, not 55 radians: it maps through
	// the joint's asymmetric -70°..190° range to 0.55*190 = 104.5°.
	link := transport.NewMockLink(homePose())
	r := newTestRobot(t, link)
	ctx := context.Background()
	require.NoError(t, r.Connect(ctx))

	applied, err := r.SendAction(ctx, Action{"elbow_flex.pos": 55})
	require.NoError(t, err)

	wantRad := units.DegToRad(0.55 * 190)
	assert.InDelta(t, wantRad, applied["elbow_flex.pos"], 1e-9)
	assert.InDelta(t, 104.5, link.LastWrite()[units.ElbowFlex], 1e-6)
}

func TestSendAction_PercentEndpoints(t *testing.T) {
	link := transport.NewMockLink(homePose())
	r := newTestRobot(t, link)
	ctx := context.Background()
	require.NoError(t, r.Connect(ctx))

	// First command after connect skips the velocity cap, so the endpoints
	// arrive unattenuated.
	_, err := r.SendAction(ctx, Action{"elbow_flex.pos": 100})
	require.NoError(t, err)
	assert.InDelta(t, 190, link.LastWrite()[units.ElbowFlex], 1e-6)

	link2 := transport.NewMockLink(homePose())
	r2 := newTestRobot(t, link2)
	require.NoError(t, r2.Connect(ctx))
	_, err = r2.SendAction(ctx, Action{"elbow_flex.pos": -100})
	require.NoError(t, err)
	assert.InDelta(t, -70, link2.LastWrite()[units.ElbowFlex], 1e-6)
}

func TestSendAction_UnknownJointIgnoredWithWarning(t *testing.T) {
	// A 6-DOF leader driving a smaller follower sends keys the follower
	// does not have; those are skipped, the rest succeed.
	link := transport.NewMockLink(homePose())
	sink := event.NewChannelSink(16)
	r := newTestRobot(t, link, WithSink(sink))
	ctx := context.Background()
	require.NoError(t, r.Connect(ctx))

	applied, err := r.SendAction(ctx, Action{
		"shoulder_pan.pos": 0.5,
		"wrist_yaw.pos":    0.5, // not a joint on this arm
		"bogus":            1,
	})
	require.NoError(t, err)
	assert.Contains(t, applied, "shoulder_pan.pos")
	assert.NotContains(t, applied, "wrist_yaw.pos")
	assert.InDelta(t, units.RadToDeg(0.5), link.LastWrite()[units.ShoulderPan], 1e-6)

	warned := false
	for _, e := range drainEvents(sink) {
		if e.Code == event.CodeUnknownJoint {
			warned = true
		}
	}
	assert.True(t, warned, "unknown joint should emit a warning event")
}

func TestSendAction_BatchIsSingleWrite(t *testing.T) {
	link := transport.NewMockLink(homePose())
	r := newTestRobot(t, link)
	ctx := context.Background()
	require.NoError(t, r.Connect(ctx))

	_, err := r.SendAction(ctx, Action{
		"shoulder_pan.pos":  0.2,
		"shoulder_lift.pos": -0.3,
		"wrist_flex.pos":    0.1,
	})
	require.NoError(t, err)

	require.Len(t, link.Writes, 1)
	// Absent joints are held at their current position in the same frame.
	assert.Len(t, link.Writes[0], 6)
	assert.InDelta(t, 0, link.Writes[0][units.ElbowFlex], 1e-6)
}

func TestSendAction_VelocityLimited(t *testing.T) {
	link := transport.NewMockLink(homePose())
	sink := event.NewChannelSink(32)
	r := newTestRobot(t, link, WithSink(sink))
	ctx := context.Background()
	require.NoError(t, r.Connect(ctx))

	// Establish a baseline with a timestamp.
	_, err := r.SendAction(ctx, Action{"shoulder_pan.pos": 0})
	require.NoError(t, err)

	// An immediate full-range jump (100% = 190°) is cut to
	// maxVelocity * dt, which for a back-to-back command is a tiny
	// displacement.
	applied, err := r.SendAction(ctx, Action{"shoulder_pan.pos": 100})
	require.NoError(t, err)
	assert.Less(t, applied["shoulder_pan.pos"], 0.5)

	limited := false
	for _, e := range drainEvents(sink) {
		if e.Code == event.CodeRateLimit {
			limited = true
		}
	}
	assert.True(t, limited)
}

func TestSendAction_NativeClassClamped(t *testing.T) {
	link := transport.NewMockLink(homePose())
	r := newTestRobot(t, link)
	ctx := context.Background()
	require.NoError(t, r.Connect(ctx))

	// 250 is beyond the percent band: native degrees, clamped to the
	// joint's 190° limit.
	applied, err := r.SendAction(ctx, Action{"shoulder_pan.pos": 250})
	require.NoError(t, err)
	assert.InDelta(t, units.DegToRad(190), applied["shoulder_pan.pos"], 1e-9)
}

func TestSendAction_WriteFailureSurfaces(t *testing.T) {
	link := transport.NewMockLink(homePose())
	r := newTestRobot(t, link)
	ctx := context.Background()
	require.NoError(t, r.Connect(ctx))

	link.FailWrites = 1
	_, err := r.SendAction(ctx, Action{"shoulder_pan.pos": 0.1})
	var ioErr *transport.IOError
	require.ErrorAs(t, err, &ioErr)

	// No internal retry: the next call is a fresh attempt that succeeds.
	_, err = r.SendAction(ctx, Action{"shoulder_pan.pos": 0.1})
	assert.NoError(t, err)
}

func TestSendAction_EmptyAfterFiltering(t *testing.T) {
	link := transport.NewMockLink(homePose())
	r := newTestRobot(t, link)
	ctx := context.Background()
	require.NoError(t, r.Connect(ctx))

	applied, err := r.SendAction(ctx, Action{"wrist_yaw.pos": 1})
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Empty(t, link.Writes, "nothing to write when no known joints remain")
}

func TestSendAction_GripperVelocityIndependent(t *testing.T) {
	link := transport.NewMockLink(homePose())
	r := newTestRobot(t, link)
	ctx := context.Background()
	require.NoError(t, r.Connect(ctx))

	// Gripper range is -10°..100°; a normalized command past the lower
	// limit clamps to the range edge.
	applied, err := r.SendAction(ctx, Action{"gripper.pos": -0.5})
	require.NoError(t, err)
	assert.InDelta(t, units.DegToRad(-10), applied["gripper.pos"], 1e-9)

	// Pushed as a percentage, full close maps to the 100° limit exactly.
	link2 := transport.NewMockLink(homePose())
	r2 := newTestRobot(t, link2)
	require.NoError(t, r2.Connect(ctx))
	applied, err = r2.SendAction(ctx, Action{"gripper.pos": 100})
	require.NoError(t, err)
	assert.InDelta(t, units.DegToRad(100), applied["gripper.pos"], 1e-9)
	assert.InDelta(t, 100, link2.LastWrite()[units.Gripper], 1e-6)
}
