package teleop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/roarm/pkg/event"
	"github.com/gwillem/roarm/pkg/robot"
	"github.com/gwillem/roarm/pkg/units"
)

type fakeLeader struct {
	mu         sync.Mutex
	action     robot.Action
	failNext   int
	failAlways bool
	releases   int
	restores   int
}

func (f *fakeLeader) Connect(ctx context.Context) error { return nil }

func (f *fakeLeader) ReleaseTorque(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

func (f *fakeLeader) RestoreTorque(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restores++
	return nil
}

func (f *fakeLeader) Action(ctx context.Context) (robot.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAlways {
		return nil, errors.New("leader bus timeout")
	}
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("leader bus timeout")
	}
	out := make(robot.Action, len(f.action))
	for k, v := range f.action {
		out[k] = v
	}
	return out, nil
}

func (f *fakeLeader) Close() error { return nil }

func (f *fakeLeader) restoreCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restores
}

type fakeFollower struct {
	mu       sync.Mutex
	actions  []robot.Action
	failNext int
}

func (f *fakeFollower) SendAction(ctx context.Context, a robot.Action) (robot.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("follower write failed")
	}
	f.actions = append(f.actions, a)
	return a, nil
}

func (f *fakeFollower) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.actions)
}

func (f *fakeFollower) last() robot.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.actions) == 0 {
		return nil
	}
	return f.actions[len(f.actions)-1]
}

func testBridge(leader *fakeLeader, follower *fakeFollower, cfg Config) *Bridge {
	if cfg.RateHz == 0 {
		cfg.RateHz = 500 // fast cycles keep the tests quick
	}
	return New(leader, follower, cfg, event.Discard)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestBridge_MirrorsLeaderToFollower(t *testing.T) {
	leader := &fakeLeader{action: robot.Action{"shoulder_pan.pos": 42.0}}
	follower := &fakeFollower{}
	b := testBridge(leader, follower, Config{})

	done := make(chan error, 1)
	go func() { done <- b.Start(context.Background()) }()

	waitFor(t, func() bool { return follower.count() >= 3 })
	assert.Equal(t, Bridging, b.State())
	assert.Equal(t, 42.0, follower.last()["shoulder_pan.pos"])

	b.Stop()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Stopped, b.State())
}

func TestBridge_TransientFailureSkipsCycle(t *testing.T) {
	leader := &fakeLeader{
		action:   robot.Action{"elbow_flex.pos": 10.0},
		failNext: 2, // below the threshold of 3
	}
	follower := &fakeFollower{}
	b := testBridge(leader, follower, Config{FailureThreshold: 3})

	done := make(chan error, 1)
	go func() { done <- b.Start(context.Background()) }()

	// Two failed cycles, then recovery: the bridge stays up.
	waitFor(t, func() bool { return follower.count() >= 2 })
	assert.Equal(t, Bridging, b.State())

	b.Stop()
	<-done
}

func TestBridge_ConsecutiveFailuresForceStop(t *testing.T) {
	leader := &fakeLeader{failAlways: true}
	follower := &fakeFollower{}
	b := testBridge(leader, follower, Config{FailureThreshold: 3})

	err := b.Start(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)

	assert.Equal(t, Stopped, b.State())
	assert.Equal(t, 0, follower.count())
	// Torque restored exactly once despite the error path.
	assert.Equal(t, 1, leader.restoreCount())
}

func TestBridge_FollowerFailuresCountToo(t *testing.T) {
	leader := &fakeLeader{action: robot.Action{"wrist_roll.pos": -5.0}}
	follower := &fakeFollower{failNext: 10}
	b := testBridge(leader, follower, Config{FailureThreshold: 3})

	err := b.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, Stopped, b.State())
}

func TestBridge_StopRestoresTorqueOnce(t *testing.T) {
	leader := &fakeLeader{action: robot.Action{"gripper.pos": 0.0}}
	follower := &fakeFollower{}
	b := testBridge(leader, follower, Config{})

	done := make(chan error, 1)
	go func() { done <- b.Start(context.Background()) }()
	waitFor(t, func() bool { return follower.count() >= 1 })

	b.Stop()
	<-done
	b.Stop() // second stop is harmless

	assert.Equal(t, 1, leader.restoreCount())
	assert.Equal(t, 1, leader.releases)
}

func TestBridge_StartTwiceFails(t *testing.T) {
	leader := &fakeLeader{action: robot.Action{}}
	b := testBridge(leader, &fakeFollower{}, Config{})

	done := make(chan error, 1)
	go func() { done <- b.Start(context.Background()) }()
	waitFor(t, func() bool { return b.State() == Bridging })

	err := b.Start(context.Background())
	assert.Error(t, err)

	b.Stop()
	<-done

	// A stopped bridge cannot be restarted.
	assert.Error(t, b.Start(context.Background()))
}

func TestBridge_Remap(t *testing.T) {
	leader := &fakeLeader{action: robot.Action{"shoulder_pan.pos": 7.0}}
	follower := &fakeFollower{}
	b := testBridge(leader, follower, Config{
		Remap: map[units.JointName]units.JointName{units.ShoulderPan: "base_yaw"},
	})

	done := make(chan error, 1)
	go func() { done <- b.Start(context.Background()) }()
	waitFor(t, func() bool { return follower.count() >= 1 })
	b.Stop()
	<-done

	act := follower.last()
	assert.Contains(t, act, "base_yaw.pos")
	assert.NotContains(t, act, "shoulder_pan.pos")
}

func TestBridge_StopObservableWithinOnePeriod(t *testing.T) {
	leader := &fakeLeader{action: robot.Action{"elbow_flex.pos": 1.0}}
	follower := &fakeFollower{}
	b := testBridge(leader, follower, Config{RateHz: 50})

	done := make(chan error, 1)
	go func() { done <- b.Start(context.Background()) }()
	waitFor(t, func() bool { return follower.count() >= 1 })

	start := time.Now()
	b.Stop()
	<-done
	assert.Less(t, time.Since(start), 2*b.Period())
}
