package gridnav

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher(t *testing.T) {
	p := NewPublisher(nil, "")
	assert.Equal(t, "gridbot/pose", p.PoseTopic())
	assert.Equal(t, "gridbot/localization", p.LocalizationTopic())

	p = NewPublisher(nil, "lab/bot1")
	assert.Equal(t, "lab/bot1/pose", p.PoseTopic())
}

func TestPublisher_NotConnected(t *testing.T) {
	assert.ErrorIs(t, NewPublisher(nil, "").PublishState(RobotState{}), ErrNotConnected)

	mock := NewMockClient()
	p := NewPublisher(mock, "")
	assert.ErrorIs(t, p.PublishState(RobotState{}), ErrNotConnected)
	assert.Empty(t, mock.GetPublishedMessages())
	assert.Zero(t, p.Published())
}

func TestPublisher_PublishError(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.SetPublishError(errors.New("broker gone"))

	err := NewPublisher(mock, "").PublishState(RobotState{})
	assert.ErrorContains(t, err, "broker gone")
}

func TestPublisher_PoseAndLocalization(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	p := NewPublisher(mock, "gridbot")

	state := RobotState{
		Pose:         Pose{X: 30.48, Y: 60.96, Theta: 90},
		Grid:         GridPosition{NodeX: 1, NodeY: 2, Direction: East},
		Localization: LocalizationStatus{Stage: StageIdle},
		Sweep:        "clear",
		Updated:      epoch,
	}
	require.NoError(t, p.PublishState(state))

	poses := mock.MessagesOn("gridbot/pose")
	require.Len(t, poses, 1)
	assert.False(t, poses[0].Retain, "pose is a stream")

	var pose struct {
		Pose      Pose   `json:"pose"`
		Sweep     string `json:"sweep"`
		Timestamp int64  `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(poses[0].Payload, &pose))
	assert.Equal(t, state.Pose, pose.Pose)
	assert.Equal(t, "clear", pose.Sweep)
	assert.Equal(t, epoch.Unix(), pose.Timestamp)

	loc := mock.MessagesOn("gridbot/localization")
	require.Len(t, loc, 1)
	assert.True(t, loc[0].Retain, "localization status is retained")

	// unchanged status is not republished
	require.NoError(t, p.PublishState(state))
	assert.Len(t, mock.MessagesOn("gridbot/pose"), 2)
	assert.Len(t, mock.MessagesOn("gridbot/localization"), 1)

	state.Localization = LocalizationStatus{Running: true, Stage: StageHeading}
	require.NoError(t, p.PublishState(state))
	loc = mock.MessagesOn("gridbot/localization")
	require.Len(t, loc, 2)

	var status LocalizationStatus
	require.NoError(t, json.Unmarshal(loc[1].Payload, &status))
	assert.True(t, status.Running)
	assert.Equal(t, StageHeading, status.Stage)

	assert.Equal(t, 5, p.Published())
}

func TestPublisher_Run(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	p := NewPublisher(mock, "")

	st := NewStateTracker(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, st, 5*time.Millisecond)
		close(done)
	}()

	// nothing is published before the first pose
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, mock.GetPublishedMessages())

	st.UpdatePose(Pose{X: 1}, GridPosition{}, epoch)
	assert.Eventually(t, func() bool {
		return len(mock.MessagesOn(p.PoseTopic())) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
