package gridnav

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSnapper(t *testing.T) (*GridSnapper, *Odometer) {
	t.Helper()
	odo := newTestOdometer(t, &fakeEncoders{})
	return NewGridSnapper(odo, GridSnapperConfig{Enabled: true, SensorSeparation: 20, MaxError: 10}), odo
}

func TestGridSnapperCorrection(t *testing.T) {
	tests := []struct {
		name       string
		pose       Pose
		leftHit    float64 // along-track coordinate when the left sensor fires
		rightHit   float64
		wantTheta  float64
		wantApply  bool
		wantReject bool
	}{
		{
			name:      "north, right sensor behind",
			pose:      Pose{X: 50, Y: 0, Theta: 2},
			leftHit:   30.48,
			rightHit:  31.48,
			wantTheta: math.Atan(1.0/20) * 180 / math.Pi,
			wantApply: true,
		},
		{
			name:      "east, left sensor ahead",
			pose:      Pose{X: 0, Y: 50, Theta: 95},
			leftHit:   61.96,
			rightHit:  60.96,
			wantTheta: 90 - math.Atan(1.0/20)*180/math.Pi,
			wantApply: true,
		},
		{
			name:      "south",
			pose:      Pose{X: 50, Y: 100, Theta: 180},
			leftHit:   60.96,
			rightHit:  61.46,
			wantTheta: 180 - math.Atan(0.5/20)*180/math.Pi,
			wantApply: true,
		},
		{
			name:      "west",
			pose:      Pose{X: 100, Y: 50, Theta: 271},
			leftHit:   60.96,
			rightHit:  60.46,
			wantTheta: 270 + math.Atan(0.5/20)*180/math.Pi,
			wantApply: true,
		},
		{
			name:       "skew beyond the error bound is discarded",
			pose:       Pose{X: 50, Y: 0, Theta: 3},
			leftHit:    30.48,
			rightHit:   35.48,
			wantTheta:  3,
			wantReject: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, odo := newTestSnapper(t)
			odo.SetPose(SetXYTheta(tt.pose.X, tt.pose.Y, tt.pose.Theta))
			dir := odo.Grid().Direction

			setAlong := func(v float64) {
				if dir == North || dir == South {
					odo.SetPose(PoseUpdate{Y: &v})
				} else {
					odo.SetPose(PoseUpdate{X: &v})
				}
			}

			setAlong(tt.leftHit)
			g.LineDetected(LineEvent{Side: Left})
			l, r := g.Latches()
			assert.Equal(t, tt.leftHit, l)
			assert.Zero(t, r)

			setAlong(tt.rightHit)
			g.LineDetected(LineEvent{Side: Right})

			assert.InDelta(t, NormalizeAngle(tt.wantTheta), odo.Pose().Theta, 1e-9)
			if tt.wantApply {
				assert.Equal(t, 1, g.Corrections())
			}
			if tt.wantReject {
				assert.Equal(t, 0, g.Corrections())
				assert.Equal(t, 1, g.Rejections())
			}

			l, r = g.Latches()
			assert.Zero(t, l, "latches reset after a pair")
			assert.Zero(t, r)
		})
	}
}

func TestGridSnapperDisabled(t *testing.T) {
	g, odo := newTestSnapper(t)
	odo.SetPose(SetXYTheta(10, 30, 4))

	g.LineDetected(LineEvent{Side: Left})
	l, _ := g.Latches()
	require.NotZero(t, l)

	g.Disable()
	assert.False(t, g.Enabled())
	l, _ = g.Latches()
	assert.Zero(t, l, "disabling clears pending latches")

	g.LineDetected(LineEvent{Side: Left})
	g.LineDetected(LineEvent{Side: Right})
	assert.Equal(t, 0, g.Corrections())
	assert.Equal(t, 4.0, odo.Pose().Theta)

	g.Enable()
	assert.True(t, g.Enabled())
}

func TestGridSnapperIgnoresSameSideRepeats(t *testing.T) {
	g, odo := newTestSnapper(t)
	odo.SetPose(SetXYTheta(10, 30, 0))

	g.LineDetected(LineEvent{Side: Left})
	y := 31.0
	odo.SetPose(PoseUpdate{Y: &y})
	g.LineDetected(LineEvent{Side: Left})

	l, r := g.Latches()
	assert.Equal(t, 31.0, l, "a repeat overwrites the latch")
	assert.Zero(t, r)
	assert.Equal(t, 0, g.Corrections())
}
