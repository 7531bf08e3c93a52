package gridnav

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWheelDrive struct {
	mock.Mock
}

func (m *mockWheelDrive) SetWheels(left, right WheelCommand) error {
	args := m.Called(left, right)
	return args.Error(0)
}

func symmetricConstants() KinematicConstants {
	return KinematicConstants{LeftRadius: 2.7, RightRadius: 2.7, Width: 17.5}
}

func TestKinematicConstantsValidate(t *testing.T) {
	assert.NoError(t, OdometryConstants().Validate())
	assert.NoError(t, NavigationConstants().Validate())

	for _, k := range []KinematicConstants{
		{LeftRadius: 0, RightRadius: 2, Width: 10},
		{LeftRadius: 2, RightRadius: -1, Width: 10},
		{LeftRadius: 2, RightRadius: 2, Width: 0},
	} {
		err := k.Validate()
		assert.True(t, errors.Is(err, ErrInvalidConstants), "expected ErrInvalidConstants for %+v", k)
	}

	_, err := NewDifferentialDrive(KinematicConstants{}, NavigationConstants(), 0, &mockWheelDrive{})
	assert.ErrorIs(t, err, ErrInvalidConstants)
}

func TestTickDeltas(t *testing.T) {
	k := symmetricConstants()
	d, err := NewDifferentialDrive(k, k, 0, &mockWheelDrive{})
	require.NoError(t, err)

	// one full revolution of both wheels rolls one circumference
	disp, dh := d.TickDeltas(360, 360)
	assert.InDelta(t, 2*math.Pi*k.LeftRadius, disp, 1e-9)
	assert.InDelta(t, 0, dh, 1e-9)

	// opposite wheels spin in place; left forward turns clockwise
	disp, dh = d.TickDeltas(100, -100)
	assert.InDelta(t, 0, disp, 1e-9)
	assert.Greater(t, dh, 0.0)
	assert.InDelta(t, 200*k.LeftRadius/k.Width, dh, 1e-9)
}

func TestWheelCommandsRoundTrip(t *testing.T) {
	k := symmetricConstants()
	d, err := NewDifferentialDrive(k, k, 10000, &mockWheelDrive{})
	require.NoError(t, err)

	tests := []struct {
		forward, rotation float64
	}{
		{10, 0},
		{0, 45},
		{0, -90},
		{7, 20},
		{-5, 10},
	}

	for _, tt := range tests {
		left, right := d.WheelCommands(tt.forward, tt.rotation)
		// one second worth of rotation at the commanded speed
		disp, dh := d.TickDeltas(int(left.Signed()), int(right.Signed()))

		// speeds are truncated to whole degrees per second
		tol := 2 * math.Pi * k.LeftRadius / 360
		assert.InDelta(t, tt.forward, disp, tol, "forward for %+v", tt)
		assert.InDelta(t, tt.rotation, dh, 2*tol*360/(2*math.Pi*k.Width)*2, "rotation for %+v", tt)
	}
}

func TestWheelCommandsClampAndDirection(t *testing.T) {
	d, err := NewDifferentialDrive(OdometryConstants(), NavigationConstants(), 300, &mockWheelDrive{})
	require.NoError(t, err)

	left, right := d.WheelCommands(100, 0)
	assert.Equal(t, 300, left.Speed)
	assert.Equal(t, 300, right.Speed)
	assert.Equal(t, Forward, left.Direction)

	left, right = d.WheelCommands(-100, 0)
	assert.Equal(t, Backward, left.Direction)
	assert.Equal(t, Backward, right.Direction)
	assert.Equal(t, 300, left.Speed)

	left, right = d.WheelCommands(0, 30)
	assert.Equal(t, Forward, left.Direction)
	assert.Equal(t, Backward, right.Direction)

	left, right = d.WheelCommands(0, 0)
	assert.Equal(t, WheelCommand{Speed: 0, Direction: Forward}, left)
	assert.Equal(t, WheelCommand{Speed: 0, Direction: Forward}, right)
}

func TestSetVelocityDrivesWheels(t *testing.T) {
	drive := &mockWheelDrive{}
	d, err := NewDifferentialDrive(OdometryConstants(), NavigationConstants(), 0, drive)
	require.NoError(t, err)

	left, right := d.WheelCommands(7, 0)
	drive.On("SetWheels", left, right).Return(nil).Once()
	drive.On("SetWheels", WheelCommand{}, WheelCommand{}).Return(nil).Once()

	require.NoError(t, d.SetVelocity(7, 0))
	f, r := d.Velocity()
	assert.Equal(t, 7.0, f)
	assert.Equal(t, 0.0, r)

	require.NoError(t, d.Stop())
	drive.AssertExpectations(t)
}

func TestSetVelocityWrapsDriveError(t *testing.T) {
	drive := &mockWheelDrive{}
	boom := errors.New("bridge offline")
	drive.On("SetWheels", mock.Anything, mock.Anything).Return(boom)

	d, err := NewDifferentialDrive(OdometryConstants(), NavigationConstants(), 0, drive)
	require.NoError(t, err)

	err = d.SetVelocity(5, 5)
	assert.ErrorIs(t, err, boom)
}
