package gridnav

import (
	"fmt"
	"math"
	"sync"
)

// KinematicConstants describes a differential-drive chassis
type KinematicConstants struct {
	LeftRadius  float64 `yaml:"leftRadius"`  // cm
	RightRadius float64 `yaml:"rightRadius"` // cm
	Width       float64 `yaml:"width"`       // wheel separation, cm
}

// OdometryConstants are tuned for pose integration
func OdometryConstants() KinematicConstants {
	return KinematicConstants{LeftRadius: 2.665, RightRadius: 2.68, Width: 17.61}
}

// NavigationConstants are tuned for converting velocity requests into wheel speeds
func NavigationConstants() KinematicConstants {
	return KinematicConstants{LeftRadius: 2.64, RightRadius: 2.65, Width: 17.42}
}

// Validate checks that every constant is strictly positive
func (k KinematicConstants) Validate() error {
	if k.LeftRadius <= 0 || k.RightRadius <= 0 || k.Width <= 0 {
		return fmt.Errorf("%w: left=%v right=%v width=%v", ErrInvalidConstants, k.LeftRadius, k.RightRadius, k.Width)
	}
	return nil
}

// DefaultMaxWheelSpeed is the motor ceiling in degrees per second
const DefaultMaxWheelSpeed = 900

// DifferentialDrive converts between wheel rotations and body motion
type DifferentialDrive struct {
	odometry      KinematicConstants
	navigation    KinematicConstants
	maxWheelSpeed int
	drive         WheelDrive

	mu       sync.Mutex
	forward  float64
	rotation float64
}

// NewDifferentialDrive validates both constant sets and binds the wheel drive
func NewDifferentialDrive(odometry, navigation KinematicConstants, maxWheelSpeed int, drive WheelDrive) (*DifferentialDrive, error) {
	if err := odometry.Validate(); err != nil {
		return nil, fmt.Errorf("odometry constants: %w", err)
	}
	if err := navigation.Validate(); err != nil {
		return nil, fmt.Errorf("navigation constants: %w", err)
	}
	if maxWheelSpeed <= 0 {
		maxWheelSpeed = DefaultMaxWheelSpeed
	}
	return &DifferentialDrive{
		odometry:      odometry,
		navigation:    navigation,
		maxWheelSpeed: maxWheelSpeed,
		drive:         drive,
	}, nil
}

// Odometry returns the constants used for pose integration
func (d *DifferentialDrive) Odometry() KinematicConstants { return d.odometry }

// Navigation returns the constants used for wheel commands
func (d *DifferentialDrive) Navigation() KinematicConstants { return d.navigation }

// TickDeltas converts encoder deltas (degrees of wheel rotation) into a
// displacement in cm and a heading change in degrees, positive clockwise.
func (d *DifferentialDrive) TickDeltas(leftTicks, rightTicks int) (displacement, headingDelta float64) {
	l := float64(leftTicks) * d.odometry.LeftRadius
	r := float64(rightTicks) * d.odometry.RightRadius
	displacement = (l + r) * math.Pi / 360
	headingDelta = (l - r) / d.odometry.Width
	return displacement, headingDelta
}

// WheelCommands converts a forward speed (cm/s) and a rotation rate
// (deg/s, positive clockwise) into per-wheel commands.
func (d *DifferentialDrive) WheelCommands(forward, rotation float64) (left, right WheelCommand) {
	k := d.navigation
	turn := rotation * k.Width * math.Pi / 360
	leftSpeed := (forward + turn) * 180 / (k.LeftRadius * math.Pi)
	rightSpeed := (forward - turn) * 180 / (k.RightRadius * math.Pi)
	return d.command(leftSpeed), d.command(rightSpeed)
}

func (d *DifferentialDrive) command(speed float64) WheelCommand {
	c := WheelCommand{Direction: Forward}
	if speed < 0 {
		c.Direction = Backward
		speed = -speed
	}
	if speed > float64(d.maxWheelSpeed) {
		speed = float64(d.maxWheelSpeed)
	}
	c.Speed = int(speed)
	return c
}

// SetVelocity commands the wheels to the requested body velocity
func (d *DifferentialDrive) SetVelocity(forward, rotation float64) error {
	left, right := d.WheelCommands(forward, rotation)
	d.mu.Lock()
	d.forward, d.rotation = forward, rotation
	d.mu.Unlock()
	if err := d.drive.SetWheels(left, right); err != nil {
		return fmt.Errorf("setting wheel speeds: %w", err)
	}
	return nil
}

// Stop halts both wheels
func (d *DifferentialDrive) Stop() error {
	return d.SetVelocity(0, 0)
}

// Velocity returns the last requested forward speed and rotation rate
func (d *DifferentialDrive) Velocity() (forward, rotation float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.forward, d.rotation
}
