package gridnav

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// NavigationConfig controls motion primitives and obstacle handling
type NavigationConfig struct {
	ForwardSpeed      float64       `yaml:"forwardSpeed"`      // cm/s
	RotationSpeed     float64       `yaml:"rotationSpeed"`     // deg/s at large heading errors
	MinRotationSpeed  float64       `yaml:"minRotationSpeed"`  // deg/s floor near the target
	SlowdownAngle     float64       `yaml:"slowdownAngle"`     // error below which rotation slows proportionally
	RotationTolerance float64       `yaml:"rotationTolerance"` // degrees
	PollInterval      time.Duration `yaml:"pollInterval"`
	ClearanceNear     int           `yaml:"clearanceNear"` // cm; stop creeping at this range
	ClearanceFar      int           `yaml:"clearanceFar"`  // cm; a tile advance needs this much room
	PalletDiff        int           `yaml:"palletDiff"`    // cm of high-low difference that marks a pallet
	SweepArc          float64       `yaml:"sweepArc"`
	SweepSpeed        float64       `yaml:"sweepSpeed"`
	SweepInterval     time.Duration `yaml:"sweepInterval"`
	SweepSamples      int           `yaml:"sweepSamples"`
	ScanAngle         float64       `yaml:"scanAngle"`
	Increment         float64       `yaml:"increment"` // remaining distance that still warrants a tile advance
	ArrivalTolerance  float64       `yaml:"arrivalTolerance"`
	ObstacleBand      float64       `yaml:"obstacleBand"`
	DetourStep        float64       `yaml:"detourStep"`
	DetourPass        float64       `yaml:"detourPass"`
	MaxDetourSteps    int           `yaml:"maxDetourSteps"`
	MaxLegs           int           `yaml:"maxLegs"`
	EdgeNodeMin       int           `yaml:"edgeNodeMin"`
	EdgeNodeMax       int           `yaml:"edgeNodeMax"`
	MoveTimeoutSlack  time.Duration `yaml:"moveTimeoutSlack"`
	TurnTimeout       time.Duration `yaml:"turnTimeout"`
}

type axis int

const (
	axisX axis = iota
	axisY
)

func (a axis) of(p Pose) float64 {
	if a == axisX {
		return p.X
	}
	return p.Y
}

func (a axis) String() string {
	if a == axisX {
		return "x"
	}
	return "y"
}

// Navigator drives the robot using the odometer as feedback
type Navigator struct {
	odo      *Odometer
	robot    *DifferentialDrive
	ranges   *RangePoller
	clock    Clock
	cfg      NavigationConfig
	tileSize float64

	mu        sync.Mutex
	detectors []*LineDetector
	lastSweep SweepResult
	detours   int
}

// NewNavigator wires the motion primitives to their feedback sources
func NewNavigator(odo *Odometer, robot *DifferentialDrive, ranges *RangePoller, cfg NavigationConfig, tileSize float64, clock Clock) *Navigator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.MoveTimeoutSlack <= 0 {
		cfg.MoveTimeoutSlack = 5 * time.Second
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 20 * time.Second
	}
	if cfg.SweepSamples <= 0 {
		cfg.SweepSamples = 5
	}
	if cfg.MaxLegs <= 0 {
		cfg.MaxLegs = 40
	}
	if cfg.MaxDetourSteps <= 0 {
		cfg.MaxDetourSteps = 3
	}
	return &Navigator{
		odo:      odo,
		robot:    robot,
		ranges:   ranges,
		clock:    clock,
		cfg:      cfg,
		tileSize: tileSize,
	}
}

// Odometer returns the pose source
func (n *Navigator) Odometer() *Odometer { return n.odo }

// Drive returns the wheel controller
func (n *Navigator) Drive() *DifferentialDrive { return n.robot }

// Ranges returns the ultrasonic poller
func (n *Navigator) Ranges() *RangePoller { return n.ranges }

// Clock returns the time source
func (n *Navigator) Clock() Clock { return n.clock }

// SetLineDetectors sets the detectors enabled while advancing a tile
func (n *Navigator) SetLineDetectors(detectors ...*LineDetector) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.detectors = detectors
}

// LastSweep returns the most recent CheckAhead result
func (n *Navigator) LastSweep() SweepResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastSweep
}

// Detours returns how many obstacle detours have been driven
func (n *Navigator) Detours() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.detours
}

// wait sleeps one poll interval after checking for cancellation and the deadline
func (n *Navigator) wait(ctx context.Context, deadline time.Time, what string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.clock.Now().After(deadline) {
		return fmt.Errorf("%s: %w", what, ErrTimeout)
	}
	n.clock.Sleep(n.cfg.PollInterval)
	return nil
}

func (n *Navigator) halt() {
	if err := n.robot.Stop(); err != nil {
		Logf("[nav] stop failed: %v", err)
	}
}

func (n *Navigator) moveDeadline(distance, speed float64) time.Time {
	seconds := math.Abs(distance) / speed
	return n.clock.Now().Add(time.Duration(seconds*float64(time.Second)) + n.cfg.MoveTimeoutSlack)
}

// GoForward drives straight for distance cm; negative values reverse
func (n *Navigator) GoForward(ctx context.Context, distance float64) error {
	return n.GoForwardAt(ctx, distance, n.cfg.ForwardSpeed)
}

// GoForwardAt drives straight at the given speed until the odometer has
// moved |distance| from the starting point
func (n *Navigator) GoForwardAt(ctx context.Context, distance, speed float64) error {
	if distance == 0 {
		return nil
	}
	start := n.odo.Pose()
	v := math.Abs(speed)
	if distance < 0 {
		v = -v
	}
	if err := n.robot.SetVelocity(v, 0); err != nil {
		return err
	}
	defer n.halt()

	deadline := n.moveDeadline(distance, speed)
	want := math.Abs(distance)
	for {
		p := n.odo.Pose()
		if Distance(start.X, start.Y, p.X, p.Y) >= want {
			return nil
		}
		if err := n.wait(ctx, deadline, fmt.Sprintf("go forward %.1f", distance)); err != nil {
			return err
		}
	}
}

// TurnTo rotates in place along the shortest arc to an absolute heading.
// Speed decays with the remaining error down to MinRotationSpeed.
func (n *Navigator) TurnTo(ctx context.Context, heading float64) error {
	heading = NormalizeAngle(heading)
	deadline := n.clock.Now().Add(n.cfg.TurnTimeout)
	defer n.halt()

	for {
		e := MinimumAngleFromTo(n.odo.Pose().Theta, heading)
		if math.Abs(e) <= n.cfg.RotationTolerance {
			return nil
		}
		speed := n.cfg.RotationSpeed * math.Min(1, math.Abs(e)/n.cfg.SlowdownAngle)
		if speed < n.cfg.MinRotationSpeed {
			speed = n.cfg.MinRotationSpeed
		}
		if e < 0 {
			speed = -speed
		}
		if err := n.robot.SetVelocity(0, speed); err != nil {
			return err
		}
		if err := n.wait(ctx, deadline, fmt.Sprintf("turn to %.1f", heading)); err != nil {
			return err
		}
	}
}

// TurnRelative rotates by delta degrees, positive clockwise
func (n *Navigator) TurnRelative(ctx context.Context, delta float64) error {
	return n.TurnTo(ctx, n.odo.Pose().Theta+delta)
}

// GoToPoint travels to (x, y) with alternating axis-aligned legs
func (n *Navigator) GoToPoint(ctx context.Context, x, y float64) error {
	Logf("[nav] going to (%.1f, %.1f) from %s", x, y, n.odo.Pose())
	for leg := 0; ; leg++ {
		p := n.odo.Pose()
		if Distance(p.X, p.Y, x, y) < n.cfg.ArrivalTolerance {
			Logf("[nav] arrived at %s after %d legs", p, leg)
			return nil
		}
		if leg >= n.cfg.MaxLegs {
			return fmt.Errorf("go to (%.1f, %.1f) stuck at %s: %w", x, y, p, ErrNavigationFailed)
		}

		var err error
		if leg%2 == 0 {
			err = n.goTowards(ctx, axisX, x, y)
		} else {
			err = n.goTowards(ctx, axisY, y, x)
		}
		if err != nil {
			return fmt.Errorf("go to (%.1f, %.1f): %w", x, y, err)
		}
	}
}

func travelDirection(a axis, remaining float64) Direction {
	if a == axisX {
		if remaining > 0 {
			return East
		}
		return West
	}
	if remaining > 0 {
		return North
	}
	return South
}

// goTowards closes the gap along one axis. Whole tiles are covered with
// Advance while the scan reports room; the rest is a creep that stops short
// of anything within ClearanceNear.
func (n *Navigator) goTowards(ctx context.Context, a axis, target, perpTarget float64) error {
	remaining := target - a.of(n.odo.Pose())
	// while the point is still out of reach, at least one axis is off by
	// more than tolerance/sqrt2
	if math.Abs(remaining) < n.cfg.ArrivalTolerance/math.Sqrt2 {
		return nil
	}
	dir := travelDirection(a, remaining)
	if err := n.TurnTo(ctx, dir.Heading()); err != nil {
		return err
	}

	blocked := false
	for math.Abs(target-a.of(n.odo.Pose())) > n.cfg.Increment {
		clear, err := n.scan(ctx, dir)
		if err != nil {
			return err
		}
		if !clear {
			blocked = true
			break
		}
		if err := n.Advance(ctx, dir); err != nil {
			return err
		}
	}

	if err := n.creep(ctx, a, target, dir); err != nil {
		return err
	}

	if !blocked {
		return nil
	}
	var perp float64
	if a == axisX {
		perp = n.odo.Pose().Y
	} else {
		perp = n.odo.Pose().X
	}
	if math.Abs(perp-perpTarget) < n.cfg.ObstacleBand {
		return n.GoAroundObstacle(ctx, dir)
	}
	return nil
}

// scan checks both sides of the travel direction and straight ahead with the high sensor
func (n *Navigator) scan(ctx context.Context, dir Direction) (bool, error) {
	heading := dir.Heading()
	clear := true
	for _, offset := range []float64{-n.cfg.ScanAngle, n.cfg.ScanAngle, 0} {
		if err := n.TurnTo(ctx, heading+offset); err != nil {
			return false, err
		}
		if err := n.settle(ctx); err != nil {
			return false, err
		}
		if n.ranges.High() < n.cfg.ClearanceFar {
			clear = false
		}
	}
	return clear, nil
}

// settle waits one sweep interval so the range poller sees the new heading
func (n *Navigator) settle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.clock.Sleep(n.cfg.SweepInterval)
	return nil
}

func (n *Navigator) creep(ctx context.Context, a axis, target float64, dir Direction) error {
	sign := 1.0
	if dir == West || dir == South {
		sign = -1
	}
	remaining := sign * (target - a.of(n.odo.Pose()))
	if remaining <= 0 {
		return nil
	}
	if err := n.robot.SetVelocity(n.cfg.ForwardSpeed, 0); err != nil {
		return err
	}
	defer n.halt()

	deadline := n.moveDeadline(remaining, n.cfg.ForwardSpeed)
	for {
		if sign*(target-a.of(n.odo.Pose())) <= 0 {
			return nil
		}
		if n.ranges.High() <= n.cfg.ClearanceNear {
			Logf("[nav] creep along %s halted by obstacle at %d cm", a, n.ranges.High())
			return nil
		}
		if err := n.wait(ctx, deadline, "creep"); err != nil {
			return err
		}
	}
}

// Advance moves one tile forward with the line detectors enabled, then
// squares the heading to the travel direction
func (n *Navigator) Advance(ctx context.Context, dir Direction) error {
	n.mu.Lock()
	detectors := append([]*LineDetector{}, n.detectors...)
	n.mu.Unlock()

	for _, d := range detectors {
		if err := d.Start(ctx); err != nil {
			Logf("[nav] starting %s line detector: %v", d.Side(), err)
		}
	}
	defer func() {
		for _, d := range detectors {
			d.Stop()
		}
	}()

	if err := n.GoForward(ctx, n.tileSize); err != nil {
		return err
	}
	return n.TurnTo(ctx, dir.Heading())
}

// blockedAt reports whether the high sensor sees something closer than cm
// after facing heading
func (n *Navigator) blockedAt(ctx context.Context, heading float64, cm int) (bool, error) {
	if err := n.TurnTo(ctx, heading); err != nil {
		return false, err
	}
	if err := n.settle(ctx); err != nil {
		return false, err
	}
	return n.ranges.High() < cm, nil
}

// GoAroundObstacle drives a rectangular detour around whatever blocks the
// travel direction and rejoins the original line of travel
func (n *Navigator) GoAroundObstacle(ctx context.Context, dir Direction) error {
	forward := dir.Heading()
	lineAxis := axisY
	if dir == North || dir == South {
		lineAxis = axisX
	}
	line := lineAxis.of(n.odo.Pose())
	Logf("[nav] detouring around obstacle heading %s at %s", dir, n.odo.Pose())

	side := 90.0
	blocked, err := n.blockedAt(ctx, forward+side, n.cfg.ClearanceNear+5)
	if err != nil {
		return err
	}
	if blocked {
		side = -90
		if err := n.TurnTo(ctx, forward+side); err != nil {
			return err
		}
	}

	// step sideways until the original direction is clear
	for step := 0; ; step++ {
		if err := n.GoForward(ctx, n.cfg.DetourStep); err != nil {
			return err
		}
		blocked, err := n.blockedAt(ctx, forward, n.cfg.ClearanceFar)
		if err != nil {
			return err
		}
		if !blocked {
			break
		}
		if step+1 >= n.cfg.MaxDetourSteps {
			return fmt.Errorf("detour heading %s: no opening: %w", dir, ErrNavigationFailed)
		}
		if err := n.TurnTo(ctx, forward+side); err != nil {
			return err
		}
	}

	// pass the obstacle until the way back to the line is open
	for step := 0; ; step++ {
		if err := n.TurnTo(ctx, forward); err != nil {
			return err
		}
		pass := n.cfg.DetourPass
		if step > 0 {
			pass = n.cfg.DetourStep
		}
		if err := n.GoForward(ctx, pass); err != nil {
			return err
		}
		offset := math.Abs(lineAxis.of(n.odo.Pose()) - line)
		blocked, err := n.blockedAt(ctx, forward-side, int(offset)+n.cfg.ClearanceNear)
		if err != nil {
			return err
		}
		if !blocked {
			break
		}
		if step+1 >= n.cfg.MaxDetourSteps {
			return fmt.Errorf("detour heading %s: cannot rejoin line: %w", dir, ErrNavigationFailed)
		}
	}

	if err := n.GoForward(ctx, math.Abs(lineAxis.of(n.odo.Pose())-line)); err != nil {
		return err
	}
	if err := n.TurnTo(ctx, forward); err != nil {
		return err
	}

	n.mu.Lock()
	n.detours++
	n.mu.Unlock()
	Logf("[nav] detour complete at %s", n.odo.Pose())
	return nil
}
