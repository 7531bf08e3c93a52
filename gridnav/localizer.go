package gridnav

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalizerConfig controls absolute position recovery
type LocalizerConfig struct {
	ForwardSpeed      float64       `yaml:"forwardSpeed"`      // cm/s while seeking a gridline
	RotationSpeed     float64       `yaml:"rotationSpeed"`     // deg/s during the wall sweep
	WallDistance      int           `yaml:"wallDistance"`      // cm; closer readings count as a wall
	WallMargin        int           `yaml:"wallMargin"`        // hysteresis before the wall counts as lost
	HeadingCorrection float64       `yaml:"headingCorrection"` // degrees added for sensor mounting bias
	LightThreshold    int           `yaml:"lightThreshold"`
	BackupDistance    float64       `yaml:"backupDistance"`
	RetreatDistance   float64       `yaml:"retreatDistance"`
	PollInterval      time.Duration `yaml:"pollInterval"`
	SweepTimeout      time.Duration `yaml:"sweepTimeout"`
	LineTimeout       time.Duration `yaml:"lineTimeout"`
}

// SensorConfig is the light sensor geometry shared by the localizer,
// the grid snapper and the simulator
type SensorConfig struct {
	LightSeparation float64 `yaml:"lightSeparation"` // cm between the two light sensors
	LightOffset     float64 `yaml:"lightOffset"`     // cm the light sensors sit behind the axle
}

// Localizer recovers the absolute pose in two stages: an ultrasonic wall
// sweep for heading, then a light-sensor gridline snap for position.
type Localizer struct {
	nav     *Navigator
	odo     *Odometer
	robot   *DifferentialDrive
	ranges  *RangePoller
	clock   Clock
	lights  [2]LightSensor
	sensors SensorConfig
	cfg     LocalizerConfig

	mu      sync.Mutex
	status  LocalizationStatus
	session *LocalizationSession
}

// NewLocalizer builds a localizer on top of a navigator
func NewLocalizer(nav *Navigator, left, right LightSensor, sensors SensorConfig, cfg LocalizerConfig) *Localizer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 20 * time.Second
	}
	if cfg.LineTimeout <= 0 {
		cfg.LineTimeout = 30 * time.Second
	}
	return &Localizer{
		nav:     nav,
		odo:     nav.Odometer(),
		robot:   nav.Drive(),
		ranges:  nav.Ranges(),
		clock:   nav.Clock(),
		lights:  [2]LightSensor{left, right},
		sensors: sensors,
		cfg:     cfg,
		status:  LocalizationStatus{Stage: StageIdle},
	}
}

// Status returns a snapshot of the localizer state
func (l *Localizer) Status() LocalizationStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.status
	if l.session != nil {
		sess := *l.session
		s.Session = &sess
	}
	return s
}

// Localize runs the heading fix followed by the grid snap and leaves the
// robot at (x, y) facing h
func (l *Localizer) Localize(ctx context.Context, variant EdgeVariant, x, y, h float64) error {
	if err := l.begin(variant); err != nil {
		return err
	}
	err := l.headingFix(ctx, variant)
	if err == nil {
		err = l.gridSnap(ctx, x, y, h)
	}
	l.finish(err)
	return err
}

// HeadingFix runs only the ultrasonic heading stage
func (l *Localizer) HeadingFix(ctx context.Context, variant EdgeVariant) error {
	if err := l.begin(variant); err != nil {
		return err
	}
	err := l.headingFix(ctx, variant)
	l.finish(err)
	return err
}

// GridSnapTo runs only the gridline stage. The robot must already be
// roughly square to the grid, south-west of the (x, y) intersection.
func (l *Localizer) GridSnapTo(ctx context.Context, x, y, h float64) error {
	if err := l.begin(FallingEdge); err != nil {
		return err
	}
	err := l.gridSnap(ctx, x, y, h)
	l.finish(err)
	return err
}

func (l *Localizer) begin(variant EdgeVariant) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status.Running {
		return fmt.Errorf("localization session %s already running", l.session.ID)
	}
	l.session = &LocalizationSession{
		ID:      uuid.NewString(),
		Variant: variant.String(),
		Stage:   StageIdle,
		Started: l.clock.Now(),
	}
	l.status = LocalizationStatus{Running: true, Stage: StageIdle}
	Logf("[localize] session %s started (%s edge)", l.session.ID, variant)
	return nil
}

func (l *Localizer) setStage(stage LocalizationStage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.Stage = stage
	l.session.Stage = stage
}

func (l *Localizer) finish(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.Running = false
	if err != nil {
		l.status.Complete = false
		l.status.Stage = StageFailed
		l.status.LastError = err.Error()
		l.session.Stage = StageFailed
		Logf("[localize] session %s failed: %v", l.session.ID, err)
		return
	}
	l.status.Complete = true
	l.status.Stage = StageDone
	l.session.Stage = StageDone
	Logf("[localize] session %s complete at %s", l.session.ID, l.odo.Pose())
}

func (l *Localizer) fail(stage LocalizationStage, err error) error {
	var le *LocalizationError
	if errors.As(err, &le) {
		return err
	}
	return &LocalizationError{Stage: stage, Err: err}
}

// ---- Stage A: ultrasonic heading fix ----

func (l *Localizer) wallSeen() bool { return l.ranges.Low() < l.cfg.WallDistance }
func (l *Localizer) wallLost() bool { return l.ranges.Low() > l.cfg.WallDistance+l.cfg.WallMargin }

// rotateUntil spins in place (sense +1 clockwise, -1 counter-clockwise)
// until cond holds and returns the heading at that moment
func (l *Localizer) rotateUntil(ctx context.Context, sense float64, what string, cond func() bool) (float64, error) {
	if err := l.robot.SetVelocity(0, sense*l.cfg.RotationSpeed); err != nil {
		return 0, err
	}
	defer func() {
		if err := l.robot.Stop(); err != nil {
			Logf("[localize] stop failed: %v", err)
		}
	}()

	deadline := l.clock.Now().Add(l.cfg.SweepTimeout)
	for {
		if cond() {
			return l.odo.Pose().Theta, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if l.clock.Now().After(deadline) {
			return 0, fmt.Errorf("rotating until %s: %w", what, ErrTimeout)
		}
		l.clock.Sleep(l.cfg.PollInterval)
	}
}

// HeadingOffset converts the two latched wall-edge headings into the
// correction that maps the odometer heading onto the course frame
func HeadingOffset(angleA, angleB float64) float64 {
	if angleA < angleB {
		return 225 - (angleA+angleB)/2
	}
	return 405 - (angleA+angleB)/2
}

func (l *Localizer) headingFix(ctx context.Context, variant EdgeVariant) error {
	l.setStage(StageHeading)

	type step struct {
		sense float64
		what  string
		cond  func() bool
	}
	var first, second []step
	if variant == RisingEdge {
		first = []step{{-1, "wall", l.wallSeen}, {-1, "no wall", l.wallLost}}
		second = []step{{1, "wall", l.wallSeen}, {1, "no wall", l.wallLost}}
	} else {
		first = []step{{1, "no wall", l.wallLost}, {1, "wall", l.wallSeen}}
		second = []step{{-1, "no wall", l.wallLost}, {-1, "wall", l.wallSeen}}
	}

	latch := func(steps []step) (float64, error) {
		var theta float64
		for _, s := range steps {
			var err error
			theta, err = l.rotateUntil(ctx, s.sense, s.what, s.cond)
			if err != nil {
				return 0, err
			}
		}
		return theta, nil
	}

	a, err := latch(first)
	if err != nil {
		return l.fail(StageHeading, err)
	}
	b, err := latch(second)
	if err != nil {
		return l.fail(StageHeading, err)
	}

	offset := HeadingOffset(a, b)
	theta := l.odo.Pose().Theta + offset + l.cfg.HeadingCorrection
	l.odo.SetTheta(theta)

	l.mu.Lock()
	l.session.AngleA, l.session.AngleB, l.session.OffsetTheta = a, b, offset
	l.mu.Unlock()
	Logf("[localize] wall edges at %.1f and %.1f, heading offset %.1f", a, b, offset)

	if err := l.nav.TurnTo(ctx, 0); err != nil {
		return l.fail(StageHeading, err)
	}
	return nil
}

// ---- Stage B: gridline snap ----

func (l *Localizer) setFloodlights(on bool) {
	for _, s := range []Side{Left, Right} {
		if err := l.lights[s].SetFloodlight(on); err != nil {
			Logf("[localize] %s floodlight: %v", s, err)
		}
	}
}

// creepToLine drives forward slowly until one of the given sensors reads dark
func (l *Localizer) creepToLine(ctx context.Context, sides ...Side) (Side, error) {
	if err := l.robot.SetVelocity(l.cfg.ForwardSpeed, 0); err != nil {
		return Left, err
	}
	defer func() {
		if err := l.robot.Stop(); err != nil {
			Logf("[localize] stop failed: %v", err)
		}
	}()

	deadline := l.clock.Now().Add(l.cfg.LineTimeout)
	for {
		for _, s := range sides {
			v, err := l.lights[s].NormalizedValue()
			if err != nil {
				Logf("[localize] %s light read failed: %v", s, err)
				continue
			}
			if v < l.cfg.LightThreshold {
				return s, nil
			}
		}
		if err := ctx.Err(); err != nil {
			return Left, err
		}
		if l.clock.Now().After(deadline) {
			return Left, fmt.Errorf("seeking gridline: %w", ErrTimeout)
		}
		l.clock.Sleep(l.cfg.PollInterval)
	}
}

// snapPass crosses the gridline ahead, squares up to heading and sets the
// along-track coordinate to target
func (l *Localizer) snapPass(ctx context.Context, heading float64, a axis, target float64) error {
	l.setFloodlights(true)
	defer l.setFloodlights(false)

	if err := l.nav.GoForward(ctx, -l.cfg.BackupDistance); err != nil {
		return err
	}
	firstSide, err := l.creepToLine(ctx, Left, Right)
	if err != nil {
		return err
	}
	first := l.odo.Pose()

	if err := l.lights[firstSide].SetFloodlight(false); err != nil {
		Logf("[localize] %s floodlight off: %v", firstSide, err)
	}
	if err := l.nav.GoForward(ctx, -l.cfg.RetreatDistance); err != nil {
		return err
	}
	otherSide := Right
	if firstSide == Right {
		otherSide = Left
	}
	if _, err := l.creepToLine(ctx, otherSide); err != nil {
		return err
	}
	second := l.odo.Pose()

	along := math.Abs(a.of(second) - a.of(first))
	angle := atanDeg(along / l.sensors.LightSeparation)
	past := l.sensors.LightSeparation / 2 * sinDeg(angle)

	// The sensor that hits first is ahead, so the body is rotated toward the other side.
	measured := heading + angle
	if firstSide == Right {
		measured = heading - angle
	}
	l.odo.SetTheta(measured)
	Logf("[localize] %s pass: %s sensor first, skew %.2f°, overshoot %.2f cm", a, firstSide, angle, past)

	if err := l.nav.TurnTo(ctx, heading); err != nil {
		return err
	}
	if err := l.nav.GoForward(ctx, -(past + l.sensors.LightOffset)); err != nil {
		return err
	}

	u := PoseUpdate{Theta: &heading}
	if a == axisX {
		u.X = &target
	} else {
		u.Y = &target
	}
	l.odo.SetPose(u)
	return nil
}

func (l *Localizer) gridSnap(ctx context.Context, x, y, h float64) error {
	l.setStage(StageGridSnap)

	if err := l.nav.TurnTo(ctx, 0); err != nil {
		return l.fail(StageGridSnap, err)
	}
	if err := l.snapPass(ctx, 0, axisY, y); err != nil {
		return l.fail(StageGridSnap, err)
	}
	if err := l.nav.TurnTo(ctx, 90); err != nil {
		return l.fail(StageGridSnap, err)
	}
	if err := l.snapPass(ctx, 90, axisX, x); err != nil {
		return l.fail(StageGridSnap, err)
	}
	if err := l.nav.TurnTo(ctx, h); err != nil {
		return l.fail(StageGridSnap, err)
	}
	if err := l.odo.Anchor(SetXYTheta(x, y, h)); err != nil {
		return l.fail(StageGridSnap, err)
	}
	return nil
}
