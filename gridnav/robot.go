package gridnav

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Robot wires the engine components to one set of hardware
type Robot struct {
	Config   *Config
	Hardware Hardware
	Clock    Clock

	Drive     *DifferentialDrive
	Odometer  *Odometer
	Ranges    *RangePoller
	LeftLine  *LineDetector
	RightLine *LineDetector
	Snapper   *GridSnapper
	Navigator *Navigator
	Localizer *Localizer

	wg sync.WaitGroup
}

// NewRobot builds every component from the configuration
func NewRobot(cfg *Config, hw Hardware, clock Clock) (*Robot, error) {
	drive, err := NewDifferentialDrive(cfg.Robot.Odometry, cfg.Robot.Navigation, cfg.Robot.MaxWheelSpeed, hw.Drive)
	if err != nil {
		return nil, fmt.Errorf("building drive: %w", err)
	}

	odo := NewOdometer(drive, hw.Encoders, cfg.Odometer, clock)
	ranges := NewRangePoller(hw.LowRange, hw.HighRange, cfg.Ranging, clock)
	snapper := NewGridSnapper(odo, cfg.SnapperConfig())

	left := NewLineDetector(Left, hw.LeftLight, cfg.LineDetector, clock)
	right := NewLineDetector(Right, hw.RightLight, cfg.LineDetector, clock)
	left.SetListener(snapper)
	right.SetListener(snapper)

	nav := NewNavigator(odo, drive, ranges, cfg.Navigation, cfg.Odometer.TileSize, clock)
	nav.SetLineDetectors(left, right)

	loc := NewLocalizer(nav, hw.LeftLight, hw.RightLight, cfg.Sensors, cfg.Localizer)

	return &Robot{
		Config:    cfg,
		Hardware:  hw,
		Clock:     clock,
		Drive:     drive,
		Odometer:  odo,
		Ranges:    ranges,
		LeftLine:  left,
		RightLine: right,
		Snapper:   snapper,
		Navigator: nav,
		Localizer: loc,
	}, nil
}

// Start launches the periodic odometer and range poller tasks
func (r *Robot) Start(ctx context.Context) {
	for name, task := range map[string]func(context.Context) error{
		"odometer": r.Odometer.Run,
		"ranging":  r.Ranges.Run,
	} {
		r.wg.Add(1)
		go func(name string, task func(context.Context) error) {
			defer r.wg.Done()
			if err := task(ctx); err != nil && !errors.Is(err, context.Canceled) {
				Logf("[robot] %s task stopped: %v", name, err)
			}
		}(name, task)
	}
}

// Wait blocks until the tasks launched by Start have exited
func (r *Robot) Wait() {
	r.wg.Wait()
}

// Shutdown stops the wheels and line detectors
func (r *Robot) Shutdown() {
	r.LeftLine.Stop()
	r.RightLine.Stop()
	if err := r.Drive.Stop(); err != nil {
		Logf("[robot] stopping wheels: %v", err)
	}
}

// Mission is a localization followed by a list of waypoints
type Mission struct {
	Localize  bool
	Variant   EdgeVariant
	Origin    Pose
	Waypoints []Waypoint
}

// Waypoint is a target point on the course
type Waypoint struct {
	X float64
	Y float64
}

// ParseWaypoints parses "x,y;x,y" into waypoints. Empty input yields none.
func ParseWaypoints(s string) ([]Waypoint, error) {
	var out []Waypoint
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		xy := strings.Split(part, ",")
		if len(xy) != 2 {
			return nil, fmt.Errorf("waypoint %q: want x,y", part)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("waypoint %q: %w", part, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("waypoint %q: %w", part, err)
		}
		out = append(out, Waypoint{X: x, Y: y})
	}
	return out, nil
}

// Execute runs the mission on the control task
func (r *Robot) Execute(ctx context.Context, m Mission) error {
	if m.Localize {
		if err := r.Localizer.Localize(ctx, m.Variant, m.Origin.X, m.Origin.Y, m.Origin.Theta); err != nil {
			return err
		}
	}
	for i, wp := range m.Waypoints {
		if err := r.Navigator.GoToPoint(ctx, wp.X, wp.Y); err != nil {
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
	}
	return nil
}
