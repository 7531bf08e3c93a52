package gridnav

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// OdometerConfig controls pose integration and grid quantisation
type OdometerConfig struct {
	Period         time.Duration `yaml:"period"`
	TileSize       float64       `yaml:"tileSize"`       // cm between gridlines
	NodeOffset     float64       `yaml:"nodeOffset"`     // cm added before quantising to a node
	GridDecimation int           `yaml:"gridDecimation"` // integration ticks between grid recomputes
}

// Odometer integrates encoder deltas into a pose.
// A single mutex guards the pose, the encoder baseline and the grid snapshot
// so readers always observe a consistent triple.
type Odometer struct {
	robot    *DifferentialDrive
	encoders Encoders
	clock    Clock
	cfg      OdometerConfig

	mu        sync.Mutex
	pose      Pose
	grid      GridPosition
	lastLeft  int
	lastRight int
	ticks     int
}

// NewOdometer creates an odometer at the origin facing north
func NewOdometer(robot *DifferentialDrive, encoders Encoders, cfg OdometerConfig, clock Clock) *Odometer {
	if cfg.Period <= 0 {
		cfg.Period = 25 * time.Millisecond
	}
	if cfg.TileSize <= 0 {
		cfg.TileSize = 30.48
	}
	if cfg.GridDecimation <= 0 {
		cfg.GridDecimation = 10
	}
	o := &Odometer{
		robot:    robot,
		encoders: encoders,
		clock:    clock,
		cfg:      cfg,
	}
	o.grid = o.gridFor(o.pose)
	return o
}

// Update runs one integration step
func (o *Odometer) Update() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	left, right, err := o.encoders.TachoCounts()
	if err != nil {
		return fmt.Errorf("reading encoders: %w", err)
	}
	dl, dr := left-o.lastLeft, right-o.lastRight
	o.lastLeft, o.lastRight = left, right

	d, dh := o.robot.TickDeltas(dl, dr)
	mid := o.pose.Theta + dh/2
	o.pose.X += d * sinDeg(mid)
	o.pose.Y += d * cosDeg(mid)
	o.pose.Theta = NormalizeAngle(o.pose.Theta + dh)

	o.ticks++
	if o.ticks >= o.cfg.GridDecimation {
		o.ticks = 0
		o.grid = o.gridFor(o.pose)
	}
	return nil
}

// Run integrates periodically until ctx is cancelled
func (o *Odometer) Run(ctx context.Context) error {
	ticker := o.clock.NewTicker(o.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := o.Update(); err != nil {
				Logf("[odometer] update failed: %v", err)
			}
		}
	}
}

// Pose returns a snapshot of the current pose
func (o *Odometer) Pose() Pose {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pose
}

// Grid returns a snapshot of the last computed grid position
func (o *Odometer) Grid() GridPosition {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.grid
}

// SetPose overwrites any subset of the pose
func (o *Odometer) SetPose(u PoseUpdate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.apply(u)
}

// SetTheta overwrites the heading only
func (o *Odometer) SetTheta(theta float64) {
	o.SetPose(PoseUpdate{Theta: &theta})
}

// ResetEncoders zeroes the hardware counters together with the integration baseline
func (o *Odometer) ResetEncoders() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resetEncoders()
}

// Anchor resets the encoders and overwrites the pose in one critical section
func (o *Odometer) Anchor(u PoseUpdate) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.resetEncoders(); err != nil {
		return err
	}
	o.apply(u)
	return nil
}

func (o *Odometer) resetEncoders() error {
	if err := o.encoders.ResetTachos(); err != nil {
		return fmt.Errorf("resetting encoders: %w", err)
	}
	o.lastLeft, o.lastRight = 0, 0
	return nil
}

func (o *Odometer) apply(u PoseUpdate) {
	if u.X != nil {
		o.pose.X = *u.X
	}
	if u.Y != nil {
		o.pose.Y = *u.Y
	}
	if u.Theta != nil {
		o.pose.Theta = NormalizeAngle(*u.Theta)
	}
	o.grid = o.gridFor(o.pose)
	o.ticks = 0
}

func (o *Odometer) gridFor(p Pose) GridPosition {
	return GridPosition{
		NodeX:     int(math.Floor((p.X + o.cfg.NodeOffset) / o.cfg.TileSize)),
		NodeY:     int(math.Floor((p.Y + o.cfg.NodeOffset) / o.cfg.TileSize)),
		Direction: DirectionOf(p.Theta),
	}
}

// DirectionOf buckets a heading into a cardinal direction
func DirectionOf(theta float64) Direction {
	return Direction(int(math.Floor((NormalizeAngle(theta)+44)/90)) % 4)
}
