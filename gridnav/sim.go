package gridnav

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
)

// Simulated light levels, normalized like the real sensor
const (
	simLightLine    = 350
	simLightFloor   = 600
	simLightAmbient = 200
)

// ObstacleConfig is an axis-aligned box on the course
type ObstacleConfig struct {
	MinX   float64 `yaml:"minX"`
	MinY   float64 `yaml:"minY"`
	MaxX   float64 `yaml:"maxX"`
	MaxY   float64 `yaml:"maxY"`
	Height float64 `yaml:"height"` // cm; boxes below the high sensor read as pallets
}

// Bound returns the obstacle footprint
func (o ObstacleConfig) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{o.MinX, o.MinY}, Max: orb.Point{o.MaxX, o.MaxY}}
}

// SimulationConfig describes the simulated course and chassis
type SimulationConfig struct {
	Wheels           KinematicConstants `yaml:"wheels"`
	CourseMin        float64            `yaml:"courseMin"` // wall coordinate on both axes
	CourseMax        float64            `yaml:"courseMax"`
	LineWidth        float64            `yaml:"lineWidth"`
	HighSensorHeight float64            `yaml:"highSensorHeight"`
	MaxRange         int                `yaml:"maxRange"`
	BeamWidth        float64            `yaml:"beamWidth"` // degrees covered by an ultrasonic ping
	Step             time.Duration      `yaml:"step"`
	Start            Pose               `yaml:"start"`
	Obstacles        []ObstacleConfig   `yaml:"obstacles"`
}

// SimWorld is a physics model of the robot on a walled, gridded course.
// It implements WheelDrive and Encoders and hands out simulated sensors.
type SimWorld struct {
	cfg             SimulationConfig
	tileSize        float64
	lightSeparation float64
	lightOffset     float64
	course          orb.Bound

	mu        sync.Mutex
	pose      Pose
	left      WheelCommand
	right     WheelCommand
	tachoL    float64
	tachoR    float64
	flood     [2]bool
	obstacles []ObstacleConfig
	elapsed   time.Duration
}

// NewSimWorld builds a world from the simulation section and the shared
// sensor geometry
func NewSimWorld(cfg SimulationConfig, sensors SensorConfig, tileSize float64) *SimWorld {
	if cfg.LineWidth <= 0 {
		cfg.LineWidth = 1
	}
	if cfg.MaxRange <= 0 {
		cfg.MaxRange = 255
	}
	return &SimWorld{
		cfg:             cfg,
		tileSize:        tileSize,
		lightSeparation: sensors.LightSeparation,
		lightOffset:     sensors.LightOffset,
		course: orb.Bound{
			Min: orb.Point{cfg.CourseMin, cfg.CourseMin},
			Max: orb.Point{cfg.CourseMax, cfg.CourseMax},
		},
		pose:      Pose{X: cfg.Start.X, Y: cfg.Start.Y, Theta: NormalizeAngle(cfg.Start.Theta)},
		obstacles: append([]ObstacleConfig{}, cfg.Obstacles...),
	}
}

// Hardware returns device handles backed by this world
func (w *SimWorld) Hardware() Hardware {
	return Hardware{
		Drive:      w,
		Encoders:   w,
		LowRange:   simRange{world: w, high: false},
		HighRange:  simRange{world: w, high: true},
		LeftLight:  simLight{world: w, side: Left},
		RightLight: simLight{world: w, side: Right},
	}
}

// Course returns the walled area
func (w *SimWorld) Course() orb.Bound { return w.course }

// TileSize returns the gridline spacing
func (w *SimWorld) TileSize() float64 { return w.tileSize }

// Obstacles returns a copy of the obstacle list
func (w *SimWorld) Obstacles() []ObstacleConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ObstacleConfig{}, w.obstacles...)
}

// AddObstacle places a box on the course
func (w *SimWorld) AddObstacle(o ObstacleConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.obstacles = append(w.obstacles, o)
}

// TruePose returns the simulated ground truth
func (w *SimWorld) TruePose() Pose {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pose
}

// SetTruePose teleports the robot
func (w *SimWorld) SetTruePose(p Pose) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p.Theta = NormalizeAngle(p.Theta)
	w.pose = p
}

// Elapsed returns the total simulated time
func (w *SimWorld) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.elapsed
}

// SetWheels implements WheelDrive
func (w *SimWorld) SetWheels(left, right WheelCommand) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.left, w.right = left, right
	return nil
}

// TachoCounts implements Encoders
func (w *SimWorld) TachoCounts() (int, int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int(math.Round(w.tachoL)), int(math.Round(w.tachoR)), nil
}

// ResetTachos implements Encoders
func (w *SimWorld) ResetTachos() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tachoL, w.tachoR = 0, 0
	return nil
}

// Step advances the physics by dt
func (w *SimWorld) Step(dt time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	const maxSub = 5 * time.Millisecond
	for dt > 0 {
		sub := dt
		if sub > maxSub {
			sub = maxSub
		}
		dt -= sub
		w.integrate(sub.Seconds())
		w.elapsed += sub
	}
}

func (w *SimWorld) integrate(seconds float64) {
	k := w.cfg.Wheels
	wl := w.left.Signed() * seconds
	wr := w.right.Signed() * seconds
	w.tachoL += wl
	w.tachoR += wr

	arcL := wl * k.LeftRadius * math.Pi / 180
	arcR := wr * k.RightRadius * math.Pi / 180
	d := (arcL + arcR) / 2
	dTheta := (arcL - arcR) / k.Width * 180 / math.Pi

	mid := w.pose.Theta + dTheta/2
	w.pose.X += d * sinDeg(mid)
	w.pose.Y += d * cosDeg(mid)
	w.pose.Theta = NormalizeAngle(w.pose.Theta + dTheta)
}

// Run advances the physics in real time until ctx is cancelled
func (w *SimWorld) Run(ctx context.Context, clock Clock) error {
	step := w.cfg.Step
	if step <= 0 {
		step = 5 * time.Millisecond
	}
	ticker := clock.NewTicker(step)
	defer ticker.Stop()

	last := clock.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			now := clock.Now()
			w.Step(now.Sub(last))
			last = now
		}
	}
}

// Range returns the nearest echo within the sensor beam. The high sensor
// only sees obstacles at least as tall as its mount.
func (w *SimWorld) Range(high bool) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	rays := int(math.Ceil(w.cfg.BeamWidth / 5))
	best := w.cast(w.pose.Theta, high)
	for i := 0; i <= rays && rays > 0; i++ {
		off := -w.cfg.BeamWidth/2 + float64(i)*w.cfg.BeamWidth/float64(rays)
		if d := w.cast(w.pose.Theta+off, high); d < best {
			best = d
		}
	}
	return best
}

func (w *SimWorld) cast(theta float64, high bool) int {
	const step = 0.5
	for d := step; d <= float64(w.cfg.MaxRange); d += step {
		x, y := Project(w.pose.X, w.pose.Y, theta, d)
		p := orb.Point{x, y}
		if !w.course.Contains(p) {
			return int(d)
		}
		for _, o := range w.obstacles {
			if high && o.Height < w.cfg.HighSensorHeight {
				continue
			}
			if o.Bound().Contains(p) {
				return int(d)
			}
		}
	}
	return w.cfg.MaxRange
}

// Light returns the reading of the light sensor on one side
func (w *SimWorld) Light(side Side) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.flood[side] {
		return simLightAmbient
	}
	x, y := w.lightPosition(side)
	if w.onGridline(x) || w.onGridline(y) {
		return simLightLine
	}
	return simLightFloor
}

// LightPosition returns where a light sensor currently sits on the course
func (w *SimWorld) LightPosition(side Side) orb.Point {
	w.mu.Lock()
	defer w.mu.Unlock()
	x, y := w.lightPosition(side)
	return orb.Point{x, y}
}

func (w *SimWorld) lightPosition(side Side) (float64, float64) {
	x, y := Project(w.pose.X, w.pose.Y, w.pose.Theta, -w.lightOffset)
	lateral := w.lightSeparation / 2
	if side == Left {
		lateral = -lateral
	}
	return Project(x, y, w.pose.Theta+90, lateral)
}

func (w *SimWorld) onGridline(v float64) bool {
	if v <= w.cfg.CourseMin || v >= w.cfg.CourseMax {
		return false
	}
	nearest := math.Round(v/w.tileSize) * w.tileSize
	if nearest <= w.cfg.CourseMin || nearest >= w.cfg.CourseMax {
		return false
	}
	return math.Abs(v-nearest) < w.cfg.LineWidth/2
}

func (w *SimWorld) setFloodlight(side Side, on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flood[side] = on
}

type simRange struct {
	world *SimWorld
	high  bool
}

func (s simRange) Distance() (int, error) { return s.world.Range(s.high), nil }

type simLight struct {
	world *SimWorld
	side  Side
}

func (s simLight) NormalizedValue() (int, error) { return s.world.Light(s.side), nil }

func (s simLight) SetFloodlight(on bool) error {
	s.world.setFloodlight(s.side, on)
	return nil
}
