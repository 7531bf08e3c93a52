package gridnav

import (
	"math"
	"sync"
)

// GridSnapperConfig controls passive heading correction
type GridSnapperConfig struct {
	Enabled          bool    `yaml:"enabled"`
	SensorSeparation float64 `yaml:"-"`        // shared with the localizer, set from sensors.lightSeparation
	MaxError         float64 `yaml:"maxError"` // degrees; larger estimates are discarded
}

// GridSnapper corrects the heading whenever both light sensors cross the
// same gridline. Each crossing latches the along-track coordinate for its
// side; once both sides are latched the skew between them gives the angle
// between the robot and the gridline.
type GridSnapper struct {
	odo *Odometer
	cfg GridSnapperConfig

	mu          sync.Mutex
	enabled     bool
	leftHit     float64
	rightHit    float64
	corrections int
	rejections  int
}

// NewGridSnapper creates a snapper bound to an odometer
func NewGridSnapper(odo *Odometer, cfg GridSnapperConfig) *GridSnapper {
	if cfg.MaxError <= 0 {
		cfg.MaxError = 10
	}
	return &GridSnapper{odo: odo, cfg: cfg, enabled: cfg.Enabled}
}

// Enable turns on correction
func (g *GridSnapper) Enable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = true
}

// Disable turns off correction and clears any pending latch
func (g *GridSnapper) Disable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = false
	g.leftHit, g.rightHit = 0, 0
}

// Enabled reports whether correction is active
func (g *GridSnapper) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Latches returns the pending left and right crossing coordinates
func (g *GridSnapper) Latches() (left, right float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.leftHit, g.rightHit
}

// Corrections returns how many heading corrections have been applied
func (g *GridSnapper) Corrections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.corrections
}

// Rejections returns how many estimates exceeded MaxError
func (g *GridSnapper) Rejections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rejections
}

// LineDetected implements LineListener
func (g *GridSnapper) LineDetected(ev LineEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.enabled {
		return
	}

	pose := g.odo.Pose()
	dir := g.odo.Grid().Direction

	// Crossing a horizontal line while heading N/S fixes Y, a vertical one fixes X.
	hit := pose.X
	if dir == North || dir == South {
		hit = pose.Y
	}
	if ev.Side == Left {
		g.leftHit = hit
	} else {
		g.rightHit = hit
	}

	if g.leftHit == 0 || g.rightHit == 0 {
		return
	}

	angle := atanDeg((g.rightHit - g.leftHit) / g.cfg.SensorSeparation)
	if math.Abs(angle) < g.cfg.MaxError {
		g.odo.SetTheta(correctedHeading(dir, angle))
		g.corrections++
		Logf("[snapper] heading corrected by %.2f° facing %s", angle, dir)
	} else {
		g.rejections++
		Logf("[snapper] discarded %.2f° estimate facing %s", angle, dir)
	}
	g.leftHit, g.rightHit = 0, 0
}

// correctedHeading maps the measured skew onto an absolute heading.
// Along X the latched coordinate grows eastward, so the sign flips when
// travelling south or west.
func correctedHeading(dir Direction, angle float64) float64 {
	switch dir {
	case North:
		return angle
	case East:
		return 90 + angle
	case South:
		return 180 - angle
	default:
		return 270 - angle
	}
}
