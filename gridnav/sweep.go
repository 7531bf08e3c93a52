package gridnav

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// sweepWindow is a fixed-size circular buffer of range samples
type sweepWindow struct {
	values []float64
	next   int
}

func newSweepWindow(size int, initial float64) *sweepWindow {
	w := &sweepWindow{values: make([]float64, size)}
	for i := range w.values {
		w.values[i] = initial
	}
	return w
}

func (w *sweepWindow) push(v float64) {
	w.values[w.next] = v
	w.next = (w.next + 1) % len(w.values)
}

func (w *sweepWindow) mean() float64 {
	return stat.Mean(w.values, nil)
}

// classifier accumulates high readings and high-low differences
type classifier struct {
	high          *sweepWindow
	diff          *sweepWindow
	clearanceFar  float64
	palletDiff    float64
	palletSeen    bool
	blockedSeen   bool
	samplesPushed int
}

func newClassifier(cfg NavigationConfig) *classifier {
	return &classifier{
		high:         newSweepWindow(cfg.SweepSamples, 100),
		diff:         newSweepWindow(cfg.SweepSamples, 0),
		clearanceFar: float64(cfg.ClearanceFar),
		palletDiff:   float64(cfg.PalletDiff),
	}
}

// add pushes one sample pair and updates the verdict
func (c *classifier) add(high, diff int) SweepResult {
	c.high.push(float64(high))
	c.diff.push(float64(diff))
	c.samplesPushed++
	if c.high.mean() < c.clearanceFar {
		c.blockedSeen = true
	}
	if c.diff.mean() > c.palletDiff {
		c.palletSeen = true
	}
	return c.result()
}

func (c *classifier) result() SweepResult {
	switch {
	case c.blockedSeen:
		return SweepBlocked
	case c.palletSeen:
		return SweepPallet
	}
	return SweepClear
}

// boundaryWalls reports whether a course wall lies to the left or right of
// the robot at its current node and heading
func (n *Navigator) boundaryWalls(g GridPosition) (left, right bool) {
	lo, hi := n.cfg.EdgeNodeMin, n.cfg.EdgeNodeMax
	switch g.Direction {
	case North:
		return g.NodeX <= lo, g.NodeX >= hi
	case South:
		return g.NodeX >= hi, g.NodeX <= lo
	case East:
		return g.NodeY >= hi, g.NodeY <= lo
	default:
		return g.NodeY <= lo, g.NodeY >= hi
	}
}

// CheckAhead sweeps the high sensor across arc degrees centred on the current
// heading and classifies what lies ahead. The sweep is one-sided when a
// course wall would otherwise fill half of it. The robot returns to its
// starting heading afterwards.
func (n *Navigator) CheckAhead(ctx context.Context, arc float64) (SweepResult, error) {
	if arc <= 0 {
		arc = n.cfg.SweepArc
	}
	start := n.odo.Pose().Theta
	from, to := -arc/2, arc/2
	wallLeft, wallRight := n.boundaryWalls(n.odo.Grid())
	if wallLeft {
		from = 0
	}
	if wallRight {
		to = 0
	}

	if err := n.TurnTo(ctx, start+from); err != nil {
		return SweepBlocked, err
	}

	c := newClassifier(n.cfg)
	end := NormalizeAngle(start + to)
	span := to - from
	deadline := n.clock.Now().Add(n.cfg.TurnTimeout)

	err := func() error {
		defer n.halt()
		if err := n.robot.SetVelocity(0, n.cfg.SweepSpeed); err != nil {
			return err
		}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			if n.clock.Now().After(deadline) {
				return fmt.Errorf("sweep: %w", ErrTimeout)
			}
			n.clock.Sleep(n.cfg.SweepInterval)
			if c.add(n.ranges.High(), n.ranges.Diff()) == SweepBlocked {
				return nil
			}
			if MinimumAngleFromTo(n.odo.Pose().Theta, end) <= n.cfg.RotationTolerance {
				return nil
			}
		}
	}()
	if err != nil {
		return SweepBlocked, err
	}

	result := c.result()
	n.mu.Lock()
	n.lastSweep = result
	n.mu.Unlock()
	Logf("[nav] sweep of %.0f° from %.1f: %s after %d samples", span, start, result, c.samplesPushed)

	if err := n.TurnTo(ctx, start); err != nil {
		return result, err
	}
	return result, nil
}
