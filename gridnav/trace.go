package gridnav

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// TraceRecorder keeps the path driven by the robot as an orb.LineString
type TraceRecorder struct {
	mu        sync.RWMutex
	points    orb.LineString
	minStep   float64
	maxPoints int
}

// NewTraceRecorder creates a recorder that ignores moves shorter than
// minStep cm and keeps at most maxPoints points
func NewTraceRecorder(minStep float64, maxPoints int) *TraceRecorder {
	if maxPoints <= 0 {
		maxPoints = 10000
	}
	return &TraceRecorder{minStep: minStep, maxPoints: maxPoints}
}

// Record appends the pose position if it moved far enough from the last point
func (t *TraceRecorder) Record(p Pose) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	pt := orb.Point{p.X, p.Y}
	if n := len(t.points); n > 0 && planar.Distance(t.points[n-1], pt) < t.minStep {
		return false
	}
	t.points = append(t.points, pt)
	if len(t.points) > t.maxPoints {
		t.points = append(orb.LineString{}, t.points[len(t.points)-t.maxPoints:]...)
	}
	return true
}

// LineString returns a copy of the recorded path
func (t *TraceRecorder) LineString() orb.LineString {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.points.Clone()
}

// Len returns the number of recorded points
func (t *TraceRecorder) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.points)
}

// Length returns the path length in cm
func (t *TraceRecorder) Length() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return planar.Length(t.points)
}

// Simplified returns the path reduced with Douglas-Peucker at tolerance cm
func (t *TraceRecorder) Simplified(tolerance float64) orb.LineString {
	ls := t.LineString()
	if len(ls) < 3 {
		return ls
	}
	simplified, ok := simplify.DouglasPeucker(tolerance).Simplify(ls).(orb.LineString)
	if !ok {
		return ls
	}
	return simplified
}

// Reset clears the path
func (t *TraceRecorder) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.points = nil
}
