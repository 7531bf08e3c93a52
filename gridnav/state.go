package gridnav

import (
	"context"
	"sync"
	"time"

	"github.com/paulmach/orb"
)

// CourseLayout describes the static course for rendering and export
type CourseLayout struct {
	Bound     orb.Bound
	TileSize  float64
	Obstacles []ObstacleConfig
}

// CourseFromWorld captures the layout of a simulated course
func CourseFromWorld(w *SimWorld) *CourseLayout {
	return &CourseLayout{Bound: w.Course(), TileSize: w.TileSize(), Obstacles: w.Obstacles()}
}

// RobotState is a point-in-time snapshot for HTTP and MQTT consumers
type RobotState struct {
	Pose         Pose               `json:"pose"`
	Grid         GridPosition       `json:"grid"`
	Localization LocalizationStatus `json:"localization"`
	Sweep        string             `json:"sweep"`
	Corrections  int                `json:"corrections"`
	TraceLength  float64            `json:"traceLength"`
	Updated      time.Time          `json:"updated"`
}

// StateTracker holds the latest robot state and the driven trace
type StateTracker struct {
	mu           sync.RWMutex
	pose         Pose
	grid         GridPosition
	localization LocalizationStatus
	sweep        SweepResult
	corrections  int
	updated      time.Time
	course       *CourseLayout
	trace        *TraceRecorder
}

// NewStateTracker creates a new state tracker
func NewStateTracker(trace *TraceRecorder) *StateTracker {
	if trace == nil {
		trace = NewTraceRecorder(1, 0)
	}
	return &StateTracker{
		trace:        trace,
		localization: LocalizationStatus{Stage: StageIdle},
	}
}

// UpdatePose records a pose snapshot and extends the trace
func (st *StateTracker) UpdatePose(p Pose, g GridPosition, at time.Time) {
	st.mu.Lock()
	st.pose = p
	st.grid = g
	st.updated = at
	st.mu.Unlock()
	st.trace.Record(p)
}

// SetLocalization records the localizer status
func (st *StateTracker) SetLocalization(s LocalizationStatus) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.localization = s
}

// SetSweep records the latest sweep result and snapper correction count
func (st *StateTracker) SetSweep(r SweepResult, corrections int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweep = r
	st.corrections = corrections
}

// SetCourse sets the static course layout
func (st *StateTracker) SetCourse(c *CourseLayout) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.course = c
}

// Course returns the course layout if known
func (st *StateTracker) Course() *CourseLayout {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.course
}

// Trace returns the trace recorder
func (st *StateTracker) Trace() *TraceRecorder {
	return st.trace
}

// HasPose returns true once at least one pose has been recorded
func (st *StateTracker) HasPose() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return !st.updated.IsZero()
}

// Snapshot returns a copy of the current state
func (st *StateTracker) Snapshot() RobotState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s := RobotState{
		Pose:         st.pose,
		Grid:         st.grid,
		Localization: st.localization,
		Sweep:        st.sweep.String(),
		Corrections:  st.corrections,
		TraceLength:  st.trace.Length(),
		Updated:      st.updated,
	}
	if st.localization.Session != nil {
		sess := *st.localization.Session
		s.Localization.Session = &sess
	}
	return s
}

// Sample copies the robot state into the tracker once
func (st *StateTracker) Sample(r *Robot) {
	st.UpdatePose(r.Odometer.Pose(), r.Odometer.Grid(), r.Clock.Now())
	st.SetLocalization(r.Localizer.Status())
	st.SetSweep(r.Navigator.LastSweep(), r.Snapper.Corrections())
}

// Track samples the robot every interval until ctx is cancelled
func (st *StateTracker) Track(ctx context.Context, r *Robot, interval time.Duration) {
	ticker := r.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			st.Sample(r)
		}
	}
}
