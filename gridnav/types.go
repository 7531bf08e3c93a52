package gridnav

import (
	"fmt"
	"time"
)

// Pose is the robot's position on the course.
// X and Y are in centimetres, Theta in degrees with 0 = north (+Y) increasing clockwise.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.2f, %.2f) %.2f°", p.X, p.Y, p.Theta)
}

// PoseUpdate overwrites a subset of the pose; nil fields are left unchanged
type PoseUpdate struct {
	X     *float64
	Y     *float64
	Theta *float64
}

// SetXYTheta builds a PoseUpdate that overwrites every field
func SetXYTheta(x, y, theta float64) PoseUpdate {
	return PoseUpdate{X: &x, Y: &y, Theta: &theta}
}

// Direction is the cardinal heading bucket used for grid logic
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Heading returns the compass heading of the direction in degrees
func (d Direction) Heading() float64 {
	return float64(d) * 90
}

// GridPosition is the quantised node and heading bucket derived from a Pose
type GridPosition struct {
	NodeX     int       `json:"nodeX"`
	NodeY     int       `json:"nodeY"`
	Direction Direction `json:"direction"`
}

// Side identifies one of a left/right sensor pair
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// WheelDirection is the spin sense of a single wheel
type WheelDirection int

const (
	Forward WheelDirection = iota
	Backward
)

// WheelCommand is a per-wheel speed in degrees per second plus a spin sense
type WheelCommand struct {
	Speed     int
	Direction WheelDirection
}

// Signed returns the command as a signed angular velocity
func (c WheelCommand) Signed() float64 {
	if c.Direction == Backward {
		return -float64(c.Speed)
	}
	return float64(c.Speed)
}

// LineEvent is emitted when a light sensor crosses onto a gridline
type LineEvent struct {
	Side  Side
	Value int
	At    time.Time
}

// SweepResult classifies what lies ahead of the robot
type SweepResult int

const (
	SweepBlocked SweepResult = -1
	SweepClear   SweepResult = 0
	SweepPallet  SweepResult = 1
)

func (r SweepResult) String() string {
	switch r {
	case SweepBlocked:
		return "blocked"
	case SweepClear:
		return "clear"
	case SweepPallet:
		return "pallet"
	}
	return "unknown"
}

// EdgeVariant selects the Stage A wall-edge detection strategy
type EdgeVariant int

const (
	FallingEdge EdgeVariant = iota
	RisingEdge
)

func (v EdgeVariant) String() string {
	if v == RisingEdge {
		return "rising"
	}
	return "falling"
}

// ParseEdgeVariant converts "falling" or "rising" into an EdgeVariant
func ParseEdgeVariant(s string) (EdgeVariant, error) {
	switch s {
	case "falling", "":
		return FallingEdge, nil
	case "rising":
		return RisingEdge, nil
	}
	return FallingEdge, fmt.Errorf("unknown edge variant %q", s)
}

// LocalizationStage is the phase a localization session is in
type LocalizationStage string

const (
	StageIdle     LocalizationStage = "idle"
	StageHeading  LocalizationStage = "heading"
	StageGridSnap LocalizationStage = "gridsnap"
	StageDone     LocalizationStage = "done"
	StageFailed   LocalizationStage = "failed"
)

// LocalizationSession holds the transient data of one localization run
type LocalizationSession struct {
	ID          string            `json:"id"`
	Variant     string            `json:"variant"`
	Stage       LocalizationStage `json:"stage"`
	AngleA      float64           `json:"angleA"`
	AngleB      float64           `json:"angleB"`
	OffsetTheta float64           `json:"offsetTheta"`
	Started     time.Time         `json:"started"`
}

// LocalizationStatus is the externally visible state of the localizer
type LocalizationStatus struct {
	Running   bool                 `json:"running"`
	Complete  bool                 `json:"complete"`
	Stage     LocalizationStage    `json:"stage"`
	LastError string               `json:"lastError,omitempty"`
	Session   *LocalizationSession `json:"session,omitempty"`
}
