package gridnav

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifierWindow(t *testing.T) {
	cfg := DefaultConfig().Navigation

	t.Run("open floor is clear", func(t *testing.T) {
		c := newClassifier(cfg)
		for i := 0; i < 20; i++ {
			c.add(120, 0)
		}
		assert.Equal(t, SweepClear, c.result())
	})

	t.Run("one close echo is averaged away", func(t *testing.T) {
		c := newClassifier(cfg)
		assert.Equal(t, SweepClear, c.add(20, 0))
		assert.Equal(t, SweepClear, c.add(120, 0))
	})

	t.Run("sustained close echoes block", func(t *testing.T) {
		c := newClassifier(cfg)
		var r SweepResult
		for i := 0; i < cfg.SweepSamples; i++ {
			r = c.add(30, 0)
		}
		assert.Equal(t, SweepBlocked, r)
	})

	t.Run("low-only echo marks a pallet", func(t *testing.T) {
		c := newClassifier(cfg)
		assert.Equal(t, SweepPallet, c.add(120, 90))
		assert.Equal(t, SweepPallet, c.add(120, 0), "verdict is sticky")
	})

	t.Run("blocked dominates pallet", func(t *testing.T) {
		c := newClassifier(cfg)
		c.add(120, 90)
		for i := 0; i < cfg.SweepSamples; i++ {
			c.add(20, 0)
		}
		assert.Equal(t, SweepBlocked, c.result())
	})
}

func TestBoundaryWalls(t *testing.T) {
	n := &Navigator{cfg: NavigationConfig{EdgeNodeMin: 1, EdgeNodeMax: 11}}

	tests := []struct {
		name        string
		grid        GridPosition
		left, right bool
	}{
		{"interior", GridPosition{NodeX: 5, NodeY: 5, Direction: North}, false, false},
		{"west edge facing north", GridPosition{NodeX: 1, NodeY: 5, Direction: North}, true, false},
		{"east edge facing north", GridPosition{NodeX: 11, NodeY: 5, Direction: North}, false, true},
		{"west edge facing south", GridPosition{NodeX: 0, NodeY: 5, Direction: South}, false, true},
		{"north edge facing east", GridPosition{NodeX: 5, NodeY: 11, Direction: East}, true, false},
		{"south edge facing east", GridPosition{NodeX: 5, NodeY: 1, Direction: East}, false, true},
		{"south edge facing west", GridPosition{NodeX: 5, NodeY: 1, Direction: West}, true, false},
		{"corner facing north", GridPosition{NodeX: 1, NodeY: 1, Direction: North}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, right := n.boundaryWalls(tt.grid)
			assert.Equal(t, tt.left, left, "left")
			assert.Equal(t, tt.right, right, "right")
		})
	}
}

func TestCheckAheadInSimulator(t *testing.T) {
	tests := []struct {
		name     string
		obstacle *ObstacleConfig
		want     SweepResult
	}{
		{"clear", nil, SweepClear},
		{"wall ahead", &ObstacleConfig{MinX: 45, MinY: 90, MaxX: 75, MaxY: 120, Height: 30}, SweepBlocked},
		{"pallet ahead", &ObstacleConfig{MinX: 45, MinY: 90, MaxX: 75, MaxY: 120, Height: 5}, SweepPallet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newSimRig(t, nil)
			if tt.obstacle != nil {
				rig.world.AddObstacle(*tt.obstacle)
			}
			rig.place(t, Pose{X: 60.96, Y: 60.96, Theta: 0})

			got, err := rig.robot.Navigator.CheckAhead(context.Background(), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, rig.robot.Navigator.LastSweep())

			// the robot faces its original heading again
			assert.InDelta(t, 0, MinimumAngleFromTo(0, rig.robot.Odometer.Pose().Theta), 1)
		})
	}
}
