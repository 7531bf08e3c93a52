package gridnav

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Command is a remote request for the control task
type Command struct {
	Command string  `json:"command"` // localize, goto, checkAhead, snapper
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	Heading float64 `json:"heading,omitempty"`
	Variant string  `json:"variant,omitempty"`
	Arc     float64 `json:"arc,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// ParseCommand decodes and validates a JSON command
func ParseCommand(payload []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(payload, &c); err != nil {
		return c, fmt.Errorf("decoding command: %w", err)
	}
	switch c.Command {
	case "localize":
		if _, err := ParseEdgeVariant(c.Variant); err != nil {
			return c, err
		}
	case "goto", "checkAhead":
	case "snapper":
		if c.Enabled == nil {
			return c, fmt.Errorf("snapper command requires enabled")
		}
	default:
		return c, fmt.Errorf("unknown command %q", c.Command)
	}
	return c, nil
}

// Controller serialises commands onto the single control task
type Controller struct {
	robot *Robot
	queue chan Command

	mu      sync.Mutex
	last    string
	lastErr error
}

// NewController creates a controller with a bounded queue
func NewController(robot *Robot, depth int) *Controller {
	if depth <= 0 {
		depth = 8
	}
	return &Controller{robot: robot, queue: make(chan Command, depth)}
}

// Submit queues a command without blocking
func (c *Controller) Submit(cmd Command) error {
	select {
	case c.queue <- cmd:
		return nil
	default:
		return fmt.Errorf("command queue full, dropping %s", cmd.Command)
	}
}

// HandlePayload parses a raw command and queues it
func (c *Controller) HandlePayload(payload []byte) error {
	cmd, err := ParseCommand(payload)
	if err != nil {
		return err
	}
	return c.Submit(cmd)
}

// Run executes queued commands until ctx is cancelled
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.queue:
			err := c.Execute(ctx, cmd)
			c.mu.Lock()
			c.last, c.lastErr = cmd.Command, err
			c.mu.Unlock()
			if err != nil {
				Logf("[control] %s failed: %v", cmd.Command, err)
			}
		}
	}
}

// Last returns the most recent command and its outcome
func (c *Controller) Last() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.lastErr
}

// Execute runs one command on the calling goroutine
func (c *Controller) Execute(ctx context.Context, cmd Command) error {
	Logf("[control] executing %s", cmd.Command)
	switch cmd.Command {
	case "localize":
		variant, err := ParseEdgeVariant(cmd.Variant)
		if err != nil {
			return err
		}
		return c.robot.Localizer.Localize(ctx, variant, cmd.X, cmd.Y, cmd.Heading)
	case "goto":
		return c.robot.Navigator.GoToPoint(ctx, cmd.X, cmd.Y)
	case "checkAhead":
		_, err := c.robot.Navigator.CheckAhead(ctx, cmd.Arc)
		return err
	case "snapper":
		if cmd.Enabled != nil && *cmd.Enabled {
			c.robot.Snapper.Enable()
		} else {
			c.robot.Snapper.Disable()
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd.Command)
}
