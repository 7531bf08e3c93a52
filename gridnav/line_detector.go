package gridnav

import (
	"context"
	"sync"
	"time"
)

// LineListener receives gridline crossing events
type LineListener interface {
	LineDetected(ev LineEvent)
}

// LineListenerFunc adapts a function to LineListener
type LineListenerFunc func(ev LineEvent)

func (f LineListenerFunc) LineDetected(ev LineEvent) { f(ev) }

// LineDetectorConfig controls light-sensor edge detection
type LineDetectorConfig struct {
	Threshold    int           `yaml:"threshold"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// LineDetector watches one light sensor for falling edges across the threshold
type LineDetector struct {
	side     Side
	sensor   LightSensor
	cfg      LineDetectorConfig
	clock    Clock
	listener LineListener

	mu      sync.Mutex
	last    int
	value   int
	events  int
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLineDetector creates a stopped detector
func NewLineDetector(side Side, sensor LightSensor, cfg LineDetectorConfig, clock Clock) *LineDetector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 485
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	return &LineDetector{side: side, sensor: sensor, cfg: cfg, clock: clock}
}

// SetListener registers the event consumer
func (d *LineDetector) SetListener(l LineListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = l
}

// Side returns which sensor this detector watches
func (d *LineDetector) Side() Side { return d.side }

// Start turns the floodlight on and begins polling in a goroutine
func (d *LineDetector) Start(ctx context.Context) error {
	d.Stop()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	d.mu.Lock()
	if err := d.sensor.SetFloodlight(true); err != nil {
		d.mu.Unlock()
		cancel()
		return err
	}
	d.last = 0
	d.running = true
	d.cancel = cancel
	d.done = done
	d.mu.Unlock()

	go d.loop(loopCtx, done)
	return nil
}

func (d *LineDetector) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := d.clock.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			d.Poll()
		}
	}
}

// Stop ends polling and waits for the loop to exit before turning the
// floodlight off. Concurrent callers all wait for the same loop.
func (d *LineDetector) Stop() {
	d.mu.Lock()
	done := d.done
	if done == nil {
		d.mu.Unlock()
		return
	}
	if d.running {
		d.running = false
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()

	<-done

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != done {
		// restarted while we waited
		return
	}
	d.done = nil
	if err := d.sensor.SetFloodlight(false); err != nil {
		Logf("[line] %s floodlight off failed: %v", d.side, err)
	}
}

// Running reports whether the polling loop is active
func (d *LineDetector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Poll reads the sensor once and notifies the listener on a falling edge
func (d *LineDetector) Poll() (LineEvent, bool) {
	v, err := d.sensor.NormalizedValue()
	if err != nil {
		Logf("[line] %s read failed: %v", d.side, err)
		return LineEvent{}, false
	}

	d.mu.Lock()
	crossed := v < d.cfg.Threshold && d.last > d.cfg.Threshold
	d.last = v
	d.value = v
	listener := d.listener
	if crossed {
		d.events++
	}
	d.mu.Unlock()

	if !crossed {
		return LineEvent{}, false
	}
	ev := LineEvent{Side: d.side, Value: v, At: d.clock.Now()}
	if listener != nil {
		listener.LineDetected(ev)
	}
	return ev, true
}

// Value returns the most recent reading
func (d *LineDetector) Value() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Events returns how many crossings have been detected
func (d *LineDetector) Events() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events
}
