package gridnav

import (
	"context"
	"sync"
	"time"
)

// RangingConfig controls the ultrasonic poller
type RangingConfig struct {
	Period  time.Duration `yaml:"period"`
	Ceiling int           `yaml:"ceiling"` // readings above this are clamped
}

// RangePoller samples the low and high ultrasonic sensors and keeps the
// latest filtered readings
type RangePoller struct {
	low, high RangeSensor
	cfg       RangingConfig
	clock     Clock

	mu      sync.RWMutex
	lowCM   int
	highCM  int
	samples int
}

// NewRangePoller creates a poller; both readings start at the ceiling
func NewRangePoller(low, high RangeSensor, cfg RangingConfig, clock Clock) *RangePoller {
	if cfg.Period <= 0 {
		cfg.Period = 50 * time.Millisecond
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 120
	}
	return &RangePoller{
		low:    low,
		high:   high,
		cfg:    cfg,
		clock:  clock,
		lowCM:  cfg.Ceiling,
		highCM: cfg.Ceiling,
	}
}

// Poll reads both sensors once. A failed read keeps the previous value.
func (p *RangePoller) Poll() {
	lo, loErr := p.low.Distance()
	hi, hiErr := p.high.Distance()
	if loErr != nil {
		Logf("[ranging] low sensor read failed: %v", loErr)
	}
	if hiErr != nil {
		Logf("[ranging] high sensor read failed: %v", hiErr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if loErr == nil {
		p.lowCM = p.clamp(lo)
	}
	if hiErr == nil {
		p.highCM = p.clamp(hi)
	}
	p.samples++
}

func (p *RangePoller) clamp(v int) int {
	if v > p.cfg.Ceiling {
		return p.cfg.Ceiling
	}
	if v < 0 {
		return 0
	}
	return v
}

// Run polls at the configured period until ctx is cancelled
func (p *RangePoller) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			p.Poll()
		}
	}
}

// Low returns the latest low-sensor distance in cm
func (p *RangePoller) Low() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lowCM
}

// High returns the latest high-sensor distance in cm
func (p *RangePoller) High() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.highCM
}

// Diff returns high minus low; large values mean something short is ahead
func (p *RangePoller) Diff() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.highCM - p.lowCM
}

// Samples returns how many polls have completed
func (p *RangePoller) Samples() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.samples
}
