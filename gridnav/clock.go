package gridnav

import (
	"sync"
	"time"
)

// Clock abstracts time so control loops can run against simulated time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// Sleep pauses for the specified duration.
	Sleep(d time.Duration)

	// NewTicker returns a Ticker that delivers ticks every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker holds a channel that delivers ticks of a clock at intervals.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (RealClock) Sleep(d time.Duration)           { time.Sleep(d) }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// StepClock is a lock-step virtual clock. Sleep advances virtual time and runs
// every registered advance hook synchronously before returning, so a control
// loop that sleeps between polls drives the simulation deterministically.
// Hooks must not call Sleep.
type StepClock struct {
	advancing sync.Mutex

	mu      sync.Mutex
	now     time.Time
	hooks   []func(d time.Duration)
	tickers []*stepTicker
}

// NewStepClock creates a StepClock starting at t
func NewStepClock(t time.Time) *StepClock {
	return &StepClock{now: t}
}

// OnAdvance registers a hook run on every Advance, in registration order
func (c *StepClock) OnAdvance(hook func(d time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StepClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *StepClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves virtual time forward, runs the hooks and fires due tickers
func (c *StepClock) Advance(d time.Duration) {
	c.advancing.Lock()
	defer c.advancing.Unlock()

	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	hooks := append([]func(time.Duration){}, c.hooks...)
	tickers := append([]*stepTicker{}, c.tickers...)
	c.mu.Unlock()

	for _, h := range hooks {
		h(d)
	}
	for _, t := range tickers {
		t.checkAndFire(now)
	}
}

func (c *StepClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &stepTicker{
		ch:     make(chan time.Time, 1),
		period: d,
		next:   c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

type stepTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func (t *stepTicker) C() <-chan time.Time { return t.ch }

func (t *stepTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *stepTicker) checkAndFire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || now.Before(t.next) {
		return
	}
	for !now.Before(t.next) {
		t.next = t.next.Add(t.period)
	}
	select {
	case t.ch <- now:
	default:
	}
}
