package gridnav

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeRange struct {
	mu  sync.Mutex
	cm  int
	err error
}

func (r *fakeRange) set(cm int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cm, r.err = cm, err
}

func (r *fakeRange) Distance() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cm, r.err
}

func TestRangePollerStartsAtCeiling(t *testing.T) {
	p := NewRangePoller(&fakeRange{}, &fakeRange{}, RangingConfig{Ceiling: 120}, RealClock{})
	assert.Equal(t, 120, p.Low())
	assert.Equal(t, 120, p.High())
	assert.Equal(t, 0, p.Diff())
	assert.Equal(t, 0, p.Samples())
}

func TestRangePollerClampsAndDiffs(t *testing.T) {
	low, high := &fakeRange{}, &fakeRange{}
	p := NewRangePoller(low, high, RangingConfig{Ceiling: 120}, RealClock{})

	low.set(30, nil)
	high.set(255, nil)
	p.Poll()
	assert.Equal(t, 30, p.Low())
	assert.Equal(t, 120, p.High(), "readings above the ceiling are clamped")
	assert.Equal(t, 90, p.Diff())

	low.set(-4, nil)
	p.Poll()
	assert.Equal(t, 0, p.Low())
	assert.Equal(t, 2, p.Samples())
}

func TestRangePollerKeepsLastGoodReading(t *testing.T) {
	low, high := &fakeRange{}, &fakeRange{}
	p := NewRangePoller(low, high, RangingConfig{}, RealClock{})

	low.set(40, nil)
	high.set(60, nil)
	p.Poll()

	low.set(0, errors.New("i2c timeout"))
	high.set(70, nil)
	p.Poll()

	assert.Equal(t, 40, p.Low())
	assert.Equal(t, 70, p.High())
}
