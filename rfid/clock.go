package rfid

import (
	"time"
)

// Clock abstracts time operations so the watcher can be tested without real
// two-second sleeps.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// NewTicker creates a new ticker that will send on its channel
	// at intervals specified by the duration
	NewTicker(d time.Duration) Ticker
}

// Ticker is an interface for time.Ticker to enable testing
type Ticker interface {
	// C returns the channel on which ticks are delivered
	C() <-chan time.Time

	// Stop turns off the ticker
	Stop()
}

// RealClock implements Clock using actual time operations
type RealClock struct{}

// NewRealClock creates a new RealClock
func NewRealClock() Clock {
	return &RealClock{}
}

func (rc *RealClock) Now() time.Time {
	return time.Now()
}

func (rc *RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

// realTicker wraps time.Ticker to implement Ticker interface
type realTicker struct {
	ticker *time.Ticker
}

func (rt *realTicker) C() <-chan time.Time {
	return rt.ticker.C
}

func (rt *realTicker) Stop() {
	rt.ticker.Stop()
}
