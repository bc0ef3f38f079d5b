// Package timectrl drives simulation time. Listeners receive every tick as a
// time.Time; NowJD exposes the same instant as a Julian day, the time scale
// rotation and trajectory models are evaluated in.
package timectrl

import (
	"sync"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// SimClock is an interface for accessing simulation time.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// NowJD returns the current simulation time as a Julian day.
	NowJD() float64
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

// acceleratedPace is the wall-clock interval between ticks in Accelerated mode.
const acceleratedPace = time.Millisecond

// TimeController drives simulation time and notifies registered listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	// currentTime tracks the current simulation time. It is updated
	// as the controller advances time.
	currentTime time.Time

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// NowJD returns the current simulation time as a Julian day. UTC is used
// directly as the dynamical time scale. Implements SimClock.
func (tc *TimeController) NowJD() float64 {
	return julian.TimeToJD(tc.Now())
}

// SetTime moves the clock to t without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Step advances simulation time by one Tick on the calling goroutine and
// notifies listeners. It returns the new time.
func (tc *TimeController) Step() time.Time {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	now := tc.currentTime
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
	return now
}

// Start runs the controller for the specified duration in a separate goroutine.
// It returns a channel that is closed when the controller finishes. A
// non-positive duration runs until stop is closed.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	return tc.StartUntil(duration, nil)
}

// StartUntil is Start with an early stop channel.
func (tc *TimeController) StartUntil(duration time.Duration, stop <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		tc.currentTime = tc.StartTime
		pace := tc.Tick
		if tc.Mode == Accelerated {
			pace = acceleratedPace
		}
		tc.mu.Unlock()

		elapsed := time.Duration(0)

		ticker := time.NewTicker(pace)
		defer ticker.Stop()

		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			tc.Step()
			elapsed += tc.Tick
		}
	}()
	return done
}
