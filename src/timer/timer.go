package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Clock is the engine's only source of time.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ManualClock only moves when Advance or Set is called.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type TimerAction int

const (
	Start TimerAction = iota
	Stop
)

// Periodic calls fire every interval() while started, until ctx is done.
//   - Start (re)arms the timer with the current interval
//   - Stop pauses it without leaving the loop
//   - interval() is read on every re-arm so rate changes apply on the next period
func Periodic(ctx context.Context, interval func() time.Duration, fire func(), action <-chan TimerAction, started bool) {
	t := time.NewTimer(interval())
	if !started {
		stopTimer(t)
	}
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case a := <-action:
			switch a {
			case Start:
				resetTimer(t, interval())
				started = true
			case Stop:
				stopTimer(t)
				started = false
			}
		case <-t.C:
			fire()
			if started {
				t.Reset(interval())
			}
			slog.Debug("Periodic timer fired")
		}
	}
}

// Stops the timer and drains a pending fire.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// Stops the timer and resets it.
func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
