package command

import (
	"sync"
	"time"
)

// Restarter performs a delayed, cancellable restart.
//
// Schedule arms a timer and returns immediately, so the restart command can
// still be acknowledged. When the timer fires the trigger function runs;
// the entry point uses it to cancel the run context with ErrRestartRequested.
type Restarter struct {
	delay   time.Duration
	trigger func()

	mu    sync.Mutex
	timer *time.Timer
	due   time.Time
}

// NewRestarter creates a Restarter that calls trigger delay after Schedule.
func NewRestarter(delay time.Duration, trigger func()) *Restarter {
	return &Restarter{delay: delay, trigger: trigger}
}

// Schedule arms the restart. It returns ErrRestartPending if one is
// already armed.
func (r *Restarter) Schedule() (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		return time.Until(r.due), ErrRestartPending
	}

	var t *time.Timer
	t = time.AfterFunc(r.delay, func() {
		r.mu.Lock()
		current := r.timer == t
		if current {
			r.timer = nil
		}
		r.mu.Unlock()

		if current {
			r.trigger()
		}
	})
	r.timer = t
	r.due = time.Now().Add(r.delay)
	return r.delay, nil
}

// Cancel disarms a scheduled restart. It reports whether one was pending.
func (r *Restarter) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer == nil {
		return false
	}
	r.timer.Stop()
	r.timer = nil
	return true
}

// Pending reports whether a restart is armed.
func (r *Restarter) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}
