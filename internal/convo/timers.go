package convo

import "time"

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop cancels the timer. Reports whether it was still pending.
	Stop() bool
}

// Timers schedules cancellable callbacks. Controllers own every timer they
// create, so conversation-switch teardown can cancel exactly the timers
// belonging to the deactivated conversation. Tests install a deterministic
// fake.
type Timers interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realTimers struct{}

func (realTimers) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// RealTimers returns a Timers backed by time.AfterFunc.
func RealTimers() Timers {
	return realTimers{}
}
