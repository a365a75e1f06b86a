package relayws

import "time"

type (
	// Timer is a pending scheduled call.
	Timer interface {
		// Stop cancels the call. It reports false when the call already ran or was stopped.
		Stop() bool
	}

	// Scheduler runs a function once after a delay.
	Scheduler interface {
		AfterFunc(d time.Duration, f func()) Timer
	}

	SchedulerFunc func(d time.Duration, f func()) Timer
)

func (s SchedulerFunc) AfterFunc(d time.Duration, f func()) Timer {
	return s(d, f)
}

// RealScheduler schedules on the runtime timer heap.
var RealScheduler Scheduler = SchedulerFunc(func(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
})
