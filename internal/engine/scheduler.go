package engine

import "time"

// Scheduler abstracts delayed execution so tests can fire callbacks
// deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// TimerScheduler runs callbacks on real timers.
func TimerScheduler() Scheduler { return timerScheduler{} }
