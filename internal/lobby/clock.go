package lobby

import "time"

// Clock schedules the single-shot round and review timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// armedTimer ties a scheduled timer to the sequence number its callback must present when it fires.
type armedTimer struct {
	timer Timer
	seq   uint64
}
