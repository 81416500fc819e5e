package util

import "time"

// Timer measures how long a request has been in flight.
type Timer struct {
	start time.Time
}

// StartTimer creates a new timer starting at current time.
func StartTimer() Timer {
	return Timer{start: time.Now()}
}

// Elapsed returns the time since start, or zero for an unstarted timer.
func (t Timer) Elapsed() time.Duration {
	if t.start.IsZero() {
		return 0
	}
	return time.Since(t.start)
}

// ElapsedMs returns Elapsed in whole milliseconds.
func (t Timer) ElapsedMs() int64 {
	return t.Elapsed().Milliseconds()
}
