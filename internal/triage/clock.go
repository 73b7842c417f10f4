package triage

import (
	"sync/atomic"
	"time"
)

// Clock abstracts wall-clock reads and timer arming so the scheduler and
// store are testable without sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is an armed one-shot timer.
type Timer interface {
	// Stop cancels the timer. Reports whether the timer was still pending.
	Stop() bool
}

// realClock delegates to the time package.
type realClock struct{}

// NewClock returns the wall-clock implementation.
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Sequence is a monotonic logical counter used to stamp fetches. Staleness
// is decided by comparing sequence numbers, never wall-clock time, so an
// old slow response can never clobber newer data.
type Sequence struct {
	n atomic.Int64
}

// Next returns the next sequence number. Each call returns a unique,
// strictly increasing value.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// Current returns the last issued sequence number without advancing.
func (s *Sequence) Current() int64 {
	return s.n.Load()
}
