package triage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/triage/internal/core/logging"
)

// SchedulerPeriods holds the three effective polling periods.
type SchedulerPeriods struct {
	// Active applies while the view is visible and on a hot path.
	Active time.Duration
	// Background applies while visible but off the hot path.
	Background time.Duration
	// Dormant applies while the view is not visible.
	Dormant time.Duration
	// Staleness is the age past which a visibility gain fires immediately.
	Staleness time.Duration
}

// TickFunc runs one fetch/reconcile cycle. It must return only once the
// cycle has settled (success or failure); the scheduler arms the next
// timer after it returns so fetches can never overlap.
type TickFunc func(ctx context.Context)

// Scheduler decides when the next fetch happens based on visibility, hot
// path membership, and connectivity. It owns exactly one outstanding timer;
// arming a new one always cancels the previous one first.
type Scheduler struct {
	periods SchedulerPeriods
	clock   Clock
	tick    TickFunc
	logger  zerolog.Logger

	mu          sync.Mutex
	ctx         context.Context
	visible     bool
	hotPath     bool
	online      bool
	lastSuccess time.Time
	timer       Timer
	running     bool
	firing      bool
	refire      bool
}

// NewScheduler creates a scheduler. The tick callback is invoked from a
// scheduler-owned goroutine, one invocation at a time.
func NewScheduler(periods SchedulerPeriods, clock Clock, tick TickFunc) *Scheduler {
	return &Scheduler{
		periods: periods,
		clock:   clock,
		tick:    tick,
		logger:  logging.Component("scheduler"),
		visible: true,
		online:  true,
	}
}

// Start arms the first timer and fires immediately. The context bounds all
// tick invocations; cancelling it stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.running = true
	s.mu.Unlock()

	context.AfterFunc(ctx, s.Stop)
	s.fire()
}

// Stop cancels any pending timer and prevents further fires.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.stopTimerLocked()
}

// SetVisible records a visibility transition.
//
// Gaining visibility fires immediately when the last successful fetch is
// older than the staleness threshold, and always re-arms on the faster
// period. Losing visibility re-arms on the dormant period.
func (s *Scheduler) SetVisible(visible bool) {
	s.mu.Lock()
	was := s.visible
	s.visible = visible

	if visible && !was {
		stale := s.clock.Now().Sub(s.lastSuccess) > s.periods.Staleness
		s.mu.Unlock()
		if stale {
			s.fire()
			return
		}
		s.rearm()
		return
	}
	s.mu.Unlock()
	s.rearm()
}

// SetHotPath records whether the user is on a designated hot view.
// Changes only re-arm the timer with the new period; they never force an
// immediate fire on their own.
func (s *Scheduler) SetHotPath(hot bool) {
	s.mu.Lock()
	s.hotPath = hot
	s.mu.Unlock()
	s.rearm()
}

// SetOnline records connectivity. Coming back online fires immediately.
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	was := s.online
	s.online = online
	s.mu.Unlock()

	if online && !was {
		s.fire()
		return
	}
	s.rearm()
}

// Poke requests an immediate fetch, e.g. after a user-initiated refresh.
func (s *Scheduler) Poke() {
	s.fire()
}

// MarkSuccess records the completion time of a successful fetch. The
// store's sequence check handles ordering; this timestamp only feeds the
// staleness decision on visibility gain.
func (s *Scheduler) MarkSuccess() {
	s.mu.Lock()
	s.lastSuccess = s.clock.Now()
	s.mu.Unlock()
}

// Period returns the effective polling period for the current state.
func (s *Scheduler) Period() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.periodLocked()
}

func (s *Scheduler) periodLocked() time.Duration {
	switch {
	case !s.visible:
		return s.periods.Dormant
	case s.hotPath:
		return s.periods.Active
	default:
		return s.periods.Background
	}
}

// fire runs one tick now and re-arms afterwards. If a tick is already in
// progress the request coalesces into one follow-up fire once it settles.
func (s *Scheduler) fire() {
	s.mu.Lock()
	if !s.running || !s.online {
		s.mu.Unlock()
		return
	}
	if s.firing {
		s.refire = true
		s.mu.Unlock()
		return
	}
	s.firing = true
	s.stopTimerLocked()
	ctx := s.ctx
	s.mu.Unlock()

	go func() {
		s.tick(ctx)

		s.mu.Lock()
		s.firing = false
		again := s.refire
		s.refire = false
		s.mu.Unlock()

		if again {
			s.fire()
			return
		}
		s.rearm()
	}()
}

// rearm replaces the outstanding timer with one for the current period.
// A tick in progress re-arms itself when it settles.
func (s *Scheduler) rearm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.firing {
		return
	}

	s.stopTimerLocked()
	period := s.periodLocked()
	s.timer = s.clock.AfterFunc(period, s.fire)
	s.logger.Debug().Dur("period", period).Bool("visible", s.visible).Bool("hot", s.hotPath).
		Msg("timer armed")
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
