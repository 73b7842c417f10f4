package triage

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPeriods = SchedulerPeriods{
	Active:     30 * time.Second,
	Background: 2 * time.Minute,
	Dormant:    time.Hour,
	Staleness:  time.Minute,
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeClock, *atomic.Int64) {
	t.Helper()
	clock := newFakeClock()
	var ticks atomic.Int64
	s := NewScheduler(testPeriods, clock, func(context.Context) { ticks.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s.Start(ctx)

	waitTicks(t, &ticks, 1)
	return s, clock, &ticks
}

func waitTicks(t *testing.T, ticks *atomic.Int64, want int64) {
	t.Helper()
	require.Eventually(t, func() bool { return ticks.Load() == want },
		2*time.Second, 5*time.Millisecond)
}

func waitPending(t *testing.T, clock *fakeClock, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return clock.pendingTimers() == want },
		2*time.Second, 5*time.Millisecond)
}

func TestScheduler_StartFiresImmediately(t *testing.T) {
	_, clock, ticks := newTestScheduler(t)
	waitPending(t, clock, 1)
	assert.EqualValues(t, 1, ticks.Load())
}

func TestScheduler_SingleOutstandingTimer(t *testing.T) {
	s, clock, ticks := newTestScheduler(t)
	waitPending(t, clock, 1)
	s.MarkSuccess()

	// Rapid state churn must never stack timers.
	s.SetHotPath(true)
	s.SetVisible(false)
	s.SetVisible(true)
	s.SetHotPath(false)

	waitPending(t, clock, 1)
	assert.EqualValues(t, 1, ticks.Load())
}

func TestScheduler_TimerFiresAfterPeriod(t *testing.T) {
	s, clock, ticks := newTestScheduler(t)
	waitPending(t, clock, 1)
	s.MarkSuccess()

	clock.advance(testPeriods.Background)
	waitTicks(t, ticks, 2)
	waitPending(t, clock, 1)
}

func TestScheduler_VisibilityGainWhenStaleFires(t *testing.T) {
	s, clock, ticks := newTestScheduler(t)
	waitPending(t, clock, 1)
	s.MarkSuccess()
	s.SetVisible(false)

	// Short of the dormant period, long past the staleness threshold.
	clock.advance(2 * time.Minute)
	assert.EqualValues(t, 1, ticks.Load())

	s.SetVisible(true)
	waitTicks(t, ticks, 2)
}

func TestScheduler_VisibilityGainWhenFreshOnlyRearms(t *testing.T) {
	s, clock, ticks := newTestScheduler(t)
	waitPending(t, clock, 1)
	s.MarkSuccess()

	s.SetVisible(false)
	s.SetVisible(true)

	waitPending(t, clock, 1)
	assert.EqualValues(t, 1, ticks.Load())
}

func TestScheduler_HotPathChangesPeriodWithoutFiring(t *testing.T) {
	s, clock, ticks := newTestScheduler(t)
	waitPending(t, clock, 1)
	s.MarkSuccess()

	s.SetHotPath(true)
	waitPending(t, clock, 1)
	assert.EqualValues(t, 1, ticks.Load())
	assert.Equal(t, testPeriods.Active, s.Period())

	// The faster period now drives the timer.
	clock.advance(testPeriods.Active)
	waitTicks(t, ticks, 2)
}

func TestScheduler_OnlineTransitionFires(t *testing.T) {
	s, clock, ticks := newTestScheduler(t)
	waitPending(t, clock, 1)
	s.MarkSuccess()

	s.SetOnline(false)
	s.SetOnline(true)
	waitTicks(t, ticks, 2)
}

func TestScheduler_OfflineSuppressesFires(t *testing.T) {
	s, clock, ticks := newTestScheduler(t)
	waitPending(t, clock, 1)
	s.MarkSuccess()
	s.SetOnline(false)

	s.Poke()
	clock.advance(2 * testPeriods.Background)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, ticks.Load())
}

func TestScheduler_PokeFiresImmediately(t *testing.T) {
	s, _, ticks := newTestScheduler(t)
	s.MarkSuccess()

	s.Poke()
	waitTicks(t, ticks, 2)
}

func TestScheduler_PeriodSelection(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	assert.Equal(t, testPeriods.Background, s.Period())
	s.SetHotPath(true)
	assert.Equal(t, testPeriods.Active, s.Period())
	s.SetVisible(false)
	assert.Equal(t, testPeriods.Dormant, s.Period())
}

func TestScheduler_StopCancelsTimer(t *testing.T) {
	s, clock, ticks := newTestScheduler(t)
	waitPending(t, clock, 1)

	s.Stop()
	assert.Equal(t, 0, clock.pendingTimers())

	s.Poke()
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, ticks.Load())
}
