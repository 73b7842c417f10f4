package triage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/colonyops/triage/internal/client"
	"github.com/colonyops/triage/internal/core/messaging"
	"github.com/colonyops/triage/internal/core/queue"
)

var errNoTopic = errors.New("topic not published")

// fakeClock is a manually advanced clock with a timer registry so tests
// can count armed timers and fire them deterministically.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	fireAt  time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, fireAt: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

// advance moves the clock and fires due timers outside the lock.
func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.fireAt.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

// pendingTimers counts timers that are armed and not yet fired or stopped.
func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeSource serves canned per-category items and records calls.
type fakeSource struct {
	mu      sync.Mutex
	items   map[queue.Category][]queue.PendingItem
	errs    map[queue.Category]error
	calls   map[queue.Category]int
	block   chan struct{} // when set, ListPending blocks until closed or ctx done
	blocked chan struct{} // signaled when a call starts blocking
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		items: make(map[queue.Category][]queue.PendingItem),
		errs:  make(map[queue.Category]error),
		calls: make(map[queue.Category]int),
	}
}

func (f *fakeSource) ListPending(ctx context.Context, _ string, cat queue.Category) ([]queue.PendingItem, error) {
	f.mu.Lock()
	f.calls[cat]++
	block := f.block
	blocked := f.blocked
	items := f.items[cat]
	err := f.errs[cat]
	f.mu.Unlock()

	if block != nil {
		if blocked != nil {
			select {
			case blocked <- struct{}{}:
			default:
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
		}
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (f *fakeSource) callCount(cat queue.Category) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[cat]
}

func (f *fakeSource) set(cat queue.Category, items ...queue.PendingItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[cat] = items
}

// fakeActions scripts the action service verdicts.
type fakeActions struct {
	mu      sync.Mutex
	result  client.ActionResult
	err     error
	calls   []client.ActionRequest
	release chan struct{} // when set, Apply blocks until closed
	started chan struct{}
}

func newFakeActions() *fakeActions {
	return &fakeActions{result: client.ActionResult{Outcome: queue.OutcomeConfirmed}}
}

func (f *fakeActions) Apply(ctx context.Context, req client.ActionRequest) (client.ActionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	release := f.release
	started := f.started
	result := f.result
	err := f.err
	f.mu.Unlock()

	if release != nil {
		if started != nil {
			select {
			case started <- struct{}{}:
			default:
			}
		}
		select {
		case <-ctx.Done():
			return client.ActionResult{}, ctx.Err()
		case <-release:
		}
	}
	return result, err
}

func (f *fakeActions) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeChannel is an in-memory messaging.Channel.
type fakeChannel struct {
	mu        sync.Mutex
	heartbeat *messaging.Heartbeat
	snapshots map[queue.Category]messaging.SnapshotMessage
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{snapshots: make(map[queue.Category]messaging.SnapshotMessage)}
}

func (f *fakeChannel) PublishHeartbeat(_ context.Context, hb messaging.Heartbeat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeat = &hb
	return nil
}

func (f *fakeChannel) PublishSnapshot(_ context.Context, msg messaging.SnapshotMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[msg.Category] = msg
	return nil
}

func (f *fakeChannel) ReadHeartbeat(context.Context) (messaging.Heartbeat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heartbeat == nil {
		return messaging.Heartbeat{}, errNoTopic
	}
	return *f.heartbeat, nil
}

func (f *fakeChannel) ReadSnapshot(_ context.Context, cat queue.Category) (messaging.SnapshotMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.snapshots[cat]
	if !ok {
		return messaging.SnapshotMessage{}, errNoTopic
	}
	return msg, nil
}

// fakeSink counts alert deliveries.
type fakeSink struct {
	mu         sync.Mutex
	sounds     int
	desktops   int
	desktopErr error
}

func (f *fakeSink) PlaySound() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sounds++
	return nil
}

func (f *fakeSink) ShowDesktopAlert(string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.desktops++
	return f.desktopErr
}

func (f *fakeSink) counts() (sounds, desktops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sounds, f.desktops
}

func testItem(id queue.ItemID, cat queue.Category) queue.PendingItem {
	return queue.PendingItem{ID: id, Category: cat}
}
