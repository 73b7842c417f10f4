package triage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/colonyops/triage/internal/core/eventbus"
	"github.com/colonyops/triage/internal/core/kv/kvtest"
	"github.com/colonyops/triage/internal/core/notify"
	"github.com/colonyops/triage/internal/core/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHistory is an in-memory notify.Store.
type fakeHistory struct {
	mu    sync.Mutex
	saved []notify.Notification
}

func (f *fakeHistory) Save(_ context.Context, n notify.Notification) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, n)
	return n.ID, nil
}

func (f *fakeHistory) List(context.Context) ([]notify.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Notification(nil), f.saved...), nil
}

func (f *fakeHistory) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = nil
	return nil
}

func (f *fakeHistory) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.saved)), nil
}

func (f *fakeHistory) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type dispatcherFixture struct {
	d       *Dispatcher
	sink    *fakeSink
	history *fakeHistory
	bus     *eventbus.EventBus
	clock   *fakeClock
	prefs   *kvtest.Store
}

func newTestDispatcher(t *testing.T, opts DispatcherOptions) *dispatcherFixture {
	t.Helper()
	fx := &dispatcherFixture{
		sink:    &fakeSink{},
		history: &fakeHistory{},
		bus:     eventbus.New(16),
		clock:   newFakeClock(),
		prefs:   kvtest.New(),
	}
	fx.d = NewDispatcher(opts, fx.sink, fx.history, fx.bus, fx.prefs, fx.clock)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go fx.bus.Run(ctx)
	return fx
}

func defaultOpts() DispatcherOptions {
	return DispatcherOptions{MarkerTTL: 5 * time.Minute, Sound: true, Desktop: true}
}

func addedSnapshot(items ...queue.PendingItem) queue.Snapshot {
	return queue.NewSnapshot(items, 1, time.Now())
}

func TestDispatcher_OneAggregateAlertPerDelta(t *testing.T) {
	ctx := context.Background()
	fx := newTestDispatcher(t, defaultOpts())

	items := []queue.PendingItem{
		testItem(1, queue.CategoryOrder),
		testItem(2, queue.CategoryOrder),
		testItem(3, queue.CategoryVoucher),
	}
	fx.d.HandleAdded(ctx, []queue.ItemID{1, 2, 3}, addedSnapshot(items...))

	sounds, desktops := fx.sink.counts()
	assert.Equal(t, 1, sounds)
	assert.Equal(t, 1, desktops)
	require.Equal(t, 1, fx.history.len())
	assert.Equal(t, "3 new pending items (2 order, 1 voucher)", fx.history.saved[0].Message)
}

func TestDispatcher_RepeatDeltaNotReAlerted(t *testing.T) {
	ctx := context.Background()
	fx := newTestDispatcher(t, defaultOpts())
	snap := addedSnapshot(testItem(1, queue.CategoryOrder))

	fx.d.HandleAdded(ctx, []queue.ItemID{1}, snap)
	fx.d.HandleAdded(ctx, []queue.ItemID{1}, snap)

	sounds, _ := fx.sink.counts()
	assert.Equal(t, 1, sounds)
	assert.Equal(t, 1, fx.history.len())
}

func TestDispatcher_MarkerExpires(t *testing.T) {
	ctx := context.Background()
	fx := newTestDispatcher(t, defaultOpts())

	fx.d.HandleAdded(ctx, []queue.ItemID{1}, addedSnapshot(testItem(1, queue.CategoryOrder)))
	assert.True(t, fx.d.IsNew(1))

	fx.clock.advance(6 * time.Minute)
	assert.False(t, fx.d.IsNew(1))
}

func TestDispatcher_MuteGatesAllAlertSignals(t *testing.T) {
	ctx := context.Background()
	fx := newTestDispatcher(t, defaultOpts())
	require.NoError(t, fx.d.SetMuted(ctx, true))

	var added []eventbus.ItemsAddedPayload
	var mu sync.Mutex
	fx.bus.SubscribeItemsAdded(func(p eventbus.ItemsAddedPayload) {
		mu.Lock()
		added = append(added, p)
		mu.Unlock()
	})

	fx.d.HandleAdded(ctx, []queue.ItemID{1}, addedSnapshot(testItem(1, queue.CategoryOrder)))

	sounds, desktops := fx.sink.counts()
	assert.Zero(t, sounds)
	assert.Zero(t, desktops)
	assert.Zero(t, fx.history.len())

	// The "new" markers and the added event are rendering inputs, not
	// alerts; muting must not hide the items themselves.
	assert.True(t, fx.d.IsNew(1))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(added) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcher_UnmuteRestoresAlerts(t *testing.T) {
	ctx := context.Background()
	fx := newTestDispatcher(t, defaultOpts())

	require.NoError(t, fx.d.SetMuted(ctx, true))
	assert.True(t, fx.d.Muted(ctx))
	require.NoError(t, fx.d.SetMuted(ctx, false))

	fx.d.HandleAdded(ctx, []queue.ItemID{1}, addedSnapshot(testItem(1, queue.CategoryOrder)))
	sounds, _ := fx.sink.counts()
	assert.Equal(t, 1, sounds)
}

func TestDispatcher_SuppressedCategoryNeverAlerts(t *testing.T) {
	ctx := context.Background()
	opts := defaultOpts()
	opts.Suppress = []string{"receipt-*"}
	fx := newTestDispatcher(t, opts)

	fx.d.HandleAdded(ctx, []queue.ItemID{1}, addedSnapshot(testItem(1, queue.CategoryReceiptNote)))

	sounds, _ := fx.sink.counts()
	assert.Zero(t, sounds)
	assert.Zero(t, fx.history.len())
	// Suppression silences the alert, not the rendering.
	assert.True(t, fx.d.IsNew(1))
}

func TestDispatcher_SuppressionFiltersCountsNotDelta(t *testing.T) {
	ctx := context.Background()
	opts := defaultOpts()
	opts.Suppress = []string{"voucher"}
	fx := newTestDispatcher(t, opts)

	items := []queue.PendingItem{
		testItem(1, queue.CategoryOrder),
		testItem(2, queue.CategoryVoucher),
	}
	fx.d.HandleAdded(ctx, []queue.ItemID{1, 2}, addedSnapshot(items...))

	require.Equal(t, 1, fx.history.len())
	assert.Equal(t, "1 new pending item (1 order)", fx.history.saved[0].Message)
}

func TestDispatcher_DesktopDenialRemembered(t *testing.T) {
	ctx := context.Background()
	fx := newTestDispatcher(t, defaultOpts())
	fx.sink.desktopErr = assert.AnError

	fx.d.HandleAdded(ctx, []queue.ItemID{1}, addedSnapshot(testItem(1, queue.CategoryOrder)))
	fx.d.HandleAdded(ctx, []queue.ItemID{2}, addedSnapshot(testItem(2, queue.CategoryOrder)))

	sounds, desktops := fx.sink.counts()
	assert.Equal(t, 2, sounds)
	assert.Equal(t, 1, desktops)
}

func TestDispatcher_PrefsFailureDefaultsToUnmuted(t *testing.T) {
	ctx := context.Background()
	fx := newTestDispatcher(t, defaultOpts())
	fx.prefs.FailAll = true

	assert.False(t, fx.d.Muted(ctx))

	fx.d.HandleAdded(ctx, []queue.ItemID{1}, addedSnapshot(testItem(1, queue.CategoryOrder)))
	sounds, _ := fx.sink.counts()
	assert.Equal(t, 1, sounds)
}
