package triage

import (
	"context"
	"testing"
	"time"

	"github.com/colonyops/triage/internal/client"
	"github.com/colonyops/triage/internal/core/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mutationTimeout = 2 * time.Minute

func newTestStore(t *testing.T, actions client.ActionService) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return NewStore(actions, "u.finch", clock, mutationTimeout), clock
}

func fetchResult(clock *fakeClock, seq int64, items ...queue.PendingItem) FetchResult {
	return FetchResult{Seq: seq, Items: items, Taken: clock.Now()}
}

func TestStore_ReconcileIsIdempotent(t *testing.T) {
	store, clock := newTestStore(t, newFakeActions())
	items := []queue.PendingItem{testItem(1, queue.CategoryOrder), testItem(2, queue.CategoryVoucher)}

	_, err := store.Reconcile(fetchResult(clock, 1, items...))
	require.NoError(t, err)
	first := store.Snapshot()

	_, err = store.Reconcile(fetchResult(clock, 2, items...))
	require.NoError(t, err)
	second := store.Snapshot()

	assert.Equal(t, first.IDs(), second.IDs())
}

func TestStore_StaleResponseDiscarded(t *testing.T) {
	store, clock := newTestStore(t, newFakeActions())

	_, err := store.Reconcile(fetchResult(clock, 5, testItem(1, queue.CategoryOrder)))
	require.NoError(t, err)

	_, err = store.Reconcile(fetchResult(clock, 3, testItem(2, queue.CategoryOrder)))
	assert.ErrorIs(t, err, ErrStaleResponse)

	// Snapshot keeps the seq-5 contents.
	assert.Equal(t, []queue.ItemID{1}, store.Snapshot().IDs())
}

func TestStore_OptimisticExclusion(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t, newFakeActions())

	a, b := testItem(1, queue.CategoryOrder), testItem(2, queue.CategoryOrder)
	_, err := store.Reconcile(fetchResult(clock, 1, a, b))
	require.NoError(t, err)

	// User approves A; the fake service confirms.
	require.NoError(t, store.ApplyAction(ctx, 1, queue.ActionApprove, ""))
	assert.Equal(t, []queue.ItemID{2}, store.Snapshot().IDs())

	// The next fetch still returns A; it must not flash back.
	diff, err := store.Reconcile(fetchResult(clock, 2, a, b))
	require.NoError(t, err)
	assert.Equal(t, []queue.ItemID{2}, diff.Merged.IDs())
	assert.Empty(t, diff.Added)

	// A fetch without A completes the removal.
	diff, err = store.Reconcile(fetchResult(clock, 3, b))
	require.NoError(t, err)
	assert.Equal(t, []queue.ItemID{2}, diff.Merged.IDs())
	assert.Empty(t, store.Tentatives())
}

func TestStore_TentativeTimeoutUnhidesItem(t *testing.T) {
	ctx := context.Background()
	actions := newFakeActions()
	store, clock := newTestStore(t, actions)

	a := testItem(1, queue.CategoryOrder)
	_, err := store.Reconcile(fetchResult(clock, 1, a))
	require.NoError(t, err)
	require.NoError(t, store.ApplyAction(ctx, 1, queue.ActionApprove, ""))
	assert.Empty(t, store.Snapshot().IDs())

	// Well past the timeout the mutation counts as abandoned, so a fetch
	// still returning the item resurrects it.
	clock.advance(mutationTimeout + time.Minute)
	diff, err := store.Reconcile(fetchResult(clock, 2, a))
	require.NoError(t, err)
	assert.Equal(t, []queue.ItemID{1}, diff.Merged.IDs())
}

func TestStore_AtMostOneInFlightActionPerID(t *testing.T) {
	ctx := context.Background()
	actions := newFakeActions()
	actions.release = make(chan struct{})
	actions.started = make(chan struct{}, 1)
	store, clock := newTestStore(t, actions)

	_, err := store.Reconcile(fetchResult(clock, 1, testItem(1, queue.CategoryOrder)))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- store.ApplyAction(ctx, 1, queue.ActionApprove, "") }()
	<-actions.started

	// Second request while the first is in flight: rejected without a call.
	err = store.ApplyAction(ctx, 1, queue.ActionReject, "")
	assert.ErrorIs(t, err, ErrActionPending)
	assert.Equal(t, 1, actions.callCount())

	close(actions.release)
	require.NoError(t, <-done)
}

func TestStore_RefusalRollsBack(t *testing.T) {
	ctx := context.Background()
	actions := newFakeActions()
	actions.result = client.ActionResult{Outcome: queue.OutcomeRefused, Reason: "step already closed"}
	store, clock := newTestStore(t, actions)

	_, err := store.Reconcile(fetchResult(clock, 1, testItem(1, queue.CategoryOrder)))
	require.NoError(t, err)

	err = store.ApplyAction(ctx, 1, queue.ActionApprove, "")
	require.ErrorIs(t, err, ErrActionRefused)
	assert.Contains(t, err.Error(), "step already closed")

	// The item reappears immediately; nothing is retried.
	assert.Equal(t, []queue.ItemID{1}, store.Snapshot().IDs())
	assert.Equal(t, 1, actions.callCount())
	assert.Empty(t, store.Tentatives())
}

func TestStore_TransportFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	actions := newFakeActions()
	actions.err = assert.AnError
	store, clock := newTestStore(t, actions)

	_, err := store.Reconcile(fetchResult(clock, 1, testItem(1, queue.CategoryOrder)))
	require.NoError(t, err)

	err = store.ApplyAction(ctx, 1, queue.ActionApprove, "")
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []queue.ItemID{1}, store.Snapshot().IDs())
}

func TestStore_ActionOnUnknownItemRejected(t *testing.T) {
	ctx := context.Background()
	actions := newFakeActions()
	store, clock := newTestStore(t, actions)

	_, err := store.Reconcile(fetchResult(clock, 1, testItem(1, queue.CategoryOrder)))
	require.NoError(t, err)

	err = store.ApplyAction(ctx, 99, queue.ActionApprove, "")
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.Zero(t, actions.callCount())
}

func TestStore_AddedExcludesTentativelyRemoved(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t, newFakeActions())

	_, err := store.Reconcile(fetchResult(clock, 1, testItem(1, queue.CategoryOrder)))
	require.NoError(t, err)
	require.NoError(t, store.ApplyAction(ctx, 1, queue.ActionApprove, ""))

	// Reconcile with both the acted-on item and a genuinely new one.
	diff, err := store.Reconcile(fetchResult(clock, 2, testItem(1, queue.CategoryOrder), testItem(2, queue.CategoryVoucher)))
	require.NoError(t, err)
	assert.Equal(t, []queue.ItemID{2}, diff.Added)
	assert.Equal(t, []queue.ItemID{2}, diff.Merged.IDs())
}
