package triage

import (
	"context"
	"testing"
	"time"

	"github.com/colonyops/triage/internal/core/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(source *fakeSource) (*Fetcher, *fakeClock, *Sequence) {
	clock := newFakeClock()
	seq := &Sequence{}
	return NewFetcher(source, "u.finch", seq, clock), clock, seq
}

func TestFetcher_MergesAllCategories(t *testing.T) {
	source := newFakeSource()
	source.set(queue.CategoryOrder, testItem(1, queue.CategoryOrder), testItem(2, queue.CategoryOrder))
	source.set(queue.CategoryVoucher, testItem(3, queue.CategoryVoucher))
	f, _, _ := newTestFetcher(source)

	res := f.Fetch(context.Background(), []queue.Category{queue.CategoryOrder, queue.CategoryVoucher})

	assert.EqualValues(t, 1, res.Seq)
	assert.Empty(t, res.Failed)
	assert.ElementsMatch(t, []queue.Category{queue.CategoryOrder, queue.CategoryVoucher}, res.Fetched)
	require.Len(t, res.Items, 3)
	// Requested category order, regardless of goroutine completion order.
	assert.Equal(t, queue.CategoryOrder, res.Items[0].Category)
	assert.Equal(t, queue.CategoryVoucher, res.Items[2].Category)
}

func TestFetcher_PartialFailureKeepsSuccesses(t *testing.T) {
	source := newFakeSource()
	source.set(queue.CategoryOrder, testItem(1, queue.CategoryOrder))
	source.errs[queue.CategoryVoucher] = assert.AnError
	f, _, _ := newTestFetcher(source)

	res := f.Fetch(context.Background(), []queue.Category{queue.CategoryOrder, queue.CategoryVoucher})

	require.Len(t, res.Items, 1)
	assert.Equal(t, queue.ItemID(1), res.Items[0].ID)
	assert.Equal(t, []queue.Category{queue.CategoryOrder}, res.Fetched)
	assert.ErrorIs(t, res.Failed[queue.CategoryVoucher], assert.AnError)
}

func TestFetcher_OrdersByRequestAgeWithinCategory(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	old := testItem(5, queue.CategoryOrder)
	old.RequestedAt = base
	newer := testItem(2, queue.CategoryOrder)
	newer.RequestedAt = base.Add(time.Hour)

	source := newFakeSource()
	source.set(queue.CategoryOrder, newer, old)
	f, _, _ := newTestFetcher(source)

	res := f.Fetch(context.Background(), []queue.Category{queue.CategoryOrder})

	require.Len(t, res.Items, 2)
	assert.Equal(t, queue.ItemID(5), res.Items[0].ID)
	assert.Equal(t, queue.ItemID(2), res.Items[1].ID)
}

func TestFetcher_SequenceAdvancesPerFetch(t *testing.T) {
	source := newFakeSource()
	f, _, _ := newTestFetcher(source)

	first := f.Fetch(context.Background(), []queue.Category{queue.CategoryOrder})
	second := f.Fetch(context.Background(), []queue.Category{queue.CategoryOrder})

	assert.Greater(t, second.Seq, first.Seq)
	assert.Equal(t, 2, source.callCount(queue.CategoryOrder))
}

func TestFetcher_NewFetchCancelsPrevious(t *testing.T) {
	source := newFakeSource()
	source.set(queue.CategoryOrder, testItem(1, queue.CategoryOrder))
	source.block = make(chan struct{})
	source.blocked = make(chan struct{}, 1)
	f, _, _ := newTestFetcher(source)

	done := make(chan FetchResult, 1)
	go func() { done <- f.Fetch(context.Background(), []queue.Category{queue.CategoryOrder}) }()
	<-source.blocked

	// Unblock future calls, then start the superseding fetch.
	source.mu.Lock()
	source.block = nil
	source.mu.Unlock()
	second := f.Fetch(context.Background(), []queue.Category{queue.CategoryOrder})

	first := <-done
	assert.ErrorIs(t, first.Failed[queue.CategoryOrder], context.Canceled)
	assert.Empty(t, second.Failed)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestFetcher_CancelInFlight(t *testing.T) {
	source := newFakeSource()
	source.block = make(chan struct{})
	source.blocked = make(chan struct{}, 1)
	f, _, _ := newTestFetcher(source)

	done := make(chan FetchResult, 1)
	go func() { done <- f.Fetch(context.Background(), []queue.Category{queue.CategoryOrder}) }()
	<-source.blocked

	f.CancelInFlight()
	res := <-done
	assert.ErrorIs(t, res.Failed[queue.CategoryOrder], context.Canceled)
}
