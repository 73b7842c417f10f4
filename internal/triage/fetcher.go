package triage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/triage/internal/client"
	"github.com/colonyops/triage/internal/core/logging"
	"github.com/colonyops/triage/internal/core/queue"
)

// FetchResult is the merged outcome of one aggregate fetch. A failed
// category never aborts the aggregate: Items holds whatever succeeded and
// Failed reports the rest.
type FetchResult struct {
	Seq     int64
	Items   []queue.PendingItem
	Fetched []queue.Category
	Failed  map[queue.Category]error
	Taken   time.Time
}

// Fetcher issues the category-scoped reads the actor is entitled to, in
// parallel, and merges the results into one ordered candidate list. Only
// one aggregate fetch runs at a time: starting a new one cancels the
// previous one's network calls and its eventual result is discarded by the
// store's sequence check.
type Fetcher struct {
	source client.DocumentSource
	actor  string
	seq    *Sequence
	clock  Clock
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    int64
}

// NewFetcher creates a fetch aggregator for one actor.
func NewFetcher(source client.DocumentSource, actor string, seq *Sequence, clock Clock) *Fetcher {
	return &Fetcher{
		source: source,
		actor:  actor,
		seq:    seq,
		clock:  clock,
		logger: logging.Component("fetcher"),
	}
}

// Fetch reads all given categories concurrently and merges the results.
// The previous in-flight aggregate, if any, is cancelled first.
func (f *Fetcher) Fetch(ctx context.Context, categories []queue.Category) FetchResult {
	ctx, cancel := context.WithCancel(ctx)

	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.cancel = cancel
	f.gen++
	myGen := f.gen
	f.mu.Unlock()

	defer func() {
		cancel()
		f.mu.Lock()
		// Only clear the slot if no newer fetch has replaced us.
		if f.gen == myGen {
			f.cancel = nil
		}
		f.mu.Unlock()
	}()

	result := FetchResult{
		Seq:    f.seq.Next(),
		Failed: make(map[queue.Category]error),
		Taken:  f.clock.Now(),
	}

	type catResult struct {
		cat   queue.Category
		items []queue.PendingItem
		err   error
	}

	results := make(chan catResult, len(categories))
	var wg sync.WaitGroup
	for _, cat := range categories {
		wg.Add(1)
		go func(cat queue.Category) {
			defer wg.Done()
			items, err := f.source.ListPending(ctx, f.actor, cat)
			results <- catResult{cat: cat, items: items, err: err}
		}(cat)
	}
	wg.Wait()
	close(results)

	byCategory := make(map[queue.Category][]queue.PendingItem, len(categories))
	for res := range results {
		if res.err != nil {
			f.logger.Warn().Err(res.err).Str("category", string(res.cat)).Int64("seq", result.Seq).
				Msg("category fetch failed")
			result.Failed[res.cat] = res.err
			continue
		}
		byCategory[res.cat] = res.items
		result.Fetched = append(result.Fetched, res.cat)
	}

	// Deterministic order: requested category order, then request age
	// within a category (oldest first), id as tiebreaker.
	for _, cat := range categories {
		items := byCategory[cat]
		sort.SliceStable(items, func(i, j int) bool {
			if !items[i].RequestedAt.Equal(items[j].RequestedAt) {
				return items[i].RequestedAt.Before(items[j].RequestedAt)
			}
			return items[i].ID < items[j].ID
		})
		result.Items = append(result.Items, items...)
	}

	return result
}

// CancelInFlight cancels any fetch currently in progress.
func (f *Fetcher) CancelInFlight() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}
