package triage

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/colonyops/triage/internal/core/eventbus"
	"github.com/colonyops/triage/internal/core/kv"
	"github.com/colonyops/triage/internal/core/logging"
	"github.com/colonyops/triage/internal/core/messaging"
	"github.com/colonyops/triage/internal/core/queue"
)

const baselineNamespace = "baseline"

// Engine is the synchronization engine: it drives the fetch/reconcile
// cycle from the scheduler, folds in helper pushes, and fans results out
// to the dispatcher and the event bus.
type Engine struct {
	fetcher     *Fetcher
	store       *Store
	scheduler   *Scheduler
	coordinator *Coordinator
	dispatcher  *Dispatcher
	bus         *eventbus.EventBus
	watcher     messaging.Watcher
	channel     messaging.Channel
	entitled    []queue.Category
	seq         *Sequence
	baseline    *kv.TypedKV[[]queue.ItemID]
	logger      zerolog.Logger

	mu     sync.Mutex
	perCat map[queue.Category][]queue.PendingItem
}

// EngineDeps bundles the collaborators the engine needs.
type EngineDeps struct {
	Fetcher     *Fetcher
	Store       *Store
	Coordinator *Coordinator
	Dispatcher  *Dispatcher
	Bus         *eventbus.EventBus
	Watcher     messaging.Watcher
	Channel     messaging.Channel
	Entitled    []queue.Category
	Seq         *Sequence
	Prefs       kv.KV
	Periods     SchedulerPeriods
	Clock       Clock
}

// NewEngine wires an engine from its dependencies. The scheduler is
// created here so its tick callback closes over the engine.
func NewEngine(deps EngineDeps) *Engine {
	e := &Engine{
		fetcher:     deps.Fetcher,
		store:       deps.Store,
		coordinator: deps.Coordinator,
		dispatcher:  deps.Dispatcher,
		bus:         deps.Bus,
		watcher:     deps.Watcher,
		channel:     deps.Channel,
		entitled:    deps.Entitled,
		seq:         deps.Seq,
		baseline:    kv.Scoped[[]queue.ItemID](deps.Prefs, baselineNamespace),
		logger:      logging.Component("engine"),
		perCat:      make(map[queue.Category][]queue.PendingItem),
	}
	e.scheduler = NewScheduler(deps.Periods, deps.Clock, e.Tick)
	return e
}

// Scheduler exposes the engine's scheduler for visibility and hot-path
// signals from the renderer.
func (e *Engine) Scheduler() *Scheduler {
	return e.scheduler
}

// Dispatcher exposes the dispatcher for marker queries and mute control.
func (e *Engine) Dispatcher() *Dispatcher {
	return e.dispatcher
}

// Snapshot returns the current reconciled view.
func (e *Engine) Snapshot() queue.Snapshot {
	return e.store.Snapshot()
}

// Start launches the scheduler and, when a watcher is configured, the
// helper-push listener. Both stop when the context is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if e.watcher != nil {
		events, err := e.watcher.Watch(ctx, "*")
		if err != nil {
			return err
		}
		go e.listen(ctx, events)
	}
	e.scheduler.Start(ctx)
	return nil
}

// Tick runs one full fetch/reconcile cycle. It is the scheduler's
// TickFunc and only returns once the cycle has settled.
func (e *Engine) Tick(ctx context.Context) {
	local, deferred := e.coordinator.Partition(ctx, e.entitled)

	var (
		result  FetchResult
		fetched bool
	)
	if len(local) > 0 {
		result = e.fetcher.Fetch(ctx, local)
		fetched = true
	} else {
		result = FetchResult{Seq: e.seq.Next(), Taken: e.fetcher.clock.Now(), Failed: map[queue.Category]error{}}
	}

	e.mu.Lock()
	for _, cat := range result.Fetched {
		e.perCat[cat] = itemsOf(result.Items, cat)
	}
	for _, cat := range deferred {
		msg, err := e.channel.ReadSnapshot(ctx, cat)
		if err != nil {
			e.logger.Debug().Err(err).Str("category", string(cat)).Msg("deferred snapshot unavailable")
			continue
		}
		e.perCat[cat] = msg.Items
	}
	candidate := e.candidateLocked()
	e.mu.Unlock()

	succeeded := len(result.Fetched) > 0 || len(deferred) > 0 || (fetched && len(result.Failed) == 0)
	e.finish(ctx, FetchResult{Seq: result.Seq, Items: candidate, Taken: result.Taken, Failed: result.Failed}, succeeded)
}

// HandleHelperPush folds one pushed helper snapshot into the queue through
// the normal reconcile path; the store's exclusion rule is never bypassed.
func (e *Engine) HandleHelperPush(ctx context.Context, cat queue.Category) {
	msg, err := e.channel.ReadSnapshot(ctx, cat)
	if err != nil {
		e.logger.Debug().Err(err).Str("category", string(cat)).Msg("helper push unreadable")
		return
	}

	e.mu.Lock()
	e.perCat[cat] = msg.Items
	candidate := e.candidateLocked()
	e.mu.Unlock()

	e.finish(ctx, FetchResult{
		Seq:    e.seq.Next(),
		Items:  candidate,
		Taken:  msg.PublishedAt,
		Failed: map[queue.Category]error{},
	}, true)
}

// finish reconciles a candidate list and fans out the outcome.
func (e *Engine) finish(ctx context.Context, result FetchResult, succeeded bool) {
	first := !e.store.Primed()

	diff, err := e.store.Reconcile(result)
	if errors.Is(err, ErrStaleResponse) {
		e.logger.Debug().Int64("seq", result.Seq).Msg("stale fetch discarded")
		return
	}
	if err != nil {
		e.logger.Error().Err(err).Msg("reconcile failed")
		return
	}

	if succeeded {
		e.scheduler.MarkSuccess()
	}

	added := diff.Added
	if first {
		// Initial population is not news, but items that appeared since
		// the previous run still are: compare against the persisted
		// baseline from the last session.
		added = e.sinceBaseline(ctx, diff.Merged)
	}
	e.saveBaseline(ctx, diff.Merged)

	if len(added) > 0 {
		e.dispatcher.HandleAdded(ctx, added, diff.Merged)
	}

	e.bus.PublishQueueReconciled(eventbus.QueueReconciledPayload{
		Snapshot: diff.Merged,
		Added:    added,
		Removed:  diff.Removed,
	})

	if len(result.Failed) > 0 {
		failed := make(map[queue.Category]string, len(result.Failed))
		for cat, ferr := range result.Failed {
			failed[cat] = ferr.Error()
		}
		e.bus.PublishFetchFailed(eventbus.FetchFailedPayload{Failed: failed})
	}
}

// ApplyAction applies an approve/reject optimistically and reports the
// outcome on the bus. The returned error carries the user-facing reason.
func (e *Engine) ApplyAction(ctx context.Context, id queue.ItemID, kind queue.ActionKind, comment string) error {
	err := e.store.ApplyAction(ctx, id, kind, comment)
	if err != nil {
		e.bus.PublishActionFailed(eventbus.ActionFailedPayload{ID: id, Kind: kind, Reason: err.Error()})
		return err
	}
	e.bus.PublishActionConfirmed(eventbus.ActionConfirmedPayload{ID: id, Kind: kind})
	e.bus.PublishQueueReconciled(eventbus.QueueReconciledPayload{Snapshot: e.store.Snapshot()})
	return nil
}

func (e *Engine) listen(ctx context.Context, events <-chan messaging.TopicEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.handleTopicEvent(ctx, ev)
		}
	}
}

func (e *Engine) handleTopicEvent(ctx context.Context, ev messaging.TopicEvent) {
	switch {
	case ev.Topic == messaging.TopicHeartbeat:
		hb, err := e.channel.ReadHeartbeat(ctx)
		if err != nil {
			return
		}
		e.bus.PublishHelperHeartbeat(eventbus.HelperHeartbeatPayload{At: hb.At, Categories: hb.Categories})
	case len(ev.Topic) > len(messaging.TopicSnapshotPrefix) && ev.Topic[:len(messaging.TopicSnapshotPrefix)] == messaging.TopicSnapshotPrefix:
		cat := queue.Category(ev.Topic[len(messaging.TopicSnapshotPrefix):])
		e.HandleHelperPush(ctx, cat)
	}
}

// candidateLocked builds the merged candidate list in entitled-category
// order from the per-category cache.
func (e *Engine) candidateLocked() []queue.PendingItem {
	var out []queue.PendingItem
	for _, cat := range e.entitled {
		out = append(out, e.perCat[cat]...)
	}
	return out
}

// sinceBaseline returns the ids in the snapshot that were not present at
// the end of the previous session. A missing baseline means nothing is new.
func (e *Engine) sinceBaseline(ctx context.Context, snap queue.Snapshot) []queue.ItemID {
	prev, err := e.baseline.Get(ctx, "ids")
	if err != nil {
		return nil
	}
	known := make(map[queue.ItemID]struct{}, len(prev))
	for _, id := range prev {
		known[id] = struct{}{}
	}
	var added []queue.ItemID
	for _, id := range snap.IDs() {
		if _, ok := known[id]; !ok {
			added = append(added, id)
		}
	}
	return added
}

func (e *Engine) saveBaseline(ctx context.Context, snap queue.Snapshot) {
	if err := e.baseline.Set(ctx, "ids", snap.IDs()); err != nil {
		e.logger.Debug().Err(err).Msg("persist baseline failed")
	}
}

func itemsOf(items []queue.PendingItem, cat queue.Category) []queue.PendingItem {
	var out []queue.PendingItem
	for _, it := range items {
		if it.Category == cat {
			out = append(out, it)
		}
	}
	return out
}
