package triage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/triage/internal/core/logging"
	"github.com/colonyops/triage/internal/core/messaging"
	"github.com/colonyops/triage/internal/core/queue"
)

// Coordinator arbitrates between the foreground scheduler and the
// background helper process polling the same document source. While the
// helper is live, the foreground skips the categories the helper covers
// and accepts its pushed snapshots instead; categories outside the
// helper's coverage are always fetched locally.
//
// Liveness is an explicit heartbeat check, not trust: no heartbeat within
// the window means the foreground fetches everything itself.
type Coordinator struct {
	channel    messaging.Channel
	covered    map[queue.Category]struct{}
	liveWindow time.Duration
	clock      Clock
	logger     zerolog.Logger
}

// NewCoordinator creates a coordinator. covered lists the categories the
// helper polls; liveWindow is the maximum heartbeat age counted as live.
func NewCoordinator(channel messaging.Channel, covered []queue.Category, liveWindow time.Duration, clock Clock) *Coordinator {
	set := make(map[queue.Category]struct{}, len(covered))
	for _, cat := range covered {
		set[cat] = struct{}{}
	}
	return &Coordinator{
		channel:    channel,
		covered:    set,
		liveWindow: liveWindow,
		clock:      clock,
		logger:     logging.Component("coordinator"),
	}
}

// HelperLive reports whether the helper has reported within the liveness
// window. Any channel failure counts as not live.
func (c *Coordinator) HelperLive(ctx context.Context) bool {
	if c.channel == nil || len(c.covered) == 0 {
		return false
	}
	hb, err := c.channel.ReadHeartbeat(ctx)
	if err != nil {
		return false
	}
	age := c.clock.Now().Sub(hb.At)
	return age >= 0 && age <= c.liveWindow
}

// Partition splits the entitled categories into the set the foreground
// must fetch itself and the set currently deferred to the helper.
func (c *Coordinator) Partition(ctx context.Context, entitled []queue.Category) (fetch, deferred []queue.Category) {
	if !c.HelperLive(ctx) {
		return entitled, nil
	}
	for _, cat := range entitled {
		if _, ok := c.covered[cat]; ok {
			deferred = append(deferred, cat)
			continue
		}
		fetch = append(fetch, cat)
	}
	if len(deferred) > 0 {
		c.logger.Debug().Int("deferred", len(deferred)).Int("local", len(fetch)).
			Msg("helper live, deferring covered categories")
	}
	return fetch, deferred
}

// ReadDeferred reads the helper's last published snapshot for each deferred
// category. Missing or unreadable topics are skipped: the next partition
// check will notice a dead helper via the heartbeat and resume local
// fetching.
func (c *Coordinator) ReadDeferred(ctx context.Context, deferred []queue.Category) []queue.PendingItem {
	var items []queue.PendingItem
	for _, cat := range deferred {
		msg, err := c.channel.ReadSnapshot(ctx, cat)
		if err != nil {
			c.logger.Debug().Err(err).Str("category", string(cat)).Msg("helper snapshot unavailable")
			continue
		}
		items = append(items, msg.Items...)
	}
	return items
}
