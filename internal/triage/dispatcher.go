package triage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/colonyops/triage/internal/core/eventbus"
	"github.com/colonyops/triage/internal/core/kv"
	"github.com/colonyops/triage/internal/core/logging"
	"github.com/colonyops/triage/internal/core/notify"
	"github.com/colonyops/triage/internal/core/queue"
	"github.com/colonyops/triage/pkg/memkv"
)

const (
	prefsNamespace   = "prefs"
	prefMuted        = "muted"
	prefDesktopDeny  = "desktop-denied"
	desktopDenyCache = 30 * 24 * time.Hour
)

// DispatcherOptions tunes alert behavior.
type DispatcherOptions struct {
	// MarkerTTL is how long an item keeps its "new" badge.
	MarkerTTL time.Duration
	// Suppress holds glob patterns; a category matching any pattern is
	// never alerted (it may still render).
	Suppress []string
	// Sound and Desktop enable the respective sink outputs.
	Sound   bool
	Desktop bool
}

// Dispatcher turns added-deltas into user-facing signals: time-boxed "new"
// markers, one aggregate alert per delta, and in-app notifications. It
// de-duplicates repeat alerts per item and honors the persisted mute
// preference.
type Dispatcher struct {
	opts    DispatcherOptions
	sink    notify.Sink
	history notify.Store
	bus     *eventbus.EventBus
	prefs   *kv.TypedKV[bool]
	clock   Clock
	logger  zerolog.Logger

	markers *memkv.Store[queue.ItemID, time.Time] // id -> marker expiry
	alerted *memkv.Store[queue.ItemID, time.Time] // id -> last alert time
}

// NewDispatcher creates a dispatcher. prefs may be backed by a nil-safe KV;
// preference read failures fall back to defaults (not muted, desktop
// allowed).
func NewDispatcher(opts DispatcherOptions, sink notify.Sink, history notify.Store, bus *eventbus.EventBus, prefStore kv.KV, clock Clock) *Dispatcher {
	return &Dispatcher{
		opts:    opts,
		sink:    sink,
		history: history,
		bus:     bus,
		prefs:   kv.Scoped[bool](prefStore, prefsNamespace),
		clock:   clock,
		logger:  logging.Component("dispatcher"),
		markers: memkv.New[queue.ItemID, time.Time](),
		alerted: memkv.New[queue.ItemID, time.Time](),
	}
}

// HandleAdded processes one added-delta. snapshot is the post-reconcile
// view used for the category breakdown. Exactly one aggregate alert is
// emitted per call, never one per item, and items already alerted within
// the marker window are not counted again.
func (d *Dispatcher) HandleAdded(ctx context.Context, added []queue.ItemID, snapshot queue.Snapshot) {
	d.sweepExpired()

	fresh := d.markFresh(added)
	if len(fresh) == 0 {
		return
	}

	byCategory := make(map[queue.Category]int)
	for _, id := range fresh {
		if it, ok := snapshot.Get(id); ok {
			byCategory[it.Category]++
		}
	}
	for cat := range byCategory {
		if d.suppressed(cat) {
			delete(byCategory, cat)
		}
	}

	total := 0
	for _, n := range byCategory {
		total += n
	}
	if total == 0 {
		return
	}

	d.bus.PublishItemsAdded(eventbus.ItemsAddedPayload{IDs: fresh, ByCategory: byCategory})

	// The mute preference gates every alert signal; the "new" markers and
	// the items.added event above are styling, not alerts.
	if d.muted(ctx) {
		return
	}

	message := alertMessage(total, byCategory)
	if d.history != nil {
		if _, err := d.history.Save(ctx, notify.Notification{
			Level:     notify.LevelInfo,
			Message:   message,
			CreatedAt: d.clock.Now(),
		}); err != nil {
			d.logger.Debug().Err(err).Msg("persist alert history failed")
		}
	}
	d.bus.PublishNotificationPublished(eventbus.NotificationPublishedPayload{
		Level:   notify.LevelInfo,
		Message: message,
	})

	if d.opts.Sound {
		if err := d.sink.PlaySound(); err != nil {
			d.logger.Debug().Err(err).Msg("alert sound failed")
		}
	}
	if d.opts.Desktop && !d.desktopDenied(ctx) {
		if err := d.sink.ShowDesktopAlert("Pending approvals", message); err != nil {
			// Remember the denial so we do not re-prompt every delta.
			d.logger.Debug().Err(err).Msg("desktop alert denied, degrading to in-app only")
			if err := d.prefs.SetTTL(ctx, prefDesktopDeny, true, desktopDenyCache); err != nil {
				d.logger.Debug().Err(err).Msg("persist desktop denial failed")
			}
		}
	}
}

// markFresh applies a "new" marker to every id that does not already carry
// an unexpired one and returns the ids that were actually fresh.
func (d *Dispatcher) markFresh(added []queue.ItemID) []queue.ItemID {
	now := d.clock.Now()
	expiry := now.Add(d.opts.MarkerTTL)

	var fresh []queue.ItemID
	for _, id := range added {
		if last, ok := d.alerted.Get(id); ok && now.Sub(last) < d.opts.MarkerTTL {
			continue
		}
		d.markers.Set(id, expiry)
		d.alerted.Set(id, now)
		fresh = append(fresh, id)
	}
	return fresh
}

// IsNew reports whether the item still carries an unexpired "new" marker.
// Marker expiry affects styling only, never snapshot membership.
func (d *Dispatcher) IsNew(id queue.ItemID) bool {
	expiry, ok := d.markers.Get(id)
	if !ok {
		return false
	}
	if d.clock.Now().After(expiry) {
		d.markers.Delete(id)
		return false
	}
	return true
}

// Muted reports the persisted mute preference, defaulting to unmuted when
// the store is unreadable.
func (d *Dispatcher) Muted(ctx context.Context) bool {
	return d.muted(ctx)
}

// SetMuted persists the mute preference.
func (d *Dispatcher) SetMuted(ctx context.Context, muted bool) error {
	return d.prefs.Set(ctx, prefMuted, muted)
}

func (d *Dispatcher) muted(ctx context.Context) bool {
	return d.prefs.GetOr(ctx, prefMuted, false)
}

func (d *Dispatcher) desktopDenied(ctx context.Context) bool {
	return d.prefs.GetOr(ctx, prefDesktopDeny, false)
}

func (d *Dispatcher) suppressed(cat queue.Category) bool {
	for _, pattern := range d.opts.Suppress {
		if ok, err := doublestar.Match(pattern, string(cat)); err == nil && ok {
			return true
		}
	}
	return false
}

func (d *Dispatcher) sweepExpired() {
	now := d.clock.Now()
	d.markers.DeleteFunc(func(_ queue.ItemID, expiry time.Time) bool {
		return now.After(expiry)
	})
	d.alerted.DeleteFunc(func(_ queue.ItemID, at time.Time) bool {
		return now.Sub(at) > 2*d.opts.MarkerTTL
	})
}

func alertMessage(total int, byCategory map[queue.Category]int) string {
	cats := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		cats = append(cats, string(cat))
	}
	sort.Strings(cats)

	parts := make([]string, 0, len(cats))
	for _, cat := range cats {
		parts = append(parts, fmt.Sprintf("%d %s", byCategory[queue.Category(cat)], cat))
	}

	noun := "items"
	if total == 1 {
		noun = "item"
	}
	return fmt.Sprintf("%d new pending %s (%s)", total, noun, strings.Join(parts, ", "))
}
