package eventbus

import (
	"time"

	"github.com/colonyops/triage/internal/core/notify"
	"github.com/colonyops/triage/internal/core/queue"
)

// Event names, kept sorted A-Z.
const (
	EventActionConfirmed       Event = "action.confirmed"
	EventActionFailed          Event = "action.failed"
	EventFetchFailed           Event = "fetch.failed"
	EventHelperHeartbeat       Event = "helper.heartbeat"
	EventItemsAdded            Event = "items.added"
	EventNotificationPublished Event = "notification.published"
	EventQueueReconciled       Event = "queue.reconciled"
)

// QueueReconciledPayload is emitted every time a fetch result is accepted
// into the snapshot. Snapshot is the post-exclusion view to render.
type QueueReconciledPayload struct {
	Snapshot queue.Snapshot
	Added    []queue.ItemID
	Removed  []queue.ItemID
}

// ItemsAddedPayload is emitted when new items appear post-initial-load.
type ItemsAddedPayload struct {
	IDs        []queue.ItemID
	ByCategory map[queue.Category]int
}

// ActionConfirmedPayload is emitted when the action service confirms an action.
type ActionConfirmedPayload struct {
	ID   queue.ItemID
	Kind queue.ActionKind
}

// ActionFailedPayload is emitted when an action is refused or errors out
// and the tentative removal has been rolled back.
type ActionFailedPayload struct {
	ID     queue.ItemID
	Kind   queue.ActionKind
	Reason string
}

// FetchFailedPayload is emitted when one or more category reads fail.
// Successful categories have already been merged.
type FetchFailedPayload struct {
	Failed map[queue.Category]string
}

// HelperHeartbeatPayload is emitted when the background helper reports in.
type HelperHeartbeatPayload struct {
	At         time.Time
	Categories []queue.Category
}

// NotificationPublishedPayload carries a user-facing notification to the TUI.
type NotificationPublishedPayload struct {
	Level   notify.Level
	Message string
}

// PublishQueueReconciled publishes a queue.reconciled event.
func (bus *EventBus) PublishQueueReconciled(p QueueReconciledPayload) {
	bus.send(EventQueueReconciled, p)
}

// SubscribeQueueReconciled registers a handler for queue.reconciled events.
func (bus *EventBus) SubscribeQueueReconciled(fn func(QueueReconciledPayload)) {
	bus.subscribe(EventQueueReconciled, func(p any) { fn(p.(QueueReconciledPayload)) })
}

// PublishItemsAdded publishes an items.added event.
func (bus *EventBus) PublishItemsAdded(p ItemsAddedPayload) {
	bus.send(EventItemsAdded, p)
}

// SubscribeItemsAdded registers a handler for items.added events.
func (bus *EventBus) SubscribeItemsAdded(fn func(ItemsAddedPayload)) {
	bus.subscribe(EventItemsAdded, func(p any) { fn(p.(ItemsAddedPayload)) })
}

// PublishActionConfirmed publishes an action.confirmed event.
func (bus *EventBus) PublishActionConfirmed(p ActionConfirmedPayload) {
	bus.send(EventActionConfirmed, p)
}

// SubscribeActionConfirmed registers a handler for action.confirmed events.
func (bus *EventBus) SubscribeActionConfirmed(fn func(ActionConfirmedPayload)) {
	bus.subscribe(EventActionConfirmed, func(p any) { fn(p.(ActionConfirmedPayload)) })
}

// PublishActionFailed publishes an action.failed event.
func (bus *EventBus) PublishActionFailed(p ActionFailedPayload) {
	bus.send(EventActionFailed, p)
}

// SubscribeActionFailed registers a handler for action.failed events.
func (bus *EventBus) SubscribeActionFailed(fn func(ActionFailedPayload)) {
	bus.subscribe(EventActionFailed, func(p any) { fn(p.(ActionFailedPayload)) })
}

// PublishFetchFailed publishes a fetch.failed event.
func (bus *EventBus) PublishFetchFailed(p FetchFailedPayload) {
	bus.send(EventFetchFailed, p)
}

// SubscribeFetchFailed registers a handler for fetch.failed events.
func (bus *EventBus) SubscribeFetchFailed(fn func(FetchFailedPayload)) {
	bus.subscribe(EventFetchFailed, func(p any) { fn(p.(FetchFailedPayload)) })
}

// PublishHelperHeartbeat publishes a helper.heartbeat event.
func (bus *EventBus) PublishHelperHeartbeat(p HelperHeartbeatPayload) {
	bus.send(EventHelperHeartbeat, p)
}

// SubscribeHelperHeartbeat registers a handler for helper.heartbeat events.
func (bus *EventBus) SubscribeHelperHeartbeat(fn func(HelperHeartbeatPayload)) {
	bus.subscribe(EventHelperHeartbeat, func(p any) { fn(p.(HelperHeartbeatPayload)) })
}

// PublishNotificationPublished publishes a notification.published event.
func (bus *EventBus) PublishNotificationPublished(p NotificationPublishedPayload) {
	bus.send(EventNotificationPublished, p)
}

// SubscribeNotificationPublished registers a handler for notification.published events.
func (bus *EventBus) SubscribeNotificationPublished(fn func(NotificationPublishedPayload)) {
	bus.subscribe(EventNotificationPublished, func(p any) { fn(p.(NotificationPublishedPayload)) })
}
