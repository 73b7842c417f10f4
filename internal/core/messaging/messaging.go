// Package messaging defines the best-effort channel between the foreground
// client and the background helper process. The helper publishes per-category
// snapshot messages and a heartbeat; the foreground watches for changes.
// Absence of a recent heartbeat means the helper is not live.
package messaging

import (
	"context"
	"time"

	"github.com/colonyops/triage/internal/core/queue"
)

// Topic names. Snapshot topics are suffixed with the category name.
const (
	TopicHeartbeat      = "heartbeat"
	TopicSnapshotPrefix = "snapshot."
)

// SnapshotTopic returns the topic carrying snapshots for a category.
func SnapshotTopic(cat queue.Category) string {
	return TopicSnapshotPrefix + string(cat)
}

// Heartbeat is published by the helper at every poll cycle.
type Heartbeat struct {
	At         time.Time        `json:"at"`
	PID        int              `json:"pid"`
	Categories []queue.Category `json:"categories"`
}

// SnapshotMessage carries one category's fetched items from the helper.
type SnapshotMessage struct {
	Category    queue.Category      `json:"category"`
	Items       []queue.PendingItem `json:"items"`
	PublishedAt time.Time           `json:"published_at"`
}

// TopicEvent signals that a topic's payload changed.
type TopicEvent struct {
	Topic     string
	Timestamp time.Time
}

// Channel publishes and reads topic payloads.
type Channel interface {
	PublishHeartbeat(ctx context.Context, hb Heartbeat) error
	PublishSnapshot(ctx context.Context, msg SnapshotMessage) error
	ReadHeartbeat(ctx context.Context) (Heartbeat, error)
	ReadSnapshot(ctx context.Context, cat queue.Category) (SnapshotMessage, error)
}

// Watcher watches for changes to topics.
type Watcher interface {
	// Watch returns a channel that receives events when topics matching
	// the pattern change. Pattern supports:
	//   - "*" or "" matches all topics
	//   - "prefix.*" matches topics starting with "prefix."
	//   - exact topic name for a single topic
	// The returned channel is closed when the context is cancelled or
	// Close is called.
	Watch(ctx context.Context, pattern string) (<-chan TopicEvent, error)

	// Close stops all watching and releases resources.
	Close() error
}
