// Package topics implements the cross-context channel as JSON files in a
// shared directory, one file per topic, watched with fsnotify. File-based
// transport keeps the helper and foreground decoupled: either side may be
// absent and the other degrades gracefully.
package topics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/colonyops/triage/internal/core/messaging"
	"github.com/colonyops/triage/internal/core/queue"
)

// ErrNoPayload is returned when a topic has never been published.
var ErrNoPayload = errors.New("topic has no payload")

// Channel reads and writes topic files under a shared directory.
type Channel struct {
	dir string
}

var _ messaging.Channel = (*Channel)(nil)

// NewChannel creates the topics directory if needed and returns a channel
// over it.
func NewChannel(dir string) (*Channel, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create topics dir: %w", err)
	}
	return &Channel{dir: dir}, nil
}

// PublishHeartbeat writes the helper heartbeat topic.
func (c *Channel) PublishHeartbeat(_ context.Context, hb messaging.Heartbeat) error {
	return c.write(messaging.TopicHeartbeat, hb)
}

// PublishSnapshot writes one category's snapshot topic.
func (c *Channel) PublishSnapshot(_ context.Context, msg messaging.SnapshotMessage) error {
	return c.write(messaging.SnapshotTopic(msg.Category), msg)
}

// ReadHeartbeat returns the last published heartbeat.
// Returns ErrNoPayload if the helper has never reported.
func (c *Channel) ReadHeartbeat(_ context.Context) (messaging.Heartbeat, error) {
	var hb messaging.Heartbeat
	if err := c.read(messaging.TopicHeartbeat, &hb); err != nil {
		return messaging.Heartbeat{}, err
	}
	return hb, nil
}

// ReadSnapshot returns the last published snapshot for a category.
func (c *Channel) ReadSnapshot(_ context.Context, cat queue.Category) (messaging.SnapshotMessage, error) {
	var msg messaging.SnapshotMessage
	if err := c.read(messaging.SnapshotTopic(cat), &msg); err != nil {
		return messaging.SnapshotMessage{}, err
	}
	return msg, nil
}

// write marshals the payload and atomically replaces the topic file so a
// concurrent reader never observes a partial write.
func (c *Channel) write(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal topic %q: %w", topic, err)
	}

	final := c.path(topic)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write topic %q: %w", topic, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("publish topic %q: %w", topic, err)
	}
	return nil
}

func (c *Channel) read(topic string, dest any) error {
	data, err := os.ReadFile(c.path(topic))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read topic %q: %w", topic, ErrNoPayload)
	}
	if err != nil {
		return fmt.Errorf("read topic %q: %w", topic, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode topic %q: %w", topic, err)
	}
	return nil
}

func (c *Channel) path(topic string) string {
	return filepath.Join(c.dir, topic+".json")
}
