package topics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/colonyops/triage/internal/core/logging"
	"github.com/colonyops/triage/internal/core/messaging"
)

const (
	debounceDelay   = 50 * time.Millisecond
	eventBufferSize = 100
)

// Watcher watches topic files with fsnotify, debouncing rapid rewrites.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher

	mu          sync.Mutex
	subscribers map[string][]chan<- messaging.TopicEvent // pattern -> channels
	debounce    map[string]*time.Timer                   // topic -> debounce timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ messaging.Watcher = (*Watcher)(nil)

// NewWatcher creates a watcher over the topics directory, creating the
// directory if it does not exist.
func NewWatcher(dir string) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		dir:         dir,
		watcher:     fsw,
		subscribers: make(map[string][]chan<- messaging.TopicEvent),
		debounce:    make(map[string]*time.Timer),
		ctx:         ctx,
		cancel:      cancel,
	}

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Watch returns a channel receiving events for topics matching the pattern.
func (w *Watcher) Watch(ctx context.Context, pattern string) (<-chan messaging.TopicEvent, error) {
	ch := make(chan messaging.TopicEvent, eventBufferSize)

	w.mu.Lock()
	w.subscribers[pattern] = append(w.subscribers[pattern], ch)
	w.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			w.unsubscribe(pattern, ch)
		case <-w.ctx.Done():
			// Watcher is closing; Close() closes the channel.
		}
	}()

	return ch, nil
}

// Close stops watching and closes all subscriber channels.
func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	for _, timer := range w.debounce {
		timer.Stop()
	}
	for _, subs := range w.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	w.subscribers = make(map[string][]chan<- messaging.TopicEvent)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) unsubscribe(pattern string, ch chan<- messaging.TopicEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	subs := w.subscribers[pattern]
	for i, sub := range subs {
		if sub == ch {
			w.subscribers[pattern] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(w.subscribers[pattern]) == 0 {
		delete(w.subscribers, pattern)
	}
}

func (w *Watcher) run() {
	defer w.wg.Done()

	logger := logging.Component("topics")
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Debug().Err(err).Msg("fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	filename := filepath.Base(event.Name)

	// Skip temp files from atomic writes and anything that is not a topic.
	if !strings.HasSuffix(filename, ".json") || strings.HasSuffix(filename, ".tmp") {
		return
	}

	topic := strings.TrimSuffix(filename, ".json")

	w.mu.Lock()
	if timer, exists := w.debounce[topic]; exists {
		timer.Stop()
	}
	w.debounce[topic] = time.AfterFunc(debounceDelay, func() {
		w.notifySubscribers(topic)
	})
	w.mu.Unlock()
}

func (w *Watcher) notifySubscribers(topic string) {
	event := messaging.TopicEvent{Topic: topic, Timestamp: time.Now()}

	w.mu.Lock()
	defer w.mu.Unlock()

	for pattern, subs := range w.subscribers {
		if !matchesPattern(pattern, topic) {
			continue
		}
		for _, ch := range subs {
			select {
			case ch <- event:
			default:
				// Channel full; drop rather than block the watcher.
			}
		}
	}

	delete(w.debounce, topic)
}

func matchesPattern(pattern, topic string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(topic, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == topic
}
