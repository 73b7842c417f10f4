package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/colonyops/triage/internal/core/eventbus"
	"github.com/colonyops/triage/internal/core/queue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runBus(t *testing.T, bus *eventbus.EventBus) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bus.Run(ctx)
}

func TestEventBus_TypedRoundTrip(t *testing.T) {
	bus := eventbus.New(16)
	runBus(t, bus)

	got := make(chan eventbus.ItemsAddedPayload, 1)
	bus.SubscribeItemsAdded(func(p eventbus.ItemsAddedPayload) { got <- p })

	bus.PublishItemsAdded(eventbus.ItemsAddedPayload{
		IDs:        []queue.ItemID{7, 9},
		ByCategory: map[queue.Category]int{queue.CategoryOrder: 2},
	})

	select {
	case p := <-got:
		assert.Equal(t, []queue.ItemID{7, 9}, p.IDs)
		assert.Equal(t, 2, p.ByCategory[queue.CategoryOrder])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for items.added")
	}
}

func TestEventBus_DropWhenFull(t *testing.T) {
	bus := eventbus.New(1)
	// Not running: the buffer never drains.

	dropped := make(chan eventbus.Event, 1)
	bus.OnDrop(func(e eventbus.Event, _ any) { dropped <- e })

	bus.PublishItemsAdded(eventbus.ItemsAddedPayload{})
	bus.PublishItemsAdded(eventbus.ItemsAddedPayload{})

	select {
	case e := <-dropped:
		assert.Equal(t, eventbus.EventItemsAdded, e)
	default:
		t.Fatal("expected a dropped event")
	}
}

func TestEventBus_SubscriberPanicIsContained(t *testing.T) {
	bus := eventbus.New(16)
	eventbus.RegisterDebugLogger(bus, zerolog.Nop())
	runBus(t, bus)

	panicked := make(chan any, 1)
	bus.OnPanic(func(_ eventbus.Event, _ any, recovered any) { panicked <- recovered })

	bus.SubscribeActionFailed(func(eventbus.ActionFailedPayload) { panic("boom") })

	after := make(chan struct{}, 1)
	bus.SubscribeActionFailed(func(eventbus.ActionFailedPayload) { after <- struct{}{} })

	bus.PublishActionFailed(eventbus.ActionFailedPayload{ID: 1, Kind: queue.ActionApprove, Reason: "x"})

	select {
	case r := <-panicked:
		require.Equal(t, "boom", r)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for panic hook")
	}

	// Later subscribers still run after a panic.
	select {
	case <-after:
	case <-time.After(time.Second):
		t.Fatal("second subscriber never ran")
	}
}
