package stores

import (
	"context"
	"testing"
	"time"

	"github.com/colonyops/triage/internal/core/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyStore_SaveAndList(t *testing.T) {
	ctx := context.Background()
	store := NewNotifyStore(newTestDB(t))

	id, err := store.Save(ctx, notify.Notification{
		Level:     notify.LevelInfo,
		Message:   "3 new pending items",
		CreatedAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = store.Save(ctx, notify.Notification{
		Level:     notify.LevelError,
		Message:   "approve failed",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// Newest first.
	assert.Equal(t, "approve failed", list[0].Message)
	assert.Equal(t, notify.LevelError, list[0].Level)
}

func TestNotifyStore_CountAndClear(t *testing.T) {
	ctx := context.Background()
	store := NewNotifyStore(newTestDB(t))

	_, err := store.Save(ctx, notify.Notification{Level: notify.LevelInfo, Message: "m", CreatedAt: time.Now()})
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	require.NoError(t, store.Clear(ctx))

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
