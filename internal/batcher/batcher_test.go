package batcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rankgate/rankgate/internal/batcher"
	"github.com/rankgate/rankgate/internal/domain/event"
	"github.com/rankgate/rankgate/internal/logger"
	"github.com/rankgate/rankgate/internal/testutil"
)

func seedEvents(n int) []event.Event {
	events := make([]event.Event, n)
	for i := 0; i < n; i++ {
		events[i] = event.Event{ID: string(rune('a' + i%26))}
	}
	return events
}

func TestBatcher_SizeTrigger(t *testing.T) {
	source := testutil.NewInMemoryIndexSource(100)
	source.Seed(seedEvents(45)...)
	handle, err := source.Open(context.Background(), "", event.QueryModeFreeText, nil)
	require.NoError(t, err)

	b := batcher.New(source, handle, 20, time.Hour, logger.GetLogger())

	batch0, more, err := b.Next(context.Background())
	require.NoError(t, err)
	require.True(t, more)
	require.Equal(t, 0, batch0.Index)
	require.Len(t, batch0.Events, 20)

	batch1, more, err := b.Next(context.Background())
	require.NoError(t, err)
	require.True(t, more)
	require.Equal(t, 1, batch1.Index)
	require.Len(t, batch1.Events, 20)

	// Final, smaller batch on exhaustion.
	batch2, more, err := b.Next(context.Background())
	require.NoError(t, err)
	require.True(t, more)
	require.Equal(t, 2, batch2.Index)
	require.Len(t, batch2.Events, 5)

	_, more, err = b.Next(context.Background())
	require.NoError(t, err)
	require.False(t, more)
}

func TestBatcher_EmptySource_NoBatches(t *testing.T) {
	source := testutil.NewInMemoryIndexSource(20)
	handle, err := source.Open(context.Background(), "", event.QueryModeFreeText, nil)
	require.NoError(t, err)

	b := batcher.New(source, handle, 20, time.Hour, logger.GetLogger())
	_, more, err := b.Next(context.Background())
	require.NoError(t, err)
	require.False(t, more)
}

func TestBatcher_ExactMultiple_NoTrailingEmptyBatch(t *testing.T) {
	source := testutil.NewInMemoryIndexSource(20)
	source.Seed(seedEvents(20)...)
	handle, err := source.Open(context.Background(), "", event.QueryModeFreeText, nil)
	require.NoError(t, err)

	b := batcher.New(source, handle, 20, time.Hour, logger.GetLogger())

	batch, more, err := b.Next(context.Background())
	require.NoError(t, err)
	require.True(t, more)
	require.Len(t, batch.Events, 20)

	_, more, err = b.Next(context.Background())
	require.NoError(t, err)
	require.False(t, more)
}
