// Package batcher implements the Batcher component: it turns the pull
// stream exposed by the Index Source into a pull stream of fixed-size,
// order-preserving Batches, triggered by whichever of size or delay fires
// first.
package batcher

import (
	"context"
	"time"

	"github.com/rankgate/rankgate/internal/domain/event"
	ierr "github.com/rankgate/rankgate/internal/errors"
	"github.com/rankgate/rankgate/internal/indexsource"
	"github.com/rankgate/rankgate/internal/logger"
)

// Batcher pulls pages from an Index Source handle and assembles them into
// Batches. It is not safe for concurrent use: one Batcher serves one
// Ordered Concurrent Filter, matching the Index Source handle's own
// per-request lifetime.
type Batcher struct {
	source   indexsource.Source
	handle   *indexsource.Handle
	maxSize  int
	maxDelay time.Duration
	logger   *logger.Logger

	buf          []event.Event
	firstEventAt time.Time
	exhausted    bool
	nextIndex    int
}

// New constructs a Batcher over an already-opened Index Source handle.
func New(source indexsource.Source, handle *indexsource.Handle, maxSize int, maxDelay time.Duration, logger *logger.Logger) *Batcher {
	if maxSize <= 0 {
		maxSize = 20
	}
	return &Batcher{source: source, handle: handle, maxSize: maxSize, maxDelay: maxDelay, logger: logger}
}

// Next pulls the next Batch. It returns more=false once the Index Source
// is exhausted and the internal buffer has been fully drained — the
// "final, possibly smaller, batch" is emitted before that happens, not
// dropped.
func (b *Batcher) Next(ctx context.Context) (event.Batch, bool, error) {
	for {
		if len(b.buf) >= b.maxSize {
			return b.emit(b.buf[:b.maxSize]), true, nil
		}

		if b.exhausted {
			if len(b.buf) == 0 {
				return event.Batch{}, false, nil
			}
			return b.emit(b.buf), true, nil
		}

		if len(b.buf) > 0 && !b.firstEventAt.IsZero() && time.Since(b.firstEventAt) >= b.maxDelay {
			return b.emit(b.buf), true, nil
		}

		page, more, err := b.source.NextPage(ctx, b.handle)
		if err != nil {
			// An index-level failure mid-stream is treated as exhaustion
			// at the failure point, per spec §7: anything already
			// buffered still drains as one final batch, and batches
			// already submitted to the Ordered Concurrent Filter drain
			// normally rather than the pipeline aborting on this error.
			b.exhausted = true
			b.logger.Warnf("index source failed mid-pagination, treating as exhausted: %v", ierr.Wrap(err, ierr.ErrCodeIndexTransient, "index source failed"))
			if len(b.buf) > 0 {
				return b.emit(b.buf), true, nil
			}
			return event.Batch{}, false, nil
		}

		if len(page) > 0 {
			if len(b.buf) == 0 {
				b.firstEventAt = time.Now()
			}
			b.buf = append(b.buf, page...)
		}
		if !more {
			b.exhausted = true
		}
	}
}

func (b *Batcher) emit(events []event.Event) event.Batch {
	out := make([]event.Event, len(events))
	copy(out, events)

	batch := event.Batch{Index: b.nextIndex, Events: out}
	b.nextIndex++

	remaining := make([]event.Event, len(b.buf)-len(events))
	copy(remaining, b.buf[len(events):])
	b.buf = remaining
	b.firstEventAt = time.Time{}
	if len(b.buf) > 0 {
		b.firstEventAt = time.Now()
	}

	return batch
}
