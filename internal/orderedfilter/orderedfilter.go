// Package orderedfilter implements the Ordered Concurrent Filter: the
// "ordered window" algorithm that runs up to K authorization calls in
// flight while emitting their filtered output in strict submission order,
// continuing past empty batches — the heart of the core.
package orderedfilter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"

	"github.com/rankgate/rankgate/internal/authz"
	"github.com/rankgate/rankgate/internal/batcher"
	"github.com/rankgate/rankgate/internal/domain/event"
	"github.com/rankgate/rankgate/internal/logger"
	"github.com/rankgate/rankgate/internal/observability"
)

// ticket is one submitted batch's reservation in the ordered window: a
// submission index and a single-use slot the worker publishes into.
type ticket struct {
	index  int
	events []event.Event
	done   chan struct{}
}

// Filter is the Ordered Concurrent Filter. One Filter serves one search
// request; it is not safe for concurrent use by multiple goroutines pulling
// Next simultaneously, matching the Batcher and Index Source handle it
// wraps.
type Filter struct {
	batcher  *batcher.Batcher
	client   authz.Client
	userID   string
	deadline time.Duration
	k        int
	logger   *logger.Logger
	pool     *pool.Pool
	metrics  observability.Metrics

	queue        []*ticket
	headPending  []event.Event
	upstreamDone bool
	cancelled    atomic.Bool
	terminate    sync.Once
}

// New constructs a Filter over an already-constructed Batcher. metrics may
// be nil, in which case observations are discarded.
func New(b *batcher.Batcher, client authz.Client, userID string, deadline time.Duration, concurrency int, logger *logger.Logger, metrics observability.Metrics) *Filter {
	if concurrency <= 0 {
		concurrency = 4
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Filter{
		batcher:  b,
		client:   client,
		userID:   userID,
		deadline: deadline,
		k:        concurrency,
		logger:   logger,
		pool:     pool.New().WithMaxGoroutines(concurrency),
		metrics:  metrics,
	}
}

// Next yields the next surviving event in submission order. ok is false
// once the pipeline has terminated — either because the upstream is
// exhausted and the window has fully drained, or because Cancel was
// called. Next itself never reaches the global limit; the caller (the
// Pipeline Driver) owns that and calls Cancel once it's satisfied.
func (f *Filter) Next(ctx context.Context) (event.Event, bool, error) {
	for {
		if len(f.headPending) > 0 {
			e := f.headPending[0]
			f.headPending = f.headPending[1:]
			return e, true, nil
		}

		if f.cancelled.Load() {
			f.join()
			return event.Event{}, false, nil
		}

		if err := f.topUp(ctx); err != nil {
			f.join()
			return event.Event{}, false, err
		}

		if len(f.queue) == 0 {
			f.join()
			return event.Event{}, false, nil
		}

		head := f.queue[0]
		select {
		case <-head.done:
		case <-ctx.Done():
			f.Cancel()
			return event.Event{}, false, nil
		}
		f.queue = f.queue[1:]

		if len(head.events) == 0 {
			// Empty-batch continuation: the head contributed nothing,
			// but that does not end the stream — loop back and top up.
			f.metrics.IncCounter("orderedfilter_empty_batch", map[string]string{"user_id": f.userID})
			continue
		}
		f.headPending = head.events
	}
}

// topUp keeps the ticket queue filled to K while the upstream has more to
// give, dispatching each newly admitted batch to a worker.
func (f *Filter) topUp(ctx context.Context) error {
	for len(f.queue) < f.k && !f.upstreamDone {
		batch, more, err := f.batcher.Next(ctx)
		if err != nil {
			return err
		}
		if len(batch.Events) == 0 && !more {
			f.upstreamDone = true
			break
		}
		if !more {
			f.upstreamDone = true
		}

		t := &ticket{index: batch.Index, done: make(chan struct{})}
		f.queue = append(f.queue, t)
		f.dispatch(ctx, batch, t)
	}
	return nil
}

// dispatch launches one authorization call plus its in-place filter on the
// pool's bounded goroutines; a panic inside the worker is recovered inside
// the worker itself and surfaces as this ticket staying empty, never
// crashing the request.
func (f *Filter) dispatch(ctx context.Context, batch event.Batch, t *ticket) {
	f.pool.Go(func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				f.logger.Warnf("authorization worker panicked for batch %d, treating as empty: %v", batch.Index, r)
				t.events = nil
			}
		}()

		if f.cancelled.Load() {
			return
		}

		authorized, err := f.client.CheckBatch(ctx, batch.IDs(), f.userID, f.deadline)
		if err != nil {
			f.logger.Warnf("authorization call failed for batch %d, treating as empty: %v", batch.Index, err)
			f.metrics.IncCounter("orderedfilter_auth_call_failed", map[string]string{"user_id": f.userID})
			return
		}

		t.events = lo.Filter(batch.Events, func(e event.Event, _ int) bool {
			_, ok := authorized[e.ID]
			return ok
		})
		f.metrics.ObserveHistogram("orderedfilter_batch_survivors", float64(len(t.events)), map[string]string{"user_id": f.userID})
	})
}

// Cancel abandons in-flight work: stops topping up, discards remaining
// tickets' results, and causes subsequent Next calls to return
// immediately. It blocks until the pool's already-dispatched workers have
// returned — at most one authorization round-trip's worth of latency, per
// spec §5 — so the pool's goroutines are always joined rather than leaked
// before Cancel returns.
func (f *Filter) Cancel() {
	f.cancelled.Store(true)
	f.queue = nil
	f.headPending = nil
	f.join()
}

// join waits for every dispatched worker to finish, exactly once per
// Filter. Called on every termination path — normal exhaustion, Cancel,
// and driver-level error — so the bounded pool's goroutines are always
// reclaimed before the request's resources are considered released.
func (f *Filter) join() {
	f.terminate.Do(f.pool.Wait)
}
