// Package pipeline implements the Pipeline Driver: it composes the Index
// Source, Batcher and Ordered Concurrent Filter, applies the global result
// ceiling, and handles the query-less fast path.
package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/rankgate/rankgate/internal/authz"
	"github.com/rankgate/rankgate/internal/batcher"
	"github.com/rankgate/rankgate/internal/config"
	"github.com/rankgate/rankgate/internal/domain/event"
	ierr "github.com/rankgate/rankgate/internal/errors"
	"github.com/rankgate/rankgate/internal/indexsource"
	"github.com/rankgate/rankgate/internal/logger"
	"github.com/rankgate/rankgate/internal/observability"
	"github.com/rankgate/rankgate/internal/orderedfilter"
	"github.com/rankgate/rankgate/internal/types"
)

// Driver is the Pipeline Driver. One Driver instance is shared across
// requests; Search constructs the per-request pipeline fresh each call, the
// way the Authorizer Client's process-wide pool is shared while the Index
// Source handle and Ordered Concurrent Filter are per-request.
type Driver struct {
	source   indexsource.Source
	authz    authz.Client
	cfg      config.PipelineConfig
	authzCfg config.AuthzConfig
	logger   *logger.Logger
	metrics  observability.Metrics
}

// New constructs a Driver. metrics may be nil, in which case observations
// are discarded (NoopMetrics).
func New(source indexsource.Source, authzClient authz.Client, cfg *config.Configuration, logger *logger.Logger, metrics observability.Metrics) *Driver {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Driver{source: source, authz: authzClient, cfg: cfg.Pipeline, authzCfg: cfg.Authz, logger: logger, metrics: metrics}
}

// Result is a lazy, cancellable sequence of authorized Events: call Next
// until ok is false. Close must be called once consumption ends (normally,
// on error, or on early abandonment) to release the Index Source handle.
type Result struct {
	queryless *querylessSequence
	filtered  *orderedfilter.Filter
	handle    *indexsource.Handle
	source    indexsource.Source

	limit   int
	emitted int
	err     error
	metrics observability.Metrics
}

// querylessSequence is the fast-path sequence: the authorized id set has
// already been fetched in bulk, so Next just walks it.
type querylessSequence struct {
	events []event.Event
	pos    int
}

// Search is the pipeline's single entry point. It validates
// the request, normalizes the query and limit, and returns a lazy sequence
// of authorized events in index-ranked order.
func (d *Driver) Search(ctx context.Context, req *event.SearchRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if types.GetRequestID(ctx) == "" {
		ctx = types.WithRequestID(ctx, uuid.NewString())
	}
	reqLogger := d.logger.WithContext(ctx)

	limit := req.Limit
	if limit <= 0 {
		limit = d.cfg.DefaultLimit
	}
	if limit <= 0 {
		limit = 200
	}

	d.metrics.IncCounter("pipeline_search_started", map[string]string{"queryless": boolTag(req.IsQueryless())})

	if req.IsQueryless() {
		return d.searchQueryless(ctx, req, limit, reqLogger)
	}
	return d.searchFiltered(ctx, req, limit, reqLogger)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// searchQueryless implements the query-less fast path: one full
// enumeration, one bulk id lookup, no per-batch authorization calls since
// the enumeration result is already authoritative.
func (d *Driver) searchQueryless(ctx context.Context, req *event.SearchRequest, limit int, reqLogger *logger.Logger) (*Result, error) {
	ids, err := d.authz.EnumerateForUser(ctx, req.UserID, d.authzCfg.Deadline)
	if err != nil {
		reqLogger.Warnf("enumerate-for-user failed for queryless search: %v", err)
		return &Result{limit: limit, queryless: &querylessSequence{}, metrics: d.metrics}, nil
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	events, err := d.source.FetchByIDs(ctx, ids)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.ErrCodeIndexTransient, "bulk fetch by ids failed")
	}

	return &Result{limit: limit, queryless: &querylessSequence{events: events}, metrics: d.metrics}, nil
}

// searchFiltered is the general path: open the Index Source, wrap it in a
// Batcher, run it through the Ordered Concurrent Filter.
func (d *Driver) searchFiltered(ctx context.Context, req *event.SearchRequest, limit int, reqLogger *logger.Logger) (*Result, error) {
	query, mode := req.NormalizedQuery()

	handle, err := d.source.Open(ctx, query, mode, req.PropertyFilters)
	if err != nil {
		return nil, err
	}

	b := batcher.New(d.source, handle, d.cfg.BatchSize, d.cfg.BatchDelay, reqLogger)
	filter := orderedfilter.New(b, d.authz, req.UserID, d.authzCfg.Deadline, d.cfg.Concurrency, reqLogger, d.metrics)

	return &Result{filtered: filter, handle: handle, source: d.source, limit: limit, metrics: d.metrics}, nil
}

// Next yields the next authorized event in order. ok is false once the
// limit has been reached or the pipeline has otherwise terminated.
func (r *Result) Next(ctx context.Context) (event.Event, bool, error) {
	if r.err != nil {
		return event.Event{}, false, nil
	}
	if r.emitted >= r.limit {
		return event.Event{}, false, nil
	}

	if r.queryless != nil {
		if r.queryless.pos >= len(r.queryless.events) {
			return event.Event{}, false, nil
		}
		e := r.queryless.events[r.queryless.pos]
		r.queryless.pos++
		r.emitted++
		return e, true, nil
	}

	e, ok, err := r.filtered.Next(ctx)
	if err != nil {
		r.err = err
		return event.Event{}, false, nil
	}
	if !ok {
		return event.Event{}, false, nil
	}

	r.emitted++
	if r.emitted >= r.limit {
		// Limit reached: signal cancellation upward before the caller
		// even asks for the next value, so in-flight workers beyond this
		// point are abandoned rather than wasted.
		r.metrics.IncCounter("pipeline_limit_reached", nil)
		r.filtered.Cancel()
	}
	return e, true, nil
}

// Close releases the Index Source handle. Idempotent; safe to call
// whether the sequence ran to completion, hit its limit, or was abandoned.
func (r *Result) Close() error {
	if r.filtered != nil {
		r.filtered.Cancel()
	}
	if r.handle != nil && r.source != nil {
		return r.source.Close(r.handle)
	}
	return nil
}
