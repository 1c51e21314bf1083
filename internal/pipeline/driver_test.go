package pipeline_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rankgate/rankgate/internal/config"
	"github.com/rankgate/rankgate/internal/domain/event"
	"github.com/rankgate/rankgate/internal/logger"
	"github.com/rankgate/rankgate/internal/pipeline"
	"github.com/rankgate/rankgate/internal/testutil"
)

func seedPipeline(source *testutil.InMemoryIndexSource, n int) []event.Event {
	events := make([]event.Event, n)
	for i := 0; i < n; i++ {
		events[i] = event.Event{ID: fmt.Sprintf("evt-%05d", i), Title: "widget"}
	}
	source.Seed(events...)
	return events
}

func newDriver(source *testutil.InMemoryIndexSource, authorizer *testutil.InMemoryAuthorizer) *pipeline.Driver {
	cfg := &config.Configuration{
		Pipeline: config.PipelineConfig{
			Concurrency:  4,
			BatchSize:    20,
			BatchDelay:   time.Hour,
			DefaultLimit: 200,
		},
		Authz: config.AuthzConfig{Deadline: time.Second},
	}
	return pipeline.New(source, authorizer, cfg, logger.GetLogger(), nil)
}

func drainResult(t *testing.T, r *pipeline.Result) []event.Event {
	t.Helper()
	defer r.Close()
	var out []event.Event
	for {
		e, ok, err := r.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

// Scenario 1: fully authorized, below limit — every event comes back.
func TestDriver_FullyAuthorizedBelowLimit(t *testing.T) {
	source := testutil.NewInMemoryIndexSource(50)
	events := seedPipeline(source, 100)
	authorizer := testutil.NewInMemoryAuthorizer()
	for _, e := range events {
		authorizer.Allow("user-1", e.ID)
	}

	d := newDriver(source, authorizer)
	result, err := d.Search(context.Background(), &event.SearchRequest{Query: "widget", UserID: "user-1", Limit: 200})
	require.NoError(t, err)

	out := drainResult(t, result)
	require.Len(t, out, 100)
}

// Scenario 2: fully authorized, above limit — exactly the limit is emitted.
func TestDriver_FullyAuthorizedAboveLimit(t *testing.T) {
	source := testutil.NewInMemoryIndexSource(50)
	events := seedPipeline(source, 500)
	authorizer := testutil.NewInMemoryAuthorizer()
	for _, e := range events {
		authorizer.Allow("user-1", e.ID)
	}

	d := newDriver(source, authorizer)
	result, err := d.Search(context.Background(), &event.SearchRequest{Query: "widget", UserID: "user-1", Limit: 50})
	require.NoError(t, err)

	out := drainResult(t, result)
	require.Len(t, out, 50)
	for i, e := range out {
		require.Equal(t, events[i].ID, e.ID)
	}
}

// Scenario 3: sparse authorization exactly meeting the requested count.
func TestDriver_SparseAuthorizationMeetsCount(t *testing.T) {
	source := testutil.NewInMemoryIndexSource(50)
	events := seedPipeline(source, 300)
	authorizer := testutil.NewInMemoryAuthorizer()
	var want []string
	for i, e := range events {
		if i%6 == 0 { // 50 authorized
			authorizer.Allow("user-1", e.ID)
			want = append(want, e.ID)
		}
	}

	d := newDriver(source, authorizer)
	result, err := d.Search(context.Background(), &event.SearchRequest{Query: "widget", UserID: "user-1", Limit: 50})
	require.NoError(t, err)

	out := drainResult(t, result)
	require.Len(t, out, 50)
	require.Equal(t, want, idsOf(out))
}

// Scenario 4: very sparse authorization, limit exceeds what's authorized —
// must not under-report; every authorized event is returned.
func TestDriver_VerySparse_NoUnderReporting(t *testing.T) {
	source := testutil.NewInMemoryIndexSource(50)
	events := seedPipeline(source, 2000)
	authorizer := testutil.NewInMemoryAuthorizer()
	var want []string
	for i, e := range events {
		if i%500 == 0 { // only 4 authorized
			authorizer.Allow("user-1", e.ID)
			want = append(want, e.ID)
		}
	}

	d := newDriver(source, authorizer)
	result, err := d.Search(context.Background(), &event.SearchRequest{Query: "widget", UserID: "user-1", Limit: 200})
	require.NoError(t, err)

	out := drainResult(t, result)
	require.Equal(t, want, idsOf(out))
}

// Scenario 5: zero authorized terminates cleanly with no events.
func TestDriver_ZeroAuthorized(t *testing.T) {
	source := testutil.NewInMemoryIndexSource(50)
	seedPipeline(source, 300)
	authorizer := testutil.NewInMemoryAuthorizer()

	d := newDriver(source, authorizer)
	result, err := d.Search(context.Background(), &event.SearchRequest{Query: "widget", UserID: "user-1", Limit: 200})
	require.NoError(t, err)

	out := drainResult(t, result)
	require.Empty(t, out)
}

// Scenario 6: query-less fast path makes zero batch-check calls.
func TestDriver_QuerylessFastPath(t *testing.T) {
	source := testutil.NewInMemoryIndexSource(50)
	events := seedPipeline(source, 100)
	authorizer := testutil.NewInMemoryAuthorizer()
	for i := 0; i < 10; i++ {
		authorizer.Allow("user-1", events[i].ID)
	}

	d := newDriver(source, authorizer)
	result, err := d.Search(context.Background(), &event.SearchRequest{Query: "", UserID: "user-1", Limit: 200})
	require.NoError(t, err)

	out := drainResult(t, result)
	require.Len(t, out, 10)
	require.Equal(t, 0, authorizer.BatchCheckCalls)
}

// A blank user id is rejected before any index or authorization work begins.
func TestDriver_RejectsBlankUserID(t *testing.T) {
	source := testutil.NewInMemoryIndexSource(50)
	authorizer := testutil.NewInMemoryAuthorizer()

	d := newDriver(source, authorizer)
	_, err := d.Search(context.Background(), &event.SearchRequest{Query: "widget", UserID: ""})
	require.Error(t, err)
}

func idsOf(events []event.Event) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}
