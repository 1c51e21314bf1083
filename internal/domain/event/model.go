// Package event holds the data model shared by every stage of the search
// pipeline core: the Index Source, Batcher, Ordered Concurrent Filter and
// Pipeline Driver all trade in these types.
package event

import (
	"strings"
	"time"

	"github.com/samber/lo"

	ierr "github.com/rankgate/rankgate/internal/errors"
	"github.com/rankgate/rankgate/internal/validator"
)

// Event is the trimmed, search-oriented projection of the documents the
// Index Source returns. It carries an opaque 64-bit id (encoded as a
// decimal string the way other id types in this codebase are opaque
// strings, not raw integers) plus the fields the client renders.
type Event struct {
	ID          string    `json:"id" validate:"required"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

// QueryMode selects how the Index Source interprets a raw query string.
type QueryMode string

const (
	QueryModeFreeText    QueryMode = "free_text"
	QueryModeExactPhrase QueryMode = "exact_phrase"
)

// SearchRequest is a caller's search intent, constructed once per request
// and consumed by the Pipeline Driver.
type SearchRequest struct {
	// Query is the raw, untrimmed query string. It may be empty (the
	// query-less fast path) or wrapped in double quotes to request an
	// exact-phrase search.
	Query string

	// UserID identifies the caller for authorization purposes. Required.
	UserID string `validate:"required"`

	// Limit is the result ceiling. Non-positive values are normalized to
	// the configured default by the driver, not by this type.
	Limit int

	// PropertyFilters narrows the index-side search by structured event
	// properties, applied before ranking; it does not change ordering,
	// batching, or authorization semantics.
	PropertyFilters map[string][]string
}

// Validate checks the request is well-formed enough to start the pipeline.
// A blank user id is a RequestInvalid error surfaced to the caller before
// any index or authorization work begins.
func (r *SearchRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ierr.NewError("user id is required").
			WithHint("supply a non-empty user id").
			Mark(ierr.ErrRequestInvalid)
	}
	return validator.ValidateRequest(r)
}

// NormalizedQuery trims the request's query and reports the mode the Index
// Source should open with. A trimmed query that starts and ends with a
// double quote and is longer than just the two quotes is exact-phrase;
// everything else, including the empty query, is free-text.
func (r *SearchRequest) NormalizedQuery() (query string, mode QueryMode) {
	trimmed := strings.TrimSpace(r.Query)
	if len(trimmed) > 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		return trimmed[1 : len(trimmed)-1], QueryModeExactPhrase
	}
	return trimmed, QueryModeFreeText
}

// IsQueryless reports whether this request should take the query-less fast
// path: enumerate the user's full allowed set, then bulk fetch by id.
func (r *SearchRequest) IsQueryless() bool {
	return strings.TrimSpace(r.Query) == ""
}

// Batch is a contiguous, ordered slice of Events dispatched as a single
// authorization call. Index is the Batcher's monotonically increasing
// submission index, carried downstream so the Ordered Concurrent Filter can
// re-serialize out-of-order worker completions.
type Batch struct {
	Index  int
	Events []Event
}

// IDs returns the event ids in this batch, in the batch's own order.
func (b Batch) IDs() []string {
	return lo.Map(b.Events, func(e Event, _ int) string {
		return e.ID
	})
}
