// Package indexsource implements the Index Source component: a stateful,
// restartable cursor over the full-text index that yields ranked pages of
// candidate events.
package indexsource

import (
	"context"

	"github.com/rankgate/rankgate/internal/domain/event"
)

// Cursor is the opaque continuation state threaded through a handle's
// next_page calls. It generalizes the composite (timestamp, id) key the
// backing ClickHouse query orders by into a single opaque token so callers
// never depend on the concrete cursor shape.
type Cursor struct {
	Token string
}

// Handle is a single search's pagination state. It is not safe for
// concurrent use; one handle serves one request.
type Handle struct {
	Query           string
	Mode            event.QueryMode
	PropertyFilters map[string][]string
	cursor          *Cursor
	closed          bool
}

// Cursor returns the handle's current continuation token, or nil before
// the first page has been pulled.
func (h *Handle) Cursor() *Cursor { return h.cursor }

// SetCursor updates the handle's continuation token. Index Source
// implementations call this after each successful page; it is exported so
// alternate implementations (including test fakes) outside this package
// can drive the same Handle type.
func (h *Handle) SetCursor(c *Cursor) { h.cursor = c }

// Closed reports whether the handle has been exhausted or explicitly
// closed.
func (h *Handle) Closed() bool { return h.closed }

// SetClosed marks the handle exhausted/closed.
func (h *Handle) SetClosed(closed bool) { h.closed = closed }

// Source is the Index Source contract. Implementations must
// never yield an event twice within one handle's lifetime and must signal
// exhaustion by returning more=false; the page returned with it may be the
// final, non-empty one, and every later call returns an empty page with
// more=false.
type Source interface {
	// Open returns a fresh handle for the given query and mode.
	Open(ctx context.Context, query string, mode event.QueryMode, propertyFilters map[string][]string) (*Handle, error)

	// NextPage yields up to the configured page size of events in
	// index-ranked order. more is false once the handle is exhausted, at
	// which point the handle is considered closed.
	NextPage(ctx context.Context, h *Handle) (events []event.Event, more bool, err error)

	// Close releases pagination resources. Idempotent.
	Close(h *Handle) error

	// FetchByIDs performs a single round-trip bulk lookup, used by the
	// query-less fast path. The returned events are total (every
	// findable id is represented) but not ordered for the caller.
	FetchByIDs(ctx context.Context, ids []string) ([]event.Event, error)
}
