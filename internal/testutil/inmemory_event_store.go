package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rankgate/rankgate/internal/domain/event"
	ierr "github.com/rankgate/rankgate/internal/errors"
	"github.com/rankgate/rankgate/internal/indexsource"
)

// InMemoryIndexSource is a deterministic, in-process stand-in for the
// ClickHouse-backed Index Source, used by the batcher, orderedfilter and
// pipeline tests. It ranks events by insertion order rather
// than any real scoring function, the way InMemoryEventStore ranked by
// (timestamp, id) as a stand-in for the real repository's ordering.
type InMemoryIndexSource struct {
	mu       sync.RWMutex
	events   []event.Event
	pageSize int

	// FailAfterPages, if > 0, lets that many page fetches succeed and
	// makes every later fetch return an IndexTransient error, for testing
	// the "failure mid-pagination still drains buffered events" behavior.
	FailAfterPages int
	pagesServed    int
}

func NewInMemoryIndexSource(pageSize int) *InMemoryIndexSource {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &InMemoryIndexSource{pageSize: pageSize}
}

// Seed appends events in the order the Index Source should rank them.
func (s *InMemoryIndexSource) Seed(events ...event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *InMemoryIndexSource) Open(ctx context.Context, query string, mode event.QueryMode, propertyFilters map[string][]string) (*indexsource.Handle, error) {
	if mode == event.QueryModeExactPhrase && query == "" {
		return nil, ierr.NewError("empty exact-phrase query").Mark(ierr.ErrIndexMalformed)
	}
	return &indexsource.Handle{Query: query, Mode: mode, PropertyFilters: propertyFilters}, nil
}

func (s *InMemoryIndexSource) NextPage(ctx context.Context, h *indexsource.Handle) ([]event.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.Closed() {
		return nil, false, nil
	}

	s.pagesServed++
	if s.FailAfterPages > 0 && s.pagesServed > s.FailAfterPages {
		return nil, false, ierr.NewError("simulated index failure").Mark(ierr.ErrIndexTransient)
	}

	offset := offsetFromCursor(h)
	end := offset + s.pageSize
	if end > len(s.events) {
		end = len(s.events)
	}
	if offset >= len(s.events) {
		h.SetClosed(true)
		return nil, false, nil
	}

	page := append([]event.Event(nil), s.events[offset:end]...)
	more := end < len(s.events)
	if more {
		h.SetCursor(&indexsource.Cursor{Token: fmt.Sprintf("%d", end)})
	} else {
		h.SetClosed(true)
	}
	return page, more, nil
}

func (s *InMemoryIndexSource) Close(h *indexsource.Handle) error {
	h.SetClosed(true)
	return nil
}

func (s *InMemoryIndexSource) FetchByIDs(ctx context.Context, ids []string) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	var out []event.Event
	for _, e := range s.events {
		if _, ok := want[e.ID]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func offsetFromCursor(h *indexsource.Handle) int {
	c := h.Cursor()
	if c == nil || c.Token == "" {
		return 0
	}
	var offset int
	_, _ = fmt.Sscanf(c.Token, "%d", &offset)
	return offset
}

var _ indexsource.Source = (*InMemoryIndexSource)(nil)
