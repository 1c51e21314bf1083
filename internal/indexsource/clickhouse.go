package indexsource

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/rankgate/rankgate/internal/clickhouse"
	"github.com/rankgate/rankgate/internal/config"
	"github.com/rankgate/rankgate/internal/domain/event"
	ierr "github.com/rankgate/rankgate/internal/errors"
	"github.com/rankgate/rankgate/internal/logger"
)

// ClickHouseSource is the production Index Source, backed by a ClickHouse
// table of indexed documents. It generalizes the event repository's
// (timestamp, id) deep-pagination idiom into the opaque Cursor.
type ClickHouseSource struct {
	store   *clickhouse.ClickHouseStore
	cfg     config.IndexConfig
	logger  *logger.Logger
	limiter *rate.Limiter
}

// Option configures a ClickHouseSource at construction time.
type Option func(*ClickHouseSource)

// WithRateLimit paces NextPage calls so a single slow client can't hammer
// the index; it is optional and off by default (rps <= 0 disables it).
func WithRateLimit(rps int) Option {
	return func(s *ClickHouseSource) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

func NewClickHouseSource(store *clickhouse.ClickHouseStore, cfg *config.Configuration, logger *logger.Logger, opts ...Option) *ClickHouseSource {
	s := &ClickHouseSource{store: store, cfg: cfg.Index, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type cursorState struct {
	Timestamp string `json:"ts"`
	ID        string `json:"id"`
}

func encodeCursor(ts, id string) string {
	raw, _ := json.Marshal(cursorState{Timestamp: ts, ID: id})
	return base64.StdEncoding.EncodeToString(raw)
}

func decodeCursor(token string) (*cursorState, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var cs cursorState
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

func (s *ClickHouseSource) Open(ctx context.Context, query string, mode event.QueryMode, propertyFilters map[string][]string) (*Handle, error) {
	if mode == event.QueryModeExactPhrase && strings.TrimSpace(query) == "" {
		return nil, ierr.NewError("empty exact-phrase query").
			WithHint("quoted queries must contain at least one character").
			Mark(ierr.ErrIndexMalformed)
	}
	return &Handle{Query: query, Mode: mode, PropertyFilters: propertyFilters}, nil
}

func (s *ClickHouseSource) NextPage(ctx context.Context, h *Handle) ([]event.Event, bool, error) {
	if h.closed {
		return nil, false, nil
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, false, ierr.Wrap(err, ierr.ErrCodeCancelled, "rate limiter wait cancelled")
		}
	}

	table := s.cfg.Table
	if table == "" {
		table = "events"
	}
	pageSize := s.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	query := fmt.Sprintf(`
		SELECT id, timestamp, title, description
		FROM %s
		WHERE (%s)
	`, table, matchPredicate(h.Mode))

	args := []interface{}{h.Query, h.Query}

	for key, values := range h.PropertyFilters {
		query += " AND has(?, properties[?])"
		args = append(args, values, key)
	}

	if h.cursor != nil {
		cs, err := decodeCursor(h.cursor.Token)
		if err != nil {
			return nil, false, ierr.Wrap(err, ierr.ErrCodeIndexTransient, "decode continuation token")
		}
		query += " AND (timestamp, id) < (?, ?)"
		args = append(args, cs.Timestamp, cs.ID)
	}

	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, pageSize)

	rows, err := s.store.Query(ctx, query, args...)
	if err != nil {
		return nil, false, ierr.Wrap(err, ierr.ErrCodeIndexTransient, "query index page").
			WithReportableDetails(map[string]interface{}{"query": h.Query})
	}
	defer rows.Close()

	var page []event.Event
	var lastTS, lastID string
	for rows.Next() {
		var e event.Event
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Title, &e.Description); err != nil {
			return nil, false, ierr.Wrap(err, ierr.ErrCodeIndexTransient, "scan index row")
		}
		page = append(page, e)
		lastTS = e.Timestamp.String()
		lastID = e.ID
	}

	more := len(page) == pageSize
	if more {
		h.cursor = &Cursor{Token: encodeCursor(lastTS, lastID)}
	} else {
		h.closed = true
	}
	return page, more, nil
}

func matchPredicate(mode event.QueryMode) string {
	if mode == event.QueryModeExactPhrase {
		return "positionCaseInsensitive(title, ?) > 0 OR positionCaseInsensitive(description, ?) > 0"
	}
	return "multiSearchAny(title, [?]) OR hasToken(description, ?)"
}

func (s *ClickHouseSource) Close(h *Handle) error {
	h.closed = true
	return nil
}

func (s *ClickHouseSource) FetchByIDs(ctx context.Context, ids []string) ([]event.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	table := s.cfg.Table
	if table == "" {
		table = "events"
	}

	query := fmt.Sprintf(`SELECT id, timestamp, title, description FROM %s WHERE id IN (?)`, table)
	rows, err := s.store.Query(ctx, query, ids)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.ErrCodeIndexTransient, "bulk fetch by ids")
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var e event.Event
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Title, &e.Description); err != nil {
			return nil, ierr.Wrap(err, ierr.ErrCodeIndexTransient, "scan bulk row")
		}
		out = append(out, e)
	}
	return out, nil
}
