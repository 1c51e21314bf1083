package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	clickhouse_go "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rankgate/rankgate/internal/config"
	"github.com/rankgate/rankgate/internal/logger"
	rgsentry "github.com/rankgate/rankgate/internal/sentry"
)

type ClickHouseStore struct {
	conn   driver.Conn
	config *config.Configuration
	logger *logger.Logger
	sentry *rgsentry.Service
}

func NewClickHouseStore(config *config.Configuration, logger *logger.Logger, sentrySvc *rgsentry.Service) (*ClickHouseStore, error) {
	options := config.ClickHouse.GetClientOptions()
	conn, err := clickhouse_go.Open(options)
	if err != nil {
		return nil, fmt.Errorf("init clickhouse client: %w", err)
	}

	return &ClickHouseStore{
		conn:   conn,
		config: config,
		logger: logger,
		sentry: sentrySvc,
	}, nil
}

func (s *ClickHouseStore) GetConn() driver.Conn {
	return s.conn
}

// Close closes the ClickHouse connection
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

// Query executes a query, wrapped in an optional Sentry span via the
// shared Sentry service, and reports any failure as a diagnostic rather
// than aborting the caller.
func (s *ClickHouseStore) Query(ctx context.Context, query string, args ...interface{}) (driver.Rows, error) {
	span, spanCtx := s.sentry.StartClickHouseSpan(ctx, "clickhouse.query", map[string]interface{}{"query": query})

	start := time.Now()
	rows, err := s.conn.Query(spanCtx, query, args...)

	if span != nil {
		span.SetData("duration_ms", time.Since(start).Milliseconds())
		if err != nil {
			span.Status = sentry.SpanStatusInternalError
			span.SetData("error", err.Error())
		} else {
			span.Status = sentry.SpanStatusOK
		}
		span.Finish()
	}
	if err != nil {
		s.sentry.CaptureException(err)
	}

	return rows, err
}

// QueryRow executes a query that returns a single row, wrapped in an
// optional Sentry span via the shared Sentry service.
func (s *ClickHouseStore) QueryRow(ctx context.Context, query string, args ...interface{}) driver.Row {
	span, spanCtx := s.sentry.StartClickHouseSpan(ctx, "clickhouse.query_row", map[string]interface{}{"query": query})

	start := time.Now()
	row := s.conn.QueryRow(spanCtx, query, args...)

	if span != nil {
		span.SetData("duration_ms", time.Since(start).Milliseconds())
		span.Status = sentry.SpanStatusOK
		span.Finish()
	}

	return row
}

// Exec executes a query without returning any rows, wrapped in an optional
// Sentry span via the shared Sentry service.
func (s *ClickHouseStore) Exec(ctx context.Context, query string, args ...interface{}) error {
	span, spanCtx := s.sentry.StartClickHouseSpan(ctx, "clickhouse.exec", map[string]interface{}{"query": query})

	start := time.Now()
	err := s.conn.Exec(spanCtx, query, args...)

	if span != nil {
		span.SetData("duration_ms", time.Since(start).Milliseconds())
		if err != nil {
			span.Status = sentry.SpanStatusInternalError
			span.SetData("error", err.Error())
		} else {
			span.Status = sentry.SpanStatusOK
		}
		span.Finish()
	}
	if err != nil {
		s.sentry.CaptureException(err)
	}

	return err
}
