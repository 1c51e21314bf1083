package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/fx"

	"github.com/rankgate/rankgate/internal/config"
	"github.com/rankgate/rankgate/internal/logger"
)

// Service wraps optional Sentry instrumentation around the pipeline's two
// external round-trips: ClickHouse index queries and authorizer calls.
type Service struct {
	cfg    *config.Configuration
	logger *logger.Logger
}

// Module provides fx options for Sentry.
func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewSentryService),
		fx.Invoke(RegisterHooks),
	)
}

// RegisterHooks registers lifecycle hooks for Sentry.
func RegisterHooks(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !svc.cfg.Sentry.Enabled {
				svc.logger.Info("Sentry is disabled")
				return nil
			}

			err := sentry.Init(sentry.ClientOptions{
				Dsn:              svc.cfg.Sentry.DSN,
				Environment:      svc.cfg.Sentry.Environment,
				EnableTracing:    true,
				TracesSampleRate: svc.cfg.Sentry.SampleRate,
			})
			if err != nil {
				svc.logger.Errorw("Failed to initialize Sentry", "error", err)
				return err
			}
			svc.logger.Infow("Sentry initialized successfully",
				"environment", svc.cfg.Sentry.Environment,
				"sample_rate", svc.cfg.Sentry.SampleRate,
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if svc.cfg.Sentry.Enabled {
				svc.logger.Info("Flushing Sentry events before shutdown")
				sentry.Flush(2 * time.Second)
			}
			return nil
		},
	})
}

// NewSentryService creates a new Sentry service.
func NewSentryService(cfg *config.Configuration, logger *logger.Logger) *Service {
	return &Service{cfg: cfg, logger: logger}
}

func (s *Service) IsEnabled() bool {
	return s.cfg.Sentry.Enabled
}

// CaptureException captures a diagnostic error in Sentry — used by the
// ClickHouse store for failed index queries and execs; the error is still
// returned to the store's caller.
func (s *Service) CaptureException(err error) {
	if !s.IsEnabled() {
		return
	}
	sentry.CaptureException(err)
}

// StartClickHouseSpan starts a span around an Index Source query.
func (s *Service) StartClickHouseSpan(ctx context.Context, operation string, params map[string]interface{}) (*sentry.Span, context.Context) {
	if !s.IsEnabled() {
		return nil, ctx
	}

	span := sentry.StartSpan(ctx, operation)
	if span != nil {
		span.Description = operation
		span.Op = "db.clickhouse"
		for k, v := range params {
			span.SetData(k, v)
		}
	}
	return span, span.Context()
}

// StartAuthzSpan starts a span around an Authorizer Client call.
func (s *Service) StartAuthzSpan(ctx context.Context, operation string, params map[string]interface{}) (*sentry.Span, context.Context) {
	if !s.IsEnabled() {
		return nil, ctx
	}

	span := sentry.StartSpan(ctx, operation)
	if span != nil {
		span.Description = operation
		span.Op = "http.authz"
		for k, v := range params {
			span.SetData(k, v)
		}
	}
	return span, span.Context()
}
