// Command rankgate-server composes the Search Pipeline Core's dependency
// graph and keeps it alive for a process embedding it behind an HTTP/SSE
// boundary — that boundary itself is an external collaborator and is not
// built here.
package main

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/rankgate/rankgate/internal/authz"
	"github.com/rankgate/rankgate/internal/clickhouse"
	"github.com/rankgate/rankgate/internal/config"
	"github.com/rankgate/rankgate/internal/indexsource"
	"github.com/rankgate/rankgate/internal/logger"
	"github.com/rankgate/rankgate/internal/observability"
	"github.com/rankgate/rankgate/internal/pipeline"
	"github.com/rankgate/rankgate/internal/profiling"
	"github.com/rankgate/rankgate/internal/sentry"
)

func init() {
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	opts = append(opts,
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			sentry.NewSentryService,
			clickhouse.NewClickHouseStore,
			provideIndexSource,
			provideAuthzClient,
			observability.NewNoopMetrics,
			pipeline.New,
		),
	)

	opts = append(opts, profiling.Module())

	opts = append(opts,
		fx.Invoke(
			sentry.RegisterHooks,
			registerShutdownHook,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

// provideIndexSource satisfies indexsource.Source with the ClickHouse
// -backed implementation; fx wires it as an interface so a future backing
// store can be substituted without touching the pipeline.
func provideIndexSource(store *clickhouse.ClickHouseStore, cfg *config.Configuration, log *logger.Logger) indexsource.Source {
	var opts []indexsource.Option
	if cfg.Index.RateLimitRPS > 0 {
		opts = append(opts, indexsource.WithRateLimit(cfg.Index.RateLimitRPS))
	}
	return indexsource.NewClickHouseSource(store, cfg, log, opts...)
}

// provideAuthzClient satisfies authz.Client with the HTTP-backed
// implementation; wrapped the same way provideIndexSource is so fx wires
// the interface rather than the concrete type, keeping the Pipeline
// Driver's dependency swappable in tests without touching this graph. It
// registers its own shutdown hook here, since only this constructor still
// holds the concrete *authz.HTTPClient needed to stop its eviction sweep.
func provideAuthzClient(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger, sentrySvc *sentry.Service) authz.Client {
	client := authz.NewHTTPClient(cfg, log, sentrySvc)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			client.Close()
			return nil
		},
	})
	return client
}

// registerShutdownHook logs process lifecycle transitions, the one piece
// of "process lifecycle" this composition root owns: wiring the graph
// together and releasing the ClickHouse connection on stop.
func registerShutdownHook(lc fx.Lifecycle, store *clickhouse.ClickHouseStore, log *logger.Logger, driver *pipeline.Driver) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("rankgate pipeline core ready")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down rankgate pipeline core")
			return store.Close()
		},
	})
}
