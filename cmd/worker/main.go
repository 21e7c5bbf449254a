package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/legal-code-search/internal/config"
	"github.com/kirillkom/legal-code-search/internal/core/domain"
	natsevents "github.com/kirillkom/legal-code-search/internal/infrastructure/events/nats"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/resilience"
	"github.com/kirillkom/legal-code-search/internal/observability/logging"
)

const serviceName = "query-audit"

// The worker consumes query events and writes one structured audit record
// per answered query.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	if cfg.NATSURL == "" {
		logger.Error("nats_url_required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := resilience.DefaultConfig()
	policy.RetryMaxAttempts = cfg.RetryMaxAttempts
	policy.BreakerEnabled = cfg.BreakerEnabled
	policy.BreakerOpenTimeout = cfg.BreakerOpenTimeout

	events, err := natsevents.New(cfg.NATSURL, cfg.NATSSubject, natsevents.Options{
		ResilienceExecutor: resilience.NewExecutorWithLogger(policy, logger),
		Logger:             logger,
	})
	if err != nil {
		logger.Error("nats_connect_failed", "error", err)
		os.Exit(1)
	}
	defer events.Close()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = events.SubscribeQueryEvents(ctx, func(_ context.Context, event domain.QueryEvent) error {
		attrs := []any{
			"request_id", event.RequestID,
			"query", event.Query,
			"label", string(event.Label),
			"mode", string(event.Mode),
			"results", event.ResultCount,
			"duration_ms", event.DurationMs,
			"occurred_at", event.OccurredAt,
		}
		if event.GenerationUsed != "" {
			attrs = append(attrs, "generation_method", event.GenerationUsed)
		}
		if len(event.DegradedSources) > 0 {
			attrs = append(attrs, "degraded_sources", event.DegradedSources)
			logger.Warn("query_audit", attrs...)
			return nil
		}
		logger.Info("query_audit", attrs...)
		return nil
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
