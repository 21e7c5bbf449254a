package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/resilience"
)

type messagePublisher interface {
	Publish(subject string, data []byte) error
}

// Publisher emits query audit events as JSON on one subject.
type Publisher struct {
	conn     *nats.Conn
	pub      messagePublisher
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string, options Options) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("legal-code-search"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{
		conn:     conn,
		pub:      conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

var _ ports.QueryEventPublisher = (*Publisher)(nil)

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func (p *Publisher) PublishQueryEvent(ctx context.Context, event domain.QueryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal query event: %w", err)
	}
	err = p.executor.Execute(ctx, "nats.publish", func(_ context.Context) error {
		if err := p.pub.Publish(p.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		return resilience.WrapTemporaryIfNeeded("nats publish", err, classifyNATSError)
	}
	return nil
}

// SubscribeQueryEvents delivers decoded events until ctx is done, then drains
// the subscription. Undecodable messages are logged and skipped.
func (p *Publisher) SubscribeQueryEvents(ctx context.Context, handler func(context.Context, domain.QueryEvent) error) error {
	if p.conn == nil {
		return fmt.Errorf("nats subscribe: no connection")
	}
	sub, err := p.conn.Subscribe(p.subject, func(msg *nats.Msg) {
		p.deliver(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := p.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := p.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (p *Publisher) deliver(ctx context.Context, data []byte, handler func(context.Context, domain.QueryEvent) error) bool {
	if ctx.Err() != nil {
		return false
	}
	var event domain.QueryEvent
	if err := json.Unmarshal(data, &event); err != nil {
		p.logger.Warn("query_event_decode_failed", "error", err)
		return false
	}
	if err := handler(ctx, event); err != nil {
		p.logger.Warn("query_event_handler_failed", "request_id", event.RequestID, "error", err)
		return false
	}
	return true
}

// classifyNATSError retries connection-state errors and defers everything
// else to the shared HTTP/network classification.
func classifyNATSError(err error) resilience.ErrorClassification {
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionReconnecting) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}
	return resilience.ClassifyHTTPError(err)
}
