// internal/publish/nats.go
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/events"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "testlab"

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// NATSPublisher mirrors engine events onto NATS subjects of the form
// <prefix>.<event type>, e.g. testlab.alert.fired.
type NATSPublisher struct {
	conn      conn
	prefix    string
	logger    *zap.Logger
	published atomic.Int64
	failed    atomic.Int64
}

// Connect dials the NATS server and keeps reconnecting for as long as the
// publisher lives.
func Connect(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("nats")

	nc, err := nats.Connect(url,
		nats.Name("solana-testlab"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS connection lost", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS", zap.String("url", url))
	return newPublisher(nc, prefix, logger), nil
}

func newPublisher(c conn, prefix string, logger *zap.Logger) *NATSPublisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{conn: c, prefix: prefix, logger: logger}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(t events.EventType) string {
	return p.prefix + "." + string(t)
}

// Handle implements events.Handler.
func (p *NATSPublisher) Handle(_ context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to encode %s event: %w", ev.Type(), err)
	}

	subject := p.Subject(ev.Type())
	if err := p.conn.Publish(subject, data); err != nil {
		p.failed.Add(1)
		p.logger.Warn("Failed to publish event",
			zap.String("subject", subject),
			zap.Error(err))
		return err
	}
	p.published.Add(1)
	return nil
}

// Attach subscribes the publisher to every event on the bus.
func (p *NATSPublisher) Attach(bus *events.Bus) events.Subscription {
	return bus.Subscribe(events.All, p)
}

// Stats returns the number of published and failed events.
func (p *NATSPublisher) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

// Close flushes pending messages and drains the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.FlushTimeout(5 * time.Second); err != nil {
		p.logger.Debug("Flush before drain failed", zap.Error(err))
	}
	return p.conn.Drain()
}
