// Package events publishes domain events for out-of-process subscribers
// such as the storefront notifier.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/dropship/pkg/config"
	"github.com/fatflowers/dropship/pkg/logctx"
)

const (
	SubjectOrderSettled  = "order.settled"
	SubjectPaymentFailed = "payment.failed"
)

type Publisher interface {
	// Publish sends v as JSON on <prefix>.<subject>.
	Publish(ctx context.Context, subject string, v any) error
}

func fullSubject(prefix, subject string) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return subject
	}
	return prefix + "." + subject
}

type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	log    *zap.SugaredLogger
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subj := fullSubject(p.prefix, subject)
	if err := p.conn.Publish(subj, data); err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	logctx.FromCtx(ctx, p.log).Debugw("event published", "subject", subj)
	return nil
}

// LogPublisher is used when no NATS URL is configured.
type LogPublisher struct {
	prefix string
	log    *zap.SugaredLogger
}

func (p *LogPublisher) Publish(ctx context.Context, subject string, v any) error {
	logctx.FromCtx(ctx, p.log).Infow("event", "subject", fullSubject(p.prefix, subject), "payload", v)
	return nil
}

// Memory records events; used by tests.
type Memory struct {
	mu     sync.Mutex
	Events []Message
}

type Message struct {
	Subject string
	Payload any
}

func (m *Memory) Publish(_ context.Context, subject string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, Message{Subject: subject, Payload: v})
	return nil
}

func (m *Memory) BySubject(subject string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, e := range m.Events {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out
}

func New(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) (Publisher, error) {
	if cfg.NATS.URL == "" {
		log.Infow("nats url not set, domain events are only logged")
		return &LogPublisher{prefix: cfg.NATS.SubjectPrefix, log: log}, nil
	}
	conn, err := nats.Connect(cfg.NATS.URL,
		nats.Name("dropship"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infow("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Infow("draining nats connection")
			return conn.Drain()
		},
	})
	return &NATSPublisher{conn: conn, prefix: cfg.NATS.SubjectPrefix, log: log}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
