package natsbridge

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/message"
	"github.com/c360/exchangegate/metric"
	"github.com/c360/exchangegate/pkg/retry"
)

// HeaderUnitID carries the id of the unit that produced a message.
const HeaderUnitID = "Exchange-Unit-Id"

// MsgPublisher is the part of natsclient.Client the Publisher needs.
type MsgPublisher interface {
	PublishMsg(ctx context.Context, subject string, header nats.Header, data []byte) error
}

// Publisher is a pipeline service that publishes the unit payload to a
// subject, carrying the correlation key and selected metadata as headers.
type Publisher struct {
	client     MsgPublisher
	subject    string
	headerKeys []string
	retry      retry.Config
	logger     *slog.Logger
	metrics    *metric.Metrics
}

// PublisherOption configures a Publisher
type PublisherOption func(*Publisher)

// WithHeaderKeys copies the named metadata entries into message headers.
func WithHeaderKeys(keys ...string) PublisherOption {
	return func(p *Publisher) {
		p.headerKeys = append(p.headerKeys, keys...)
	}
}

// WithRetry sets the publish retry policy.
func WithRetry(cfg retry.Config) PublisherOption {
	return func(p *Publisher) {
		p.retry = cfg
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPublisherMetrics records every publish outcome.
func WithPublisherMetrics(metrics *metric.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = metrics
	}
}

// NewPublisher creates a publisher for subject.
func NewPublisher(client MsgPublisher, subject string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		client:  client,
		subject: subject,
		retry:   retry.Quick(),
		logger:  slog.Default().With("component", "nats-publisher", "subject", subject),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the service name.
func (p *Publisher) Name() string { return "nats-publish:" + p.subject }

// Subject returns the subject messages are published to.
func (p *Publisher) Subject() string { return p.subject }

// Process publishes unit. Publish failures are retried while they are
// transient; the final error fails the unit, which answers the parked
// exchange through the error responder.
func (p *Publisher) Process(ctx context.Context, unit *message.Unit) error {
	hdr := p.headersFor(unit)
	err := retry.Do(ctx, p.retry, func() error {
		if err := p.client.PublishMsg(ctx, p.subject, hdr, unit.Payload()); err != nil {
			return errors.WrapTransient(err, "Publisher", "Process", "publish to "+p.subject)
		}
		return nil
	})
	if err != nil {
		p.record("error")
		return err
	}

	p.record("success")
	p.logger.Debug("Published unit", "unit", unit.ID(), "key", hdr.Get(message.KeyCorrelationID))
	return nil
}

func (p *Publisher) headersFor(unit *message.Unit) nats.Header {
	hdr := nats.Header{}
	for _, key := range p.headerKeys {
		if value, ok := unit.Lookup(key); ok {
			hdr.Set(key, value)
		}
	}

	key := unit.Get(message.KeyCorrelationID)
	if key == "" {
		key = unit.ID()
	}
	hdr.Set(message.KeyCorrelationID, key)
	hdr.Set(HeaderUnitID, unit.ID())
	return hdr
}

func (p *Publisher) record(status string) {
	if p.metrics != nil {
		p.metrics.RecordMessagePublished(p.subject, status)
	}
}
