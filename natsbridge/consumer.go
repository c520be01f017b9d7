package natsbridge

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/message"
	"github.com/c360/exchangegate/pipeline"
)

// KeySubject holds the subject a consumed message arrived on.
const KeySubject = "natsSubject"

// MsgSubscriber is the part of natsclient.Client the Consumer needs.
type MsgSubscriber interface {
	SubscribeMsg(ctx context.Context, subject, queue string,
		handler func(context.Context, *nats.Msg)) (*nats.Subscription, error)
}

// Consumer feeds messages from a subject into a workflow.
type Consumer struct {
	client   MsgSubscriber
	subject  string
	queue    string
	workflow pipeline.Workflow
	logger   *slog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// ConsumerOption configures a Consumer
type ConsumerOption func(*Consumer)

// WithQueue joins a queue group so each reply is handled by one replica.
func WithQueue(queue string) ConsumerOption {
	return func(c *Consumer) {
		c.queue = queue
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConsumer creates a consumer that submits messages on subject to wf.
func NewConsumer(client MsgSubscriber, subject string, wf pipeline.Workflow, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		client:   client,
		subject:  subject,
		workflow: wf,
		logger:   slog.Default().With("component", "nats-consumer", "subject", subject),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the consumer.
func (c *Consumer) Name() string { return "nats-consume:" + c.subject }

// Start subscribes. The workflow must already be running.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Consumer", "Start", c.subject)
	}

	sub, err := c.client.SubscribeMsg(ctx, c.subject, c.queue, c.handle)
	if err != nil {
		return errors.WrapTransient(err, "Consumer", "Start", "subscribe "+c.subject)
	}
	c.sub = sub
	c.logger.Info("Consumer started", "queue", c.queue, "workflow", c.workflow.Name())
	return nil
}

// Stop unsubscribes. Messages already handed to the workflow finish.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return nil
	}
	err := c.sub.Unsubscribe()
	c.sub = nil
	if err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) && !stderrors.Is(err, nats.ErrBadSubscription) {
		return errors.Wrap(err, "Consumer", "Stop", "unsubscribe "+c.subject)
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg *nats.Msg) {
	unit := NewUnit(msg)
	if _, err := c.workflow.Submit(ctx, unit); err != nil {
		c.logger.Warn("Reply not processed",
			"unit", unit.ID(), "key", unit.Get(message.KeyCorrelationID), "error", err)
	}
}

// NewUnit builds a unit from msg. Each header becomes a metadata entry
// holding the header's first value.
func NewUnit(msg *nats.Msg) *message.Unit {
	md := make(map[string]string, len(msg.Header)+1)
	for key, values := range msg.Header {
		if len(values) > 0 {
			md[key] = values[0]
		}
	}
	md[KeySubject] = msg.Subject
	return message.NewUnit("nats:"+msg.Subject,
		message.WithPayload(msg.Data),
		message.WithMetadata(md),
	)
}
