package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/message"
)

// ResponseProducer writes a unit's payload to its exchange. It is normally
// the last service of the workflow that answers the HTTP caller.
type ResponseProducer struct {
	status       int
	contentType  string
	headerKeys   []string
	headerPrefix string
	logger       *slog.Logger
}

// ProducerOption configures a ResponseProducer.
type ProducerOption func(*ResponseProducer)

// WithStatus sets the status used when the unit carries no httpStatus.
func WithStatus(status int) ProducerOption {
	return func(p *ResponseProducer) {
		if status > 0 {
			p.status = status
		}
	}
}

// WithContentType sets the default Content-Type.
func WithContentType(contentType string) ProducerOption {
	return func(p *ResponseProducer) {
		p.contentType = contentType
	}
}

// WithHeaderKeys copies the named metadata entries to response headers.
func WithHeaderKeys(keys ...string) ProducerOption {
	return func(p *ResponseProducer) {
		p.headerKeys = append(p.headerKeys, keys...)
	}
}

// WithHeaderPrefix copies every metadata entry starting with prefix to a
// response header named by the rest of the key.
func WithHeaderPrefix(prefix string) ProducerOption {
	return func(p *ResponseProducer) {
		p.headerPrefix = prefix
	}
}

// WithProducerLogger sets the logger.
func WithProducerLogger(logger *slog.Logger) ProducerOption {
	return func(p *ResponseProducer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewResponseProducer creates a producer answering 200 by default.
func NewResponseProducer(opts ...ProducerOption) *ResponseProducer {
	p := &ResponseProducer{
		status: http.StatusOK,
		logger: slog.Default().With("component", "response-producer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the service name.
func (p *ResponseProducer) Name() string { return "response-producer" }

// Process commits the response. Units that were rejected, parked, or whose
// exchange was abandoned after a timeout are skipped. Losing the commit race
// is not an error.
func (p *ResponseProducer) Process(_ context.Context, unit *message.Unit) error {
	state := unit.Exchange()
	if state == nil || unit.SkipProduction() || unit.Parked() || state.Abandoned() {
		return nil
	}

	status, err := p.statusFor(unit)
	if err != nil {
		return err
	}

	err = state.Respond(status, p.headersFor(unit), unit.Payload())
	switch {
	case err == nil:
		unit.Set(message.KeyStatus, strconv.Itoa(status))
		return nil
	case errors.IsAlreadyCommitted(err):
		p.logger.Debug("Response already committed", "unit", unit.ID(), "exchange", state.ID())
		return nil
	case errors.IsClientGone(err):
		p.logger.Debug("Client gone before response", "unit", unit.ID(), "exchange", state.ID())
		return nil
	default:
		return err
	}
}

func (p *ResponseProducer) statusFor(unit *message.Unit) (int, error) {
	raw, ok := unit.Lookup(message.KeyStatus)
	if !ok || raw == "" {
		return p.status, nil
	}
	status, err := strconv.Atoi(raw)
	if err != nil || status < 200 || status > 599 {
		return 0, errors.WrapInvalid(errors.ErrInvalidData, "ResponseProducer", "Process",
			"status metadata "+strconv.Quote(raw))
	}
	return status, nil
}

func (p *ResponseProducer) headersFor(unit *message.Unit) http.Header {
	header := http.Header{}
	contentType := p.contentType
	if ct := unit.Get(message.KeyResponseContentType); ct != "" {
		contentType = ct
	}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	for _, key := range p.headerKeys {
		if v, ok := unit.Lookup(key); ok {
			header.Set(key, v)
		}
	}
	if p.headerPrefix != "" {
		for _, key := range unit.Keys() {
			if name, ok := strings.CutPrefix(key, p.headerPrefix); ok && name != "" {
				header.Set(name, unit.Get(key))
			}
		}
	}
	return header
}
