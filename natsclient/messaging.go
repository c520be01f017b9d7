package natsclient

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/exchangegate/errors"
)

func (m *Client) liveConn() (*nats.Conn, error) {
	conn := m.Conn()
	if conn == nil || !conn.IsConnected() {
		return nil, ErrNotConnected
	}
	return conn, nil
}

// RTT returns the round-trip time to the NATS server
func (m *Client) RTT() (time.Duration, error) {
	conn, err := m.liveConn()
	if err != nil {
		return 0, err
	}
	return conn.RTT()
}

// Subscribe delivers message payloads on subject to handler.
func (m *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	_, err := m.SubscribeMsg(ctx, subject, "", func(msgCtx context.Context, msg *nats.Msg) {
		handler(msgCtx, msg.Data)
	})
	return err
}

// SubscribeMsg delivers whole messages, headers included, to handler. Each
// handler call gets a context bounded by the message timeout. A non-empty
// queue joins a queue group so replicas share the subject. Close releases
// the subscription.
func (m *Client) SubscribeMsg(ctx context.Context, subject, queue string, handler func(context.Context, *nats.Msg)) (*nats.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || !m.conn.IsConnected() {
		return nil, ErrNotConnected
	}

	timeout := m.messageTimeout
	cb := func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		handler(msgCtx, msg)
	}

	sub, err := m.conn.QueueSubscribe(subject, queue, cb)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "SubscribeMsg", "subscribe "+subject)
	}
	m.subs = append(m.subs, sub)
	return sub, nil
}

// Publish publishes data to subject
func (m *Client) Publish(ctx context.Context, subject string, data []byte) error {
	return m.PublishMsg(ctx, subject, nil, data)
}

// PublishMsg publishes data with headers to subject
func (m *Client) PublishMsg(_ context.Context, subject string, header nats.Header, data []byte) error {
	conn, err := m.liveConn()
	if err != nil {
		return err
	}
	return conn.PublishMsg(&nats.Msg{Subject: subject, Header: header, Data: data})
}

// Flush waits until the server has processed everything published so far
func (m *Client) Flush(ctx context.Context) error {
	conn, err := m.liveConn()
	if err != nil {
		return err
	}
	return conn.FlushWithContext(ctx)
}
