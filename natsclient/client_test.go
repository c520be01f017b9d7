package natsclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/metric"
	"github.com/c360/exchangegate/pkg/retry"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Nil(t, client.Conn())
}

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	client, err := NewClient("nats://invalid:4222")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		client.recordFailure()
	}
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(5), client.Failures())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.Backoff())
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestCircuitBreaker_ExponentialBackoff(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithMaxBackoff(3*time.Second))
	require.NoError(t, err)

	assert.Equal(t, time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 2*time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 3*time.Second, client.Backoff(), "backoff is capped")
}

func TestCircuitBreaker_ConcurrentFailures(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(3))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.recordFailure()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(30), client.Failures())
	assert.Equal(t, StatusCircuitOpen, client.Status())
}

func TestConnect_CircuitOpenFailsFast(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(1))
	require.NoError(t, err)

	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	err = client.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
	assert.True(t, errors.IsTransient(err))
}

func TestConnect_UnreachableServer(t *testing.T) {
	client, err := NewClient("nats://127.0.0.1:1",
		WithTimeout(100*time.Millisecond),
		WithMaxReconnects(0),
	)
	require.NoError(t, err)

	err = client.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, int32(1), client.Failures())
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestConnectWithRetry_GivesUp(t *testing.T) {
	client, err := NewClient("nats://127.0.0.1:1",
		WithTimeout(50*time.Millisecond),
		WithMaxReconnects(0),
	)
	require.NoError(t, err)

	err = client.ConnectWithRetry(context.Background(), retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMaxRetriesExceeded)
	assert.Equal(t, int32(3), client.Failures())
}

func TestClient_EmbeddedServer(t *testing.T) {
	tc := NewTestClient(t)
	client := tc.Client

	assert.True(t, client.IsHealthy())
	assert.Equal(t, StatusConnected, client.Status())

	rtt, err := client.RTT()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rtt, time.Duration(0))

	status := client.GetStatus()
	assert.Equal(t, StatusConnected, status.Status)
	assert.Equal(t, int32(0), status.FailureCount)
}

func TestClient_PublishSubscribe(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	received := make(chan []byte, 1)
	require.NoError(t, tc.Client.Subscribe(ctx, "test.plain", func(_ context.Context, data []byte) {
		received <- data
	}))
	require.NoError(t, tc.Client.Flush(ctx))

	require.NoError(t, tc.Client.Publish(ctx, "test.plain", []byte("hello")))

	select {
	case data := <-received:
		assert.Equal(t, "hello", string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestClient_PublishMsgCarriesHeaders(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	received := make(chan *nats.Msg, 1)
	_, err := tc.Client.SubscribeMsg(ctx, "test.headers", "", func(msgCtx context.Context, msg *nats.Msg) {
		_, hasDeadline := msgCtx.Deadline()
		assert.True(t, hasDeadline)
		received <- msg
	})
	require.NoError(t, err)
	require.NoError(t, tc.Client.Flush(ctx))

	hdr := nats.Header{}
	hdr.Set("Exchange-Correlation-Id", "order-7")
	require.NoError(t, tc.Client.PublishMsg(ctx, "test.headers", hdr, []byte(`{"id":7}`)))

	select {
	case msg := <-received:
		assert.Equal(t, "order-7", msg.Header.Get("Exchange-Correlation-Id"))
		assert.JSONEq(t, `{"id":7}`, string(msg.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestClient_QueueSubscribeSharesMessages(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		count int
	)
	done := make(chan struct{})
	handler := func(context.Context, *nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		count++
		if count == 10 {
			close(done)
		}
	}
	for i := 0; i < 2; i++ {
		sub, err := tc.Client.SubscribeMsg(ctx, "test.queue", "workers", handler)
		require.NoError(t, err)
		assert.Equal(t, "workers", sub.Queue)
	}
	require.NoError(t, tc.Client.Flush(ctx))

	for i := 0; i < 10; i++ {
		require.NoError(t, tc.Client.Publish(ctx, "test.queue", []byte("x")))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue group did not receive all messages")
	}

	require.NoError(t, tc.Client.Flush(ctx))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, count, "each message is delivered to one member")
}

func TestClient_NotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, client.Publish(ctx, "x", nil), ErrNotConnected)
	assert.ErrorIs(t, client.PublishMsg(ctx, "x", nats.Header{}, nil), ErrNotConnected)
	_, err = client.SubscribeMsg(ctx, "x", "", func(context.Context, *nats.Msg) {})
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = client.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	require.NoError(t, tc.Client.Close(ctx))
	assert.Equal(t, StatusDisconnected, tc.Client.Status())
	assert.Nil(t, tc.Client.Conn())
	assert.NoError(t, tc.Client.Close(ctx))
}

func TestClient_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()

	tc := NewTestClient(t, WithMetrics(metrics))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.NATSConnected))

	require.NoError(t, tc.Client.Close(context.Background()))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.NATSConnected))
}

func TestClient_HealthCallback(t *testing.T) {
	healthy := make(chan bool, 4)
	tc := NewTestClient(t, WithHealthChangeCallback(func(h bool) { healthy <- h }))
	_ = tc

	select {
	case h := <-healthy:
		assert.True(t, h)
	case <-time.After(time.Second):
		t.Fatal("health callback not invoked on connect")
	}
}

func TestNewClient_RejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  ClientOption
	}{
		{"max reconnects", WithMaxReconnects(-2)},
		{"reconnect wait", WithReconnectWait(0)},
		{"timeout", WithTimeout(-time.Second)},
		{"drain timeout", WithDrainTimeout(0)},
		{"health interval", WithHealthInterval(-time.Second)},
		{"circuit threshold", WithCircuitBreakerThreshold(0)},
		{"max backoff", WithMaxBackoff(time.Millisecond)},
		{"credentials", WithCredentials("", "secret")},
		{"token", WithToken("")},
		{"tls half pair", WithTLS("client.crt", "", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", tt.opt)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}

	_, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(-1),
		WithHealthInterval(0),
		WithTLS("", "", "ca.pem"),
		WithCredentials("gateway", ""),
	)
	assert.NoError(t, err)
}
