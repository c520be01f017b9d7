package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
)

// TestClient runs an in-process NATS server and a connected Client for tests.
type TestClient struct {
	Server *server.Server
	Client *Client
	URL    string
}

// NewTestClient starts an embedded server on a random port and connects a
// client to it. Both are shut down through t.Cleanup.
func NewTestClient(t testing.TB, opts ...ClientOption) *TestClient {
	t.Helper()

	serverOpts := natsserver.DefaultTestOptions
	serverOpts.Port = -1
	srv := natsserver.RunServer(&serverOpts)

	client, err := NewClient(srv.ClientURL(), append([]ClientOption{
		WithHealthInterval(0),
		WithDrainTimeout(2 * time.Second),
	}, opts...)...)
	if err != nil {
		srv.Shutdown()
		t.Fatalf("create NATS client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		srv.Shutdown()
		t.Fatalf("connect NATS client: %v", err)
	}

	tc := &TestClient{Server: srv, Client: client, URL: srv.ClientURL()}
	t.Cleanup(tc.Terminate)
	return tc
}

// Terminate closes the client and stops the server. Calling it twice is safe.
func (tc *TestClient) Terminate() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = tc.Client.Close(ctx)
	if tc.Server != nil {
		tc.Server.Shutdown()
	}
}
