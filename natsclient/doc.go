// Package natsclient wraps the NATS Go client with a circuit breaker,
// health monitoring and header-aware publish and subscribe.
//
// The circuit opens after a threshold of consecutive connect failures
// (default 5). While open, Connect fails fast with errors.ErrCircuitOpen,
// which is transient, so ConnectWithRetry keeps backing off until the
// breaker half-opens:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("exchangegate"),
//	    natsclient.WithMetrics(registry.CoreMetrics()),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.ConnectWithRetry(ctx, retry.DefaultConfig()); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
// Bridges carry correlation identifiers in NATS headers, so they use
// PublishMsg and SubscribeMsg rather than the payload-only Publish and
// Subscribe:
//
//	hdr := nats.Header{}
//	hdr.Set("Exchange-Correlation-Id", key)
//	err = client.PublishMsg(ctx, "orders.request", hdr, payload)
//
// Tests run against an embedded server through NewTestClient.
package natsclient
