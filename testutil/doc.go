// Package testutil holds helpers shared by gateway tests.
//
// Recorder is an http.ResponseWriter that keeps interim 1xx responses apart
// from the final status, so heartbeat behaviour can be asserted. Gate holds
// units inside a workflow until the test releases them, which is how tests
// drive a dispatcher into its waiting state. Payload and CountingService are
// small pipeline stages for building workflows inline.
//
//	g := testutil.NewGate()
//	defer g.Open()
//	wf := testutil.StartWorkflow(t, pipeline.NewPooling("orders", 1, 4,
//		pipeline.WithServices(g.Service(), testutil.Payload("done"), pipeline.NewResponseProducer())))
//
// NATS tests use natsclient.NewTestClient, which runs an embedded server.
package testutil
