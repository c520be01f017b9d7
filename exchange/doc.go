// Package exchange models one in-flight HTTP exchange: the request, the
// response writer that may be written exactly once, and the monitor the
// dispatcher blocks on.
//
// # Terminal writes
//
// Three parties race to finish an exchange: the pipeline (through the
// response producer or error responder), the timeout policy, and the
// admission controller. All of them call State.Commit. The first caller
// writes; later callers receive errors.ErrAlreadyCommitted and do nothing.
//
//	err := state.Respond(http.StatusOK, header, body)
//	if errors.IsAlreadyCommitted(err) {
//	    // someone else answered the client
//	}
//
// # Waiting
//
// Monitor.Done is closed by SignalComplete. The dispatcher selects on it,
// on a deadline timer derived from TimeoutPolicy, and on the request context:
//
//	select {
//	case <-state.Monitor().Done():
//	case <-deadline.C():
//	    policy.OnTimeout(state)
//	case <-r.Context().Done():
//	}
//
// # Heartbeats
//
// A client that sends "Prefer: processing" receives 102 Processing every
// interval until a terminal response is committed. Heartbeat writes go
// through State.Interim and so never race a terminal write.
//
// All time sources are k8s.io/utils/clock interfaces so tests can drive
// deadlines and heartbeats with a fake clock.
package exchange
