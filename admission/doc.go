// Package admission protects a workflow's worker pool from overload.
//
// The Controller is a pipeline.Interceptor. Its capacity is the pool size of
// the workflow it is attached to, read again on every Start. A unit that would
// push the in-flight count past capacity is answered immediately with
// 503 "Server Busy" and marked to skip production, so it never reaches a
// queue. Admitted units are released in WorkflowEnd, exactly once.
//
// Units that carry no HTTP exchange (for example replies arriving from NATS)
// bypass admission.
package admission
