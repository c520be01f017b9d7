// Package service wires a validated config.Config into a running gateway.
//
// New builds every part without starting it: the NATS client (when
// nats.urls is set), the correlation cache, one workflow per configured
// name with its admission and correlation interceptors, the route
// dispatchers, and one NATS consumer per bridge.
//
//	gw, err := service.New(cfg, service.WithLogger(logger), service.WithMetricsRegistry(registry))
//	if err != nil {
//		return err
//	}
//	if err := gw.Start(ctx); err != nil {
//		return err
//	}
//	defer gw.Stop(30 * time.Second)
//
//	srv := &http.Server{Addr: cfg.HTTP.Listen, Handler: gw.Handler()}
//
// Start order is NATS, cache sweep, workflows, bridges; Stop reverses it.
// Workflows start their interceptors, so every Start resets admission
// counters to the workflow's current pool size.
//
// Handler serves the configured routes and an aggregate health report at
// /healthz.
package service
