// Package config loads and validates exchangegate configuration.
//
// # Layers
//
// The Loader starts from Defaults, merges each file layer on top as a
// generic map (so a layer only overrides the keys it names), applies
// EXCHANGEGATE_* environment overrides, and finally validates:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.json") // overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Files may be JSON or YAML, chosen by extension. Durations are Go duration
// strings, with an extra "d" suffix for days ("14d").
//
// # Sections
//
//	http:         listen address, server timeouts, prefix, body limit, CORS
//	metrics:      Prometheus endpoint port and path
//	nats:         server URLs and credentials; optional
//	correlation:  TTL and capacity of the shared correlation cache
//	workflows:    named workflows, their kind, admission, correlation and services
//	routes:       HTTP paths mapped to workflows
//	bridges:      NATS subjects feeding workflows
//
// # Environment
//
//	EXCHANGEGATE_HTTP_LISTEN, EXCHANGEGATE_HTTP_PREFIX
//	EXCHANGEGATE_METRICS_ENABLED, EXCHANGEGATE_METRICS_PORT, EXCHANGEGATE_METRICS_PATH
//	EXCHANGEGATE_NATS_URLS (comma separated), EXCHANGEGATE_NATS_NAME
//	EXCHANGEGATE_NATS_USERNAME, EXCHANGEGATE_NATS_PASSWORD, EXCHANGEGATE_NATS_TOKEN
//	EXCHANGEGATE_CORRELATION_TTL
//
// SafeConfig guards a Config for concurrent readers; Get returns a deep copy.
package config
