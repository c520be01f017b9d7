// Package gateway defines how HTTP routes map onto workflows.
//
// A RouteMapping names the path, the accepted methods, the workflow that
// answers it, and how the dispatcher waits:
//
//	routes:
//	  - path: /orders
//	    methods: GET,POST
//	    workflow: orders
//	    heartbeat:
//	      interval: 20s
//	    timeout:
//	      deadline: 30s
//	      late_status: 202
//	      late_completion: suppress
//	    warn_after: 5s
//
// Validate must be called before a mapping is used; it parses the duration
// strings and builds the sorted method list (OPTIONS is always allowed).
//
// Roles resolved by authentication middleware travel on the request context
// through WithRoles and reach the workflow as the httpRoles metadata entry.
//
// The dispatcher itself lives in gateway/http.
package gateway
