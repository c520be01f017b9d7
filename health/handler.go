package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the status returned by report as JSON. Unhealthy reports
// get 503 so load balancers take the instance out of rotation; degraded
// reports still get 200.
func Handler(report func() Status) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := report()
		code := http.StatusOK
		if status.IsUnhealthy() {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}
