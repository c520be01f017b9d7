package gateway_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/exchange"
	"github.com/c360/exchangegate/gateway"
)

func TestRouteMapping_Validate(t *testing.T) {
	tests := []struct {
		name        string
		route       gateway.RouteMapping
		expectError bool
	}{
		{
			name:  "valid GET route",
			route: gateway.RouteMapping{Path: "/orders", Methods: "GET", Workflow: "orders"},
		},
		{
			name: "valid route with timeout",
			route: gateway.RouteMapping{
				Path:     "/orders",
				Methods:  "get, post",
				Workflow: "orders",
				Timeout:  gateway.TimeoutConfig{DeadlineStr: "30s", LateCompletion: "SUPPRESS"},
			},
		},
		{
			name:        "empty path",
			route:       gateway.RouteMapping{Methods: "GET", Workflow: "orders"},
			expectError: true,
		},
		{
			name:        "relative path",
			route:       gateway.RouteMapping{Path: "orders", Methods: "GET", Workflow: "orders"},
			expectError: true,
		},
		{
			name:        "empty methods",
			route:       gateway.RouteMapping{Path: "/orders", Methods: " , ", Workflow: "orders"},
			expectError: true,
		},
		{
			name:        "invalid method",
			route:       gateway.RouteMapping{Path: "/orders", Methods: "GET,FETCH", Workflow: "orders"},
			expectError: true,
		},
		{
			name:        "missing workflow",
			route:       gateway.RouteMapping{Path: "/orders", Methods: "GET"},
			expectError: true,
		},
		{
			name: "bad heartbeat interval",
			route: gateway.RouteMapping{Path: "/orders", Methods: "GET", Workflow: "orders",
				Heartbeat: gateway.HeartbeatConfig{IntervalStr: "soon"}},
			expectError: true,
		},
		{
			name: "negative heartbeat interval",
			route: gateway.RouteMapping{Path: "/orders", Methods: "GET", Workflow: "orders",
				Heartbeat: gateway.HeartbeatConfig{IntervalStr: "-1s"}},
			expectError: true,
		},
		{
			name: "negative deadline",
			route: gateway.RouteMapping{Path: "/orders", Methods: "GET", Workflow: "orders",
				Timeout: gateway.TimeoutConfig{DeadlineStr: "-5s"}},
			expectError: true,
		},
		{
			name: "interim late status",
			route: gateway.RouteMapping{Path: "/orders", Methods: "GET", Workflow: "orders",
				Timeout: gateway.TimeoutConfig{DeadlineStr: "5s", LateStatus: 102}},
			expectError: true,
		},
		{
			name: "unknown late completion",
			route: gateway.RouteMapping{Path: "/orders", Methods: "GET", Workflow: "orders",
				Timeout: gateway.TimeoutConfig{LateCompletion: "ignore"}},
			expectError: true,
		},
		{
			name: "bad warn_after",
			route: gateway.RouteMapping{Path: "/orders", Methods: "GET", Workflow: "orders",
				WarnAfterStr: "later"},
			expectError: true,
		},
		{
			name: "request size too large",
			route: gateway.RouteMapping{Path: "/orders", Methods: "GET", Workflow: "orders",
				MaxRequestSize: 200 * 1024 * 1024},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.route.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsInvalid(err), "expected invalid error, got %v", err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRouteMapping_AllowedMethods(t *testing.T) {
	route := gateway.RouteMapping{Path: "/orders", Methods: "post, get,GET", Workflow: "orders"}
	require.NoError(t, route.Validate())

	assert.Equal(t, []string{http.MethodGet, http.MethodOptions, http.MethodPost}, route.AllowedMethods())
	assert.Equal(t, "GET, OPTIONS, POST", route.AllowHeader())

	methods := route.AllowedMethods()
	methods[0] = "MUTATED"
	assert.Equal(t, http.MethodGet, route.AllowedMethods()[0], "AllowedMethods returns a copy")
}

func TestRouteMapping_Defaults(t *testing.T) {
	route := gateway.RouteMapping{Path: "/orders", Methods: "GET", Workflow: "orders"}
	require.NoError(t, route.Validate())

	assert.True(t, route.HeartbeatEnabled())
	assert.Equal(t, exchange.DefaultHeartbeatInterval, route.HeartbeatInterval())
	assert.Equal(t, time.Duration(0), route.Deadline())
	assert.Equal(t, time.Duration(0), route.WarnAfter())

	policy := route.Policy(nil)
	assert.False(t, policy.Bounded())
	assert.Equal(t, http.StatusAccepted, policy.LateStatus)
	assert.Equal(t, exchange.LateAttempt, policy.LateCompletion)
}

func TestRouteMapping_ParsedValues(t *testing.T) {
	route := gateway.RouteMapping{
		Path:         "/orders",
		Methods:      "GET",
		Workflow:     "orders",
		Heartbeat:    gateway.HeartbeatConfig{IntervalStr: "5s"},
		Timeout:      gateway.TimeoutConfig{DeadlineStr: "30s", LateStatus: 504, LateCompletion: "Suppress"},
		WarnAfterStr: "2s",
	}
	require.NoError(t, route.Validate())

	assert.Equal(t, 5*time.Second, route.HeartbeatInterval())
	assert.Equal(t, 30*time.Second, route.Deadline())
	assert.Equal(t, 2*time.Second, route.WarnAfter())

	policy := route.Policy(nil)
	assert.True(t, policy.Bounded())
	assert.Equal(t, 504, policy.LateStatus)
	assert.Equal(t, exchange.LateSuppress, policy.LateCompletion)
}

func TestConfig_Validate(t *testing.T) {
	valid := gateway.RouteMapping{Path: "/orders", Methods: "GET", Workflow: "orders"}

	tests := []struct {
		name        string
		config      gateway.Config
		expectError bool
	}{
		{
			name:   "valid config",
			config: gateway.Config{Routes: []gateway.RouteMapping{valid}},
		},
		{
			name:        "no routes",
			config:      gateway.Config{},
			expectError: true,
		},
		{
			name:        "duplicate paths",
			config:      gateway.Config{Routes: []gateway.RouteMapping{valid, valid}},
			expectError: true,
		},
		{
			name:        "negative request size",
			config:      gateway.Config{Routes: []gateway.RouteMapping{valid}, MaxRequestSize: -1},
			expectError: true,
		},
		{
			name:        "request size too large",
			config:      gateway.Config{Routes: []gateway.RouteMapping{valid}, MaxRequestSize: 101 * 1024 * 1024},
			expectError: true,
		},
		{
			name:        "cors without origins",
			config:      gateway.Config{Routes: []gateway.RouteMapping{valid}, EnableCORS: true},
			expectError: true,
		},
		{
			name: "cors with origins",
			config: gateway.Config{Routes: []gateway.RouteMapping{valid}, EnableCORS: true,
				CORSOrigins: []string{"https://app.example.com"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_DefaultsAndLimits(t *testing.T) {
	cfg := gateway.Config{Routes: []gateway.RouteMapping{
		{Path: "/a", Methods: "POST", Workflow: "a"},
		{Path: "/b", Methods: "POST", Workflow: "b", MaxRequestSize: 512},
	}}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, gateway.DefaultMaxRequestSize, cfg.MaxRequestSize)
	assert.Equal(t, gateway.DefaultMaxRequestSize, cfg.RequestLimit(&cfg.Routes[0]))
	assert.Equal(t, int64(512), cfg.RequestLimit(&cfg.Routes[1]))
	assert.Equal(t, []string{"OPTIONS", "POST"}, cfg.Routes[0].AllowedMethods(), "Validate parses routes in place")

	def := gateway.DefaultConfig()
	assert.Empty(t, def.Routes)
	assert.False(t, def.EnableCORS)
	assert.Equal(t, gateway.DefaultMaxRequestSize, def.MaxRequestSize)
}

func TestRoles(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, gateway.RolesFromContext(ctx))

	ctx = gateway.WithRoles(ctx, "admin", " ", " ops ")
	assert.Equal(t, []string{"admin", "ops"}, gateway.RolesFromContext(ctx))
}
