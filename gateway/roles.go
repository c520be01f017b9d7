package gateway

import (
	"context"
	"strings"
)

type rolesKey struct{}

// WithRoles records the caller's resolved roles. Authentication middleware
// in front of the gateway calls it; the dispatcher copies the roles into
// unit metadata.
func WithRoles(ctx context.Context, roles ...string) context.Context {
	clean := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			clean = append(clean, r)
		}
	}
	return context.WithValue(ctx, rolesKey{}, clean)
}

// RolesFromContext returns the roles recorded by WithRoles, or nil.
func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(rolesKey{}).([]string)
	return roles
}
