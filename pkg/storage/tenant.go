package storage

import "context"

type tenantKey struct{}

// SetTenant scopes store operations made with the returned context to
// tenant. An empty tenant leaves ctx unchanged.
func SetTenant(ctx context.Context, tenant string) context.Context {
	if tenant == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// GetTenant returns the tenant ctx is scoped to, or "" when it is not.
// Stores treat an unscoped context as seeing every record.
func GetTenant(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantKey{}).(string)
	return tenant
}
