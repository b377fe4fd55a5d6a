package auth

import (
	"context"

	"github.com/rhuss/vizlaunch/pkg/storage"
)

type identityKey struct{}

// WithIdentity stores id in ctx. A non-empty tenant is also set for
// storage scoping.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey{}, id)
	if id != nil && id.Tenant != "" {
		ctx = storage.SetTenant(ctx, id.Tenant)
	}
	return ctx
}

// IdentityFrom returns the identity stored in ctx, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
