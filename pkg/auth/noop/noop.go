// Package noop provides the authenticator for auth.type "none". Every
// request is accepted as anonymous so rate limits still apply per tier.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/vizlaunch/pkg/auth"
)

// Authenticator accepts every request.
type Authenticator struct {
	// Tier assigned to anonymous callers. Empty means auth.DefaultTier.
	Tier string
}

var _ auth.Authenticator = (*Authenticator)(nil)

// Authenticate returns an anonymous identity.
func (a *Authenticator) Authenticate(context.Context, *http.Request) auth.Result {
	return auth.Accept(auth.Anonymous(a.Tier))
}
