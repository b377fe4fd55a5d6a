package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Verdict is an authenticator's vote on a request.
type Verdict int

const (
	// Accepted means the credentials are valid.
	Accepted Verdict = iota
	// Rejected means credentials were presented but are not valid.
	Rejected
	// Skipped means the authenticator does not handle these credentials.
	Skipped
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "skipped"
	}
}

// Result is the outcome of one authentication attempt.
type Result struct {
	Verdict  Verdict
	Identity *Identity // set when Accepted
	Err      error     // set when Rejected
}

// Accept returns an accepting result for id.
func Accept(id *Identity) Result { return Result{Verdict: Accepted, Identity: id} }

// Reject returns a rejecting result.
func Reject(err error) Result { return Result{Verdict: Rejected, Err: err} }

// Skip returns a result that defers to the next authenticator.
func Skip() Result { return Result{Verdict: Skipped} }

// DefaultTier is the rate-limit tier of identities that carry none.
const DefaultTier = "default"

// Identity is an authenticated caller.
type Identity struct {
	Subject string
	Tier    string
	// Tenant scopes the execution history. Empty means unscoped.
	Tenant string
	// Languages lists the canonical language names the caller may launch.
	// Empty allows every configured language.
	Languages []string
}

// Anonymous returns the identity used when authentication is disabled.
func Anonymous(tier string) *Identity {
	if tier == "" {
		tier = DefaultTier
	}
	return &Identity{Subject: "anonymous", Tier: tier}
}

// TierName returns the tier, falling back to DefaultTier.
func (id *Identity) TierName() string {
	if id == nil || id.Tier == "" {
		return DefaultTier
	}
	return id.Tier
}

// Restricted reports whether the identity is limited to some languages.
func (id *Identity) Restricted() bool {
	return id != nil && len(id.Languages) > 0
}

// CanLaunch reports whether the identity may run language.
func (id *Identity) CanLaunch(language string) bool {
	if !id.Restricted() {
		return true
	}
	for _, l := range id.Languages {
		if strings.EqualFold(l, language) {
			return true
		}
	}
	return false
}

// Authenticator inspects the credentials on a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

// Chain asks its authenticators in order. The first verdict other than
// Skipped decides; when every authenticator skips the request is rejected.
type Chain []Authenticator

// Authenticate runs the chain.
func (c Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c {
		if res := a.Authenticate(ctx, r); res.Verdict != Skipped {
			return res
		}
	}
	return Reject(ErrUnauthenticated)
}
