package auth

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/observability"
	"github.com/rhuss/vizlaunch/pkg/transport"
)

// PublicPaths are served without authentication unless replaced with
// WithPublicPaths.
var PublicPaths = []string{"/healthz", "/readyz", "/metrics"}

type middlewareOptions struct {
	limiter RateLimiter
	public  []string
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareOptions)

// WithRateLimiter enforces limiter after authentication.
func WithRateLimiter(l RateLimiter) MiddlewareOption {
	return func(o *middlewareOptions) { o.limiter = l }
}

// WithPublicPaths replaces the paths that skip authentication.
func WithPublicPaths(paths ...string) MiddlewareOption {
	return func(o *middlewareOptions) { o.public = paths }
}

// Middleware authenticates every request through chain and stores the
// identity in the request context.
func Middleware(chain Chain, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := middlewareOptions{public: PublicPaths}
	for _, opt := range opts {
		opt(&o)
	}
	public := make(map[string]bool, len(o.public))
	for _, p := range o.public {
		public[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Verdict != Accepted || res.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"verdict", res.Verdict.String(),
					"error", res.Err,
				)
				writeUnauthorized(w)
				return
			}

			id := res.Identity
			if id.Subject == "" {
				slog.Error("authenticator accepted an identity without subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}

			if o.limiter != nil {
				if retry, ok := o.limiter.Allow(id); !ok {
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.TierName())
					observability.RateLimitRejectedTotal.WithLabelValues(id.TierName()).Inc()
					w.Header().Set("Retry-After", retryAfter(retry))
					transport.WriteAPIError(w, api.NewTooManyRequestsError(ErrRateLimited.Error()))
					return
				}
			}

			slog.Debug("authenticated", "subject", id.Subject, "tier", id.TierName(), "path", r.URL.Path)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireUnrestricted rejects identities limited to some languages. It
// guards surfaces where LanguagePolicy cannot see the caller.
func RequireUnrestricted(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := IdentityFrom(r.Context()); id.Restricted() {
			transport.WriteAPIError(w,
				api.NewPermissionError("", "this endpoint requires a key without language restrictions"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="vizlaunch"`)
	transport.WriteAPIError(w, api.NewAuthenticationError(ErrUnauthenticated.Error()))
}

// retryAfter formats d as whole seconds, at least one.
func retryAfter(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
