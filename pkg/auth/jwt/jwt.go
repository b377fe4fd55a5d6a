// Package jwt authenticates bearer JWTs issued by an OIDC provider. Keys
// are fetched from the provider's JWKS endpoint and cached.
package jwt

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/vizlaunch/pkg/auth"
)

// Config holds the JWT authenticator settings. Empty claim names use the
// defaults noted on each field.
type Config struct {
	// Issuer and Audience are checked when set.
	Issuer   string
	Audience string

	JWKSURL string

	SubjectClaim   string // "sub"
	TenantClaim    string // "tenant_id"
	TierClaim      string // "tier"
	LanguagesClaim string // "languages"

	// CacheTTL bounds how long fetched keys are trusted. Default 1h.
	CacheTTL time.Duration

	// HTTPClient fetches the JWKS. Default has a 10s timeout.
	HTTPClient *http.Client
}

func (c *Config) setDefaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.LanguagesClaim == "" {
		c.LanguagesClaim = "languages"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

// signingMethods are the accepted "alg" values.
var signingMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// Authenticator validates bearer JWTs.
type Authenticator struct {
	cfg    Config
	keys   *keySet
	parser *jwtlib.Parser
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates an authenticator. Keys are fetched on first use.
func New(cfg Config) *Authenticator {
	cfg.setDefaults()

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods(signingMethods),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		cfg:    cfg,
		keys:   newKeySet(cfg.JWKSURL, cfg.HTTPClient, cfg.CacheTTL),
		parser: jwtlib.NewParser(opts...),
	}
}

// Authenticate skips requests without a bearer token and rejects tokens
// that fail verification.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	scheme, raw, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return auth.Skip()
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return auth.Reject(auth.ErrUnauthenticated)
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return a.keys.lookup(ctx, kid)
	})
	if err != nil {
		slog.Debug("jwt rejected", "error", err)
		return auth.Reject(fmt.Errorf("invalid token: %w", err))
	}

	id, err := a.identity(claims)
	if err != nil {
		return auth.Reject(err)
	}
	return auth.Accept(id)
}

func (a *Authenticator) identity(claims jwtlib.MapClaims) (*auth.Identity, error) {
	subject, _ := claims[a.cfg.SubjectClaim].(string)
	if subject == "" {
		return nil, fmt.Errorf("token has no %q claim", a.cfg.SubjectClaim)
	}
	tenant, _ := claims[a.cfg.TenantClaim].(string)
	tier, _ := claims[a.cfg.TierClaim].(string)

	return &auth.Identity{
		Subject:   subject,
		Tier:      tier,
		Tenant:    tenant,
		Languages: stringList(claims[a.cfg.LanguagesClaim]),
	}, nil
}

// stringList accepts a space-separated string or a JSON array of strings.
func stringList(v any) []string {
	switch v := v.(type) {
	case string:
		return strings.Fields(v)
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
