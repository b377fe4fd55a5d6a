package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rhuss/vizlaunch/pkg/auth"
	"github.com/rhuss/vizlaunch/pkg/auth/apikey"
	"github.com/rhuss/vizlaunch/pkg/auth/jwt"
	"github.com/rhuss/vizlaunch/pkg/auth/noop"
	"github.com/rhuss/vizlaunch/pkg/config"
	"github.com/rhuss/vizlaunch/pkg/sandbox"
	"github.com/rhuss/vizlaunch/pkg/sandbox/kubernetes"
)

// newRunner creates the container runtime selected by cfg.Runtime.
func newRunner(ctx context.Context, cfg config.SandboxConfig) (sandbox.Runner, error) {
	limits := sandbox.Limits{
		Network:   cfg.Network,
		Memory:    cfg.Memory,
		CPUs:      cfg.CPUs,
		PidsLimit: cfg.PidsLimit,
	}
	ws := &sandbox.Workspace{Dir: cfg.WorkDir}

	switch cfg.Runtime {
	case "docker-api":
		return sandbox.NewDockerRunner(ctx, sandbox.DockerOptions{
			Limits:         limits,
			MaxOutputBytes: cfg.MaxOutputBytes,
			Workspace:      ws,
		})

	case "remote":
		var acquirer sandbox.Acquirer
		if cfg.Remote.Template != "" {
			a, err := kubernetes.NewFromKubeconfig(kubernetes.Options{
				Template:     cfg.Remote.Template,
				Namespace:    cfg.Remote.Namespace,
				ClaimTimeout: cfg.Remote.ClaimTimeout,
			})
			if err != nil {
				return nil, err
			}
			slog.Info("remote runtime uses sandbox claims",
				"template", cfg.Remote.Template, "namespace", cfg.Remote.Namespace)
			acquirer = a
		} else {
			slog.Info("remote runtime uses a static sandbox", "url", cfg.Remote.URL)
			acquirer = &sandbox.StaticAcquirer{URL: cfg.Remote.URL}
		}
		return sandbox.NewRemoteRunner(acquirer), nil

	default:
		return &sandbox.CLIRunner{
			Binary:         cfg.DockerBinary,
			Limits:         limits,
			MaxOutputBytes: cfg.MaxOutputBytes,
			Workspace:      ws,
		}, nil
	}
}

// newAuthenticator builds the authenticator for cfg.Type.
func newAuthenticator(cfg config.AuthConfig) auth.Authenticator {
	switch cfg.Type {
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			subject := k.Subject
			if subject == "" {
				subject = "apikey"
			}
			keys = append(keys, apikey.Key{
				Secret: k.Key,
				Identity: auth.Identity{
					Subject:   subject,
					Tier:      k.ServiceTier,
					Tenant:    k.TenantID,
					Languages: k.Languages,
				},
			})
		}
		return apikey.New(keys...)

	case "jwt":
		return jwt.New(jwt.Config{
			Issuer:         cfg.JWT.Issuer,
			Audience:       cfg.JWT.Audience,
			JWKSURL:        cfg.JWT.JWKSURL,
			SubjectClaim:   cfg.JWT.UserClaim,
			TenantClaim:    cfg.JWT.TenantClaim,
			TierClaim:      cfg.JWT.TierClaim,
			LanguagesClaim: cfg.JWT.LanguagesClaim,
		})

	default:
		return &noop.Authenticator{}
	}
}

// newAuthMiddleware wires authentication and per-tier rate limiting.
// publicPaths are served without credentials.
func newAuthMiddleware(cfg config.AuthConfig, publicPaths ...string) func(http.Handler) http.Handler {
	opts := []auth.MiddlewareOption{auth.WithPublicPaths(publicPaths...)}
	if len(cfg.RateLimits) > 0 || cfg.DefaultRateLimit > 0 {
		opts = append(opts, auth.WithRateLimiter(auth.NewTierLimiter(cfg.RateLimits, cfg.DefaultRateLimit)))
	}
	return auth.Middleware(auth.Chain{newAuthenticator(cfg)}, opts...)
}
