package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/transport"
)

// LanguagePolicy rejects launches of languages the caller's identity does
// not allow. Unknown languages are left to request validation.
func LanguagePolicy(langs *api.LanguageRegistry) transport.Middleware {
	return func(next transport.Launcher) transport.Launcher {
		return transport.LauncherFunc(func(ctx context.Context, req *api.LaunchRequest) (*api.LaunchResponse, error) {
			id := IdentityFrom(ctx)
			if lang, ok := langs.Lookup(req.Language); ok && !id.CanLaunch(lang.Name) {
				slog.Warn("language not allowed for caller", "subject", id.Subject, "language", lang.Name)
				return nil, api.NewPermissionError("language",
					fmt.Sprintf("language %s is not enabled for this caller", lang.Name))
			}
			return next.Launch(ctx, req)
		})
	}
}
