package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rhuss/vizlaunch/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// launch with the request ID, language, outcome and duration. Client
// errors log at WARN, everything else that fails at ERROR.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Launcher) Launcher {
		return LauncherFunc(func(ctx context.Context, req *api.LaunchRequest) (*api.LaunchResponse, error) {
			start := time.Now()

			resp, err := next.Launch(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("language", req.Language),
				slog.Int("code_bytes", len(req.Code)),
				slog.Duration("duration", time.Since(start)),
			}
			if resp != nil && resp.ExecutionID != "" {
				attrs = append(attrs, slog.String("execution_id", resp.ExecutionID))
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				level := slog.LevelError
				var apiErr *api.APIError
				if errors.As(err, &apiErr) && HTTPStatusFromError(apiErr) < 500 {
					level = slog.LevelWarn
				}
				logger.LogAttrs(ctx, level, "launch failed", attrs...)
			} else {
				attrs = append(attrs, slog.String("format", string(resp.Format)))
				logger.LogAttrs(ctx, slog.LevelInfo, "launch completed", attrs...)
			}

			return resp, err
		})
	}
}
