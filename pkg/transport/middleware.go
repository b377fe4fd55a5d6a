package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/rhuss/vizlaunch/pkg/api"
)

// Middleware decorates a Launcher.
type Middleware func(Launcher) Launcher

// Chain composes middleware so that the first argument runs outermost:
// Chain(a, b)(l) launches through a, then b, then l.
func Chain(mws ...Middleware) Middleware {
	return func(l Launcher) Launcher {
		for i := len(mws) - 1; i >= 0; i-- {
			l = mws[i](l)
		}
		return l
	}
}

// Recovery turns a panic below it into a server error, so one bad launch
// does not take the process down.
func Recovery() Middleware {
	return func(next Launcher) Launcher {
		return LauncherFunc(func(ctx context.Context, req *api.LaunchRequest) (resp *api.LaunchResponse, err error) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				slog.Error("launcher panicked",
					"request_id", RequestIDFromContext(ctx),
					"language", req.Language,
					"panic", fmt.Sprint(p),
					"stack", string(debug.Stack()),
				)
				resp, err = nil, api.NewServerError(fmt.Sprintf("Exception occurred: %v", p))
			}()
			return next.Launch(ctx, req)
		})
	}
}

type requestIDKey struct{}

// maxRequestIDLen bounds client supplied request IDs.
const maxRequestIDLen = 128

// RequestIDFromContext returns the request ID, or "" when none is set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID stores id as the request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID assigns a fresh request ID to launches that arrive without one.
func RequestID() Middleware {
	return func(next Launcher) Launcher {
		return LauncherFunc(func(ctx context.Context, req *api.LaunchRequest) (*api.LaunchResponse, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.Launch(ctx, req)
		})
	}
}

// NewRequestID returns a random UUID.
func NewRequestID() string {
	return uuid.NewString()
}

// ValidRequestID reports whether a client supplied ID can be echoed back:
// non-empty, bounded, and printable ASCII only.
func ValidRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
