package transport

import (
	"context"

	"github.com/rhuss/vizlaunch/pkg/api"
)

// Launcher runs a snippet in a container and returns its visualization.
// Failures are reported as *api.APIError so the transport can pick the
// HTTP status; any other error is treated as a server error.
type Launcher interface {
	Launch(ctx context.Context, req *api.LaunchRequest) (*api.LaunchResponse, error)
}

// LauncherFunc is an adapter that allows using an ordinary function
// as a Launcher.
type LauncherFunc func(ctx context.Context, req *api.LaunchRequest) (*api.LaunchResponse, error)

// Launch calls f(ctx, req).
func (f LauncherFunc) Launch(ctx context.Context, req *api.LaunchRequest) (*api.LaunchResponse, error) {
	return f(ctx, req)
}

// Canceller stops an in-flight execution. Cancel reports whether the
// execution was running and visible to the tenant of ctx.
type Canceller interface {
	Cancel(ctx context.Context, id string) bool
}

// ListOptions controls pagination, filtering, and ordering for list operations.
type ListOptions struct {
	After    string // Cursor: return items after this ID.
	Before   string // Cursor: return items before this ID.
	Limit    int    // Maximum number of items to return (default 20, max 100).
	Language string // Filter by canonical language name.
	Status   api.ExecutionStatus
	Order    string // Sort order: "asc" or "desc" (default "desc").
}

// ExecutionList holds a paginated list of executions.
type ExecutionList struct {
	Object  string           `json:"object"`
	Data    []*api.Execution `json:"data"`
	HasMore bool             `json:"has_more"`
	FirstID string           `json:"first_id"`
	LastID  string           `json:"last_id"`
}

// ExecutionStore persists the execution history.
type ExecutionStore interface {
	// SaveExecution stores a new execution record. Returns
	// storage.ErrConflict if the ID already exists.
	SaveExecution(ctx context.Context, exec *api.Execution) error

	// UpdateExecution replaces an existing record. Returns
	// storage.ErrNotFound if it does not exist.
	UpdateExecution(ctx context.Context, exec *api.Execution) error

	// GetExecution retrieves an execution by ID.
	GetExecution(ctx context.Context, id string) (*api.Execution, error)

	// DeleteExecution removes an execution by ID.
	DeleteExecution(ctx context.Context, id string) error

	// ListExecutions returns a paginated list of executions, scoped to the
	// tenant in ctx when present.
	ListExecutions(ctx context.Context, opts ListOptions) (*ExecutionList, error)

	// HealthCheck verifies the store is functional.
	HealthCheck(ctx context.Context) error

	// Close releases connections and resources.
	Close() error
}
