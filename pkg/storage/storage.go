// Package storage holds what the execution stores share: the sentinel
// errors they return and the tenant scope carried in the request context.
// The store interface itself is transport.ExecutionStore.
package storage

import "errors"

var (
	// ErrNotFound means the execution does not exist or is owned by
	// another tenant. Callers cannot tell the two apart.
	ErrNotFound = errors.New("execution not found")

	// ErrConflict means an execution with the same ID was already saved.
	ErrConflict = errors.New("execution already exists")
)
