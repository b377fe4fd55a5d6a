package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/rhuss/vizlaunch/pkg/storage"
)

// ErrCancelledByRequest is the cancellation cause of an execution stopped
// through DELETE /v1/executions/{id}.
var ErrCancelledByRequest = errors.New("execution cancelled by request")

// InFlightRegistry tracks the cancel functions of running executions so
// that they can be stopped by ID. It is safe for concurrent use.
type InFlightRegistry struct {
	mu      sync.Mutex
	running map[string]*inflightEntry
}

type inflightEntry struct {
	tenant string
	cancel context.CancelCauseFunc
}

func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{running: make(map[string]*inflightEntry)}
}

// Track records a running execution owned by the tenant of ctx. The
// returned func untracks it and must be called when the execution ends. It
// only removes the entry it added, so a later Track of the same ID is left
// alone.
func (r *InFlightRegistry) Track(ctx context.Context, id string, cancel context.CancelCauseFunc) (untrack func()) {
	e := &inflightEntry{tenant: storage.GetTenant(ctx), cancel: cancel}

	r.mu.Lock()
	r.running[id] = e
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		if r.running[id] == e {
			delete(r.running, id)
		}
		r.mu.Unlock()
	}
}

// Cancel stops the execution with ErrCancelledByRequest as the cause. It
// reports false when no execution with that ID is running for the tenant
// of ctx. As with the stores, an unscoped ctx sees every tenant.
func (r *InFlightRegistry) Cancel(ctx context.Context, id string) bool {
	tenant := storage.GetTenant(ctx)

	r.mu.Lock()
	e, ok := r.running[id]
	if ok && tenant != "" && e.tenant != tenant {
		ok = false
	}
	if ok {
		delete(r.running, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.cancel(ErrCancelledByRequest)
	return true
}

// Len returns the number of running executions.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}
