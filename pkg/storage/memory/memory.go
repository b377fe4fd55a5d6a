// Package memory provides an in-memory implementation of
// transport.ExecutionStore for tests and single-instance deployments.
// Executions are lost when the process restarts. Optional LRU eviction
// bounds memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/storage"
	"github.com/rhuss/vizlaunch/pkg/transport"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// entry holds a stored execution and its metadata.
type entry struct {
	exec     *api.Execution
	tenantID string
	lruElem  *list.Element
}

// Store is an in-memory ExecutionStore with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently written
	maxSize int        // 0 = unlimited
}

var _ transport.ExecutionStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. Otherwise the least recently written execution is
// evicted once the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveExecution stores a new execution. The tenant in ctx owns it.
func (s *Store) SaveExecution(ctx context.Context, exec *api.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[exec.ID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(exec.ID)
	s.entries[exec.ID] = &entry{
		exec:     clone(exec),
		tenantID: storage.GetTenant(ctx),
		lruElem:  elem,
	}
	return nil
}

// UpdateExecution replaces a stored execution and marks it recently used.
func (s *Store) UpdateExecution(ctx context.Context, exec *api.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(ctx, exec.ID)
	if !ok {
		return storage.ErrNotFound
	}
	e.exec = clone(exec)
	s.lruList.MoveToFront(e.lruElem)
	return nil
}

// GetExecution retrieves an execution by ID, scoped by tenant when a
// tenant is present in the context.
func (s *Store) GetExecution(ctx context.Context, id string) (*api.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.lookup(ctx, id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(e.exec), nil
}

// DeleteExecution removes an execution.
func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(ctx, id)
	if !ok {
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, id)
	return nil
}

// ListExecutions returns a page of executions filtered by tenant,
// language and status, ordered by creation time.
func (s *Store) ListExecutions(ctx context.Context, opts transport.ListOptions) (*transport.ExecutionList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID := storage.GetTenant(ctx)

	var matches []*api.Execution
	for _, e := range s.entries {
		if tenantID != "" && e.tenantID != tenantID {
			continue
		}
		if opts.Language != "" && !strings.EqualFold(e.exec.Language, opts.Language) {
			continue
		}
		if opts.Status != "" && e.exec.Status != opts.Status {
			continue
		}
		matches = append(matches, e.exec)
	}

	// Default is desc (newest first). Ties break on ID.
	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.CreatedAt != b.CreatedAt {
			if asc {
				return a.CreatedAt < b.CreatedAt
			}
			return a.CreatedAt > b.CreatedAt
		}
		if asc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	if opts.After != "" {
		if idx := indexOf(matches, opts.After); idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	} else if opts.Before != "" {
		if idx := indexOf(matches, opts.Before); idx > 0 {
			matches = matches[:idx]
		} else {
			matches = nil
		}
	}

	limit := clampLimit(opts.Limit)
	hasMore := len(matches) > limit
	if hasMore {
		matches = matches[:limit]
	}

	result := &transport.ExecutionList{
		Object:  "list",
		Data:    make([]*api.Execution, 0, len(matches)),
		HasMore: hasMore,
	}
	for _, m := range matches {
		result.Data = append(result.Data, clone(m))
	}
	if len(matches) > 0 {
		result.FirstID = matches[0].ID
		result.LastID = matches[len(matches)-1].ID
	}
	return result, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored executions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// lookup must be called with s.mu held.
func (s *Store) lookup(ctx context.Context, id string) (*entry, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if tenantID := storage.GetTenant(ctx); tenantID != "" && e.tenantID != tenantID {
		return nil, false
	}
	return e, true
}

// evictOldest removes the least recently written entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}

func indexOf(execs []*api.Execution, id string) int {
	for i, e := range execs {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// clone copies an execution so callers cannot mutate stored state.
func clone(e *api.Execution) *api.Execution {
	c := *e
	if e.ExitCode != nil {
		v := *e.ExitCode
		c.ExitCode = &v
	}
	if e.CompletedAt != nil {
		v := *e.CompletedAt
		c.CompletedAt = &v
	}
	if e.Error != nil {
		v := *e.Error
		c.Error = &v
	}
	return &c
}
