// Package http serves the vizlaunch API over HTTP.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/storage"
	"github.com/rhuss/vizlaunch/pkg/transport"
)

// Adapter routes HTTP requests to the launcher and the execution store.
type Adapter struct {
	launcher transport.Launcher
	store    transport.ExecutionStore // nil when history is disabled
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64

	// Languages backs GET /v1/languages. Nil disables the endpoint.
	Languages *api.LanguageRegistry

	// Canceller lets DELETE /v1/executions/{id} stop a running execution.
	Canceller transport.Canceller
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 2 << 20, // 2 MB
	}
}

// NewAdapter creates an HTTP adapter. The store is optional; when nil, the
// execution history endpoints answer 501. Middleware is applied to the
// launcher in the given order.
func NewAdapter(launcher transport.Launcher, store transport.ExecutionStore, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		launcher = transport.Chain(middlewares...)(launcher)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		launcher: launcher,
		store:    store,
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /launch-container", a.handleLaunch)
	a.mux.HandleFunc("POST /v1/executions", a.handleLaunch)
	a.mux.HandleFunc("GET /v1/executions", a.handleListExecutions)
	a.mux.HandleFunc("GET /v1/executions/{id}", a.handleGetExecution)
	a.mux.HandleFunc("DELETE /v1/executions/{id}", a.handleDeleteExecution)
	a.mux.HandleFunc("GET /v1/languages", a.handleListLanguages)

	return a
}

// Handler returns the http.Handler for this adapter, including X-Request-ID
// propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// httpRequestIDMiddleware puts the request ID into the context, taking a
// well-formed client X-Request-ID when present, and echoes it back.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !transport.ValidRequestID(id) {
			id = transport.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

// decodeJSON decodes exactly one JSON value from body. Trailing whitespace is
// allowed, any other trailing data is an error.
func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return err
		}
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

// handleLaunch handles POST /launch-container and POST /v1/executions.
func (a *Adapter) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.LaunchRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	resp, err := a.launcher.Launch(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetExecution handles GET /v1/executions/{id}.
func (a *Adapter) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w, "execution retrieval") {
		return
	}
	id, ok := executionID(w, r)
	if !ok {
		return
	}

	exec, err := a.store.GetExecution(r.Context(), id)
	if err != nil {
		writeStoreError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// handleDeleteExecution handles DELETE /v1/executions/{id}. A running
// execution is cancelled; a finished one is deleted from the store.
func (a *Adapter) handleDeleteExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := executionID(w, r)
	if !ok {
		return
	}

	if a.config.Canceller != nil && a.config.Canceller.Cancel(r.Context(), id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if !a.requireStore(w, "execution deletion") {
		return
	}
	if err := a.store.DeleteExecution(r.Context(), id); err != nil {
		writeStoreError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListExecutions handles GET /v1/executions.
func (a *Adapter) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w, "execution listing") {
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	result, err := a.store.ListExecutions(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListLanguages handles GET /v1/languages.
func (a *Adapter) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	if a.config.Languages == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "language listing is not available"),
			http.StatusNotImplemented,
		)
		return
	}

	list := api.LanguageList{Object: "list", Data: []api.LanguageInfo{}}
	for _, l := range a.config.Languages.All() {
		list.Data = append(list.Data, l.Info())
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *Adapter) requireStore(w http.ResponseWriter, what string) bool {
	if a.store != nil {
		return true
	}
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("", what+" is not available (no store configured)"),
		http.StatusNotImplemented,
	)
	return false
}

func executionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !api.ValidateExecutionID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed execution ID"))
		return "", false
	}
	return id, true
}

// parseListOptions extracts pagination parameters from the query string.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{
		After:    q.Get("after"),
		Before:   q.Get("before"),
		Language: q.Get("language"),
		Status:   api.ExecutionStatus(q.Get("status")),
		Order:    q.Get("order"),
	}

	if opts.After != "" && opts.Before != "" {
		return opts, api.NewInvalidRequestError("after", "cannot use both 'after' and 'before' cursors")
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	switch opts.Status {
	case "", api.ExecutionStatusRunning, api.ExecutionStatusSucceeded, api.ExecutionStatusFailed, api.ExecutionStatusCancelled:
	default:
		return opts, api.NewInvalidRequestError("status", "status must be one of running, succeeded, failed, cancelled")
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewServerError(err.Error())
	}
	transport.WriteAPIError(w, apiErr)
}

func writeStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError("execution "+id+" not found"))
		return
	}
	writeError(w, err)
}
