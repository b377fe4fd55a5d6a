// Package transport defines the handler interfaces and middleware chain for
// the vizlaunch HTTP transport.
//
// The transport layer decodes launch requests into the protocol types of
// pkg/api, dispatches them to a [Launcher], and encodes the result or the
// [api.APIError] back to the client.
//
// # Handler Interfaces
//
//   - [Launcher] runs one snippet and returns the visualization. It is the
//     only contract a deployment must provide.
//   - [ExecutionStore] keeps the execution history behind the /v1/executions
//     endpoints. It is optional; without it those endpoints answer 501.
//   - [Canceller] stops an in-flight execution on DELETE.
//
// # Middleware
//
// [Middleware] wraps a Launcher with cross-cutting concerns. Built-in
// middleware provides panic recovery, request ID assignment (X-Request-ID)
// and structured logging via log/slog.
package transport
