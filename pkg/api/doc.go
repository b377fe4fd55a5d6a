// Package api defines the protocol types for the vizlaunch service.
//
// A client submits a [LaunchRequest] naming a language and a code snippet.
// The service runs the snippet inside the language's container image and
// returns a [LaunchResponse] whose Visualization field carries whatever the
// image's driver script printed: usually a PNG data URI or an HTML document.
//
// The package performs no I/O. It provides:
//   - [LaunchRequest], [LaunchResponse]: the wire format of the launch endpoint
//   - [Execution]: the record kept in the execution history
//   - [Language], [LanguageRegistry]: supported languages and their images
//   - [APIError]: structured error with type, param, and message
//   - request validation, code preparation, and visualization format detection
package api
