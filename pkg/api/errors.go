package api

import (
	"encoding/json"
	"fmt"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeExecutionError  ErrorType = "execution_error"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeCancelled       ErrorType = "cancelled"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeUnavailable     ErrorType = "unavailable"
	ErrorTypeAuthentication  ErrorType = "authentication_error"
	ErrorTypePermission      ErrorType = "permission_denied"
)

// APIError represents a structured API error with type, param, and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse is the top-level error body. The "error" key holds the
// plain message so that clients written against the original endpoint,
// which only ever read a string, keep working.
type ErrorResponse struct {
	Error *APIError
}

type errorResponseWire struct {
	Error string    `json:"error"`
	Type  ErrorType `json:"type,omitempty"`
	Param string    `json:"param,omitempty"`
}

// MarshalJSON flattens the wrapped APIError into the wire format.
func (r ErrorResponse) MarshalJSON() ([]byte, error) {
	if r.Error == nil {
		return json.Marshal(errorResponseWire{})
	}
	return json.Marshal(errorResponseWire{
		Error: r.Error.Message,
		Type:  r.Error.Type,
		Param: r.Error.Param,
	})
}

// UnmarshalJSON accepts both the flat wire format and a bare
// {"error": "..."} body.
func (r *ErrorResponse) UnmarshalJSON(data []byte) error {
	var w errorResponseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	typ := w.Type
	if typ == "" {
		typ = ErrorTypeServerError
	}
	r.Error = &APIError{Type: typ, Param: w.Param, Message: w.Error}
	return nil
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewExecutionError creates an APIError for a script that ran but did not
// produce a usable visualization.
func NewExecutionError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeExecutionError,
		Message: message,
	}
}

// NewTimeoutError creates an APIError for executions that exceeded their deadline.
func NewTimeoutError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTimeout,
		Message: message,
	}
}

// NewCancelledError creates an APIError for executions cancelled before completion.
func NewCancelledError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeCancelled,
		Message: message,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting and capacity rejections.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Message: message,
	}
}

// NewUnavailableError creates an APIError for an unreachable container runtime.
func NewUnavailableError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeUnavailable,
		Message: message,
	}
}

// NewAuthenticationError creates an APIError for missing or invalid credentials.
func NewAuthenticationError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeAuthentication,
		Message: message,
	}
}

// NewPermissionError creates an APIError for an authenticated caller that
// may not perform the request.
func NewPermissionError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypePermission,
		Param:   param,
		Message: message,
	}
}
