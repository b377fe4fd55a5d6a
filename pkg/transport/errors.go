package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rhuss/vizlaunch/pkg/api"
)

// StatusClientClosedRequest (nginx's 499) answers an execution cancelled
// before it finished.
const StatusClientClosedRequest = 499

var errorStatus = map[api.ErrorType]int{
	api.ErrorTypeInvalidRequest:  http.StatusBadRequest,
	api.ErrorTypeAuthentication:  http.StatusUnauthorized,
	api.ErrorTypePermission:      http.StatusForbidden,
	api.ErrorTypeNotFound:        http.StatusNotFound,
	api.ErrorTypeTooManyRequests: http.StatusTooManyRequests,
	api.ErrorTypeCancelled:       StatusClientClosedRequest,
	api.ErrorTypeUnavailable:     http.StatusServiceUnavailable,
	api.ErrorTypeTimeout:         http.StatusGatewayTimeout,
}

// HTTPStatusFromError returns the status for err's type. Server and
// execution errors, and unknown types, are 500.
func HTTPStatusFromError(err *api.APIError) int {
	if status, ok := errorStatus[err.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse writes the JSON error body with an explicit status.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes apiErr with the status its type maps to.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
