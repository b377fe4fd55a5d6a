package api

import "fmt"

// ValidateExecutionTransition allows "" -> running and running -> any
// terminal status. Terminal statuses never change again.
func ValidateExecutionTransition(from, to ExecutionStatus) *APIError {
	switch {
	case from == "" && to == ExecutionStatusRunning:
		return nil
	case from == ExecutionStatusRunning && to.IsTerminal():
		return nil
	}
	return NewInvalidRequestError("status", fmt.Sprintf("invalid transition from %q to %q", from, to))
}
