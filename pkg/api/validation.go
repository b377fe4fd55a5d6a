package api

import (
	"fmt"
	"strings"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxCodeSize int
	// MaxTimeoutSeconds caps timeout_seconds. Zero disables the check.
	MaxTimeoutSeconds int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxCodeSize:       1 << 20, // 1MB
		MaxTimeoutSeconds: 300,
	}
}

// ValidateRequest checks a LaunchRequest for validity. It returns an
// *APIError describing the first validation failure, or nil if the request
// is valid. Empty code is accepted; PrepareCode substitutes a placeholder.
func ValidateRequest(req *LaunchRequest, langs *LanguageRegistry, cfg ValidationConfig) *APIError {
	if req == nil {
		return NewInvalidRequestError("", "request body is required")
	}

	if _, ok := langs.Lookup(req.Language); !ok {
		return NewInvalidRequestError("language", "Unsupported language: "+req.Language)
	}

	if cfg.MaxCodeSize > 0 && len(req.Code) > cfg.MaxCodeSize {
		return NewInvalidRequestError("code",
			fmt.Sprintf("code exceeds maximum size of %d bytes", cfg.MaxCodeSize))
	}

	if req.OutputMode != "" {
		if _, ok := ParseOutputMode(req.OutputMode); !ok {
			return NewInvalidRequestError("output_mode",
				fmt.Sprintf("output_mode must be one of %s", outputModeList()))
		}
	}

	if req.TimeoutSeconds < 0 {
		return NewInvalidRequestError("timeout_seconds", "timeout_seconds must not be negative")
	}
	if cfg.MaxTimeoutSeconds > 0 && req.TimeoutSeconds > cfg.MaxTimeoutSeconds {
		return NewInvalidRequestError("timeout_seconds",
			fmt.Sprintf("timeout_seconds exceeds maximum of %d", cfg.MaxTimeoutSeconds))
	}

	return nil
}

// ParseOutputMode matches s against the known output modes, ignoring case.
func ParseOutputMode(s string) (OutputMode, bool) {
	for _, m := range ValidOutputModes {
		if strings.EqualFold(string(m), strings.TrimSpace(s)) {
			return m, true
		}
	}
	return "", false
}

func outputModeList() string {
	quoted := make([]string, len(ValidOutputModes))
	for i, m := range ValidOutputModes {
		quoted[i] = "'" + string(m) + "'"
	}
	return strings.Join(quoted, ", ")
}
