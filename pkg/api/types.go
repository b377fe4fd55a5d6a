package api

import "time"

// OutputMode selects how the driver script renders the figure.
type OutputMode string

const (
	OutputModeStatic      OutputMode = "static"
	OutputModeInteractive OutputMode = "interactive"
	OutputMode3D          OutputMode = "3d"
)

// ValidOutputModes lists the accepted output modes in display order.
var ValidOutputModes = []OutputMode{OutputModeStatic, OutputModeInteractive, OutputMode3D}

// VisualizationFormat classifies the visualization string for renderers.
type VisualizationFormat string

const (
	FormatHTMLDataURI VisualizationFormat = "html_data_uri"
	FormatHTML        VisualizationFormat = "html"
	FormatImage       VisualizationFormat = "image"
	FormatText        VisualizationFormat = "text"
)

// ExecutionStatus represents the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusSucceeded ExecutionStatus = "succeeded"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSucceeded || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// LaunchRequest is the body of POST /launch-container.
type LaunchRequest struct {
	Language       string `json:"language"`
	Code           string `json:"code"`
	OutputMode     string `json:"output_mode,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// LaunchResponse is the success body of POST /launch-container.
type LaunchResponse struct {
	Visualization string              `json:"visualization"`
	Format        VisualizationFormat `json:"format,omitempty"`
	ExecutionID   string              `json:"execution_id,omitempty"`
	DurationMs    int64               `json:"duration_ms,omitempty"`
}

// Execution is the persisted record of one launch.
type Execution struct {
	ID          string              `json:"id"`
	Object      string              `json:"object"`
	Language    string              `json:"language"`
	OutputMode  string              `json:"output_mode,omitempty"`
	Status      ExecutionStatus     `json:"status"`
	ExitCode    *int                `json:"exit_code,omitempty"`
	Output      string              `json:"output,omitempty"`
	Error       *APIError           `json:"error,omitempty"`
	Format      VisualizationFormat `json:"format,omitempty"`
	DurationMs  int64               `json:"duration_ms"`
	CreatedAt   int64               `json:"created_at"`
	CompletedAt *int64              `json:"completed_at,omitempty"`
}

// NewExecution creates a running execution record.
func NewExecution(id, language, outputMode string, now time.Time) *Execution {
	return &Execution{
		ID:         id,
		Object:     "execution",
		Language:   language,
		OutputMode: outputMode,
		Status:     ExecutionStatusRunning,
		CreatedAt:  now.Unix(),
	}
}

// Complete moves the execution into a terminal state.
func (e *Execution) Complete(status ExecutionStatus, now time.Time) *APIError {
	if err := ValidateExecutionTransition(e.Status, status); err != nil {
		return err
	}
	e.Status = status
	ts := now.Unix()
	e.CompletedAt = &ts
	return nil
}

// LanguageInfo is the public view of a configured language.
type LanguageInfo struct {
	Name      string   `json:"name"`
	Aliases   []string `json:"aliases,omitempty"`
	Extension string   `json:"extension"`
	Image     string   `json:"image"`
}

// LanguageList is the body of GET /v1/languages.
type LanguageList struct {
	Object string         `json:"object"`
	Data   []LanguageInfo `json:"data"`
}
