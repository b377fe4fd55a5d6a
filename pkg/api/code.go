package api

import (
	"fmt"
	"strings"
)

// PlaceholderCode replaces a snippet that is empty or only whitespace.
const PlaceholderCode = "# No user code provided. You can set output_mode = \"static\", \"interactive\", or \"3d\"\n"

// PrepareCode returns the source that is written to the container.
// Blank code becomes PlaceholderCode. A non-empty mode is prepended as an
// output_mode assignment that the driver scripts read; the caller must have
// validated it.
func PrepareCode(code string, mode OutputMode) string {
	if strings.TrimSpace(code) == "" {
		code = PlaceholderCode
	}
	if mode == "" {
		return code
	}
	return fmt.Sprintf("output_mode = '%s'\n%s", mode, code)
}
