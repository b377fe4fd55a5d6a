package api

import "strings"

// DetectFormat classifies a trimmed visualization string.
func DetectFormat(output string) VisualizationFormat {
	switch {
	case strings.HasPrefix(output, "data:text/html"):
		return FormatHTMLDataURI
	case hasPrefixFold(output, "<html"), hasPrefixFold(output, "<!DOCTYPE"):
		return FormatHTML
	case strings.HasPrefix(output, "data:image"):
		return FormatImage
	default:
		return FormatText
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
