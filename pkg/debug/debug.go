// Package debug configures logging for vizlaunch and provides
// category-scoped debug output.
//
// Categories select WHAT to debug (VIZLAUNCH_DEBUG or logging.debug).
// The level selects HOW MUCH (VIZLAUNCH_LOG_LEVEL or logging.level).
//
//	debug.Log("sandbox", "docker run", "args", args)
//	if debug.Enabled("transport") { /* expensive formatting */ }
//
// Known categories: sandbox, launcher, transport, storage, auth, mcp, config, all.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// LevelTrace is below slog.LevelDebug. At TRACE the full code and output
// of every execution are logged.
const LevelTrace = slog.LevelDebug - 4

const (
	envCategories = "VIZLAUNCH_DEBUG"
	envLevel      = "VIZLAUNCH_LOG_LEVEL"
	envFormat     = "VIZLAUNCH_LOG_FORMAT"
)

var categories atomic.Pointer[map[string]bool]

func init() {
	setCategories(parseCategories(os.Getenv(envCategories)))
}

// Options are the config-file values for Init. Environment variables win.
type Options struct {
	Categories string
	Level      string
	// Format is "text" (default) or "json".
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Init installs the default slog logger and the enabled categories.
func Init(opts Options) {
	cats := os.Getenv(envCategories)
	if cats == "" {
		cats = opts.Categories
	}
	setCategories(parseCategories(cats))

	level := firstNonEmpty(os.Getenv(envLevel), opts.Level, "INFO")
	format := firstNonEmpty(os.Getenv(envFormat), opts.Format, "text")

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	slog.SetDefault(slog.New(NewHandler(out, format, ParseLevel(level))))
}

// NewHandler builds a slog handler for the given format and level.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	hopts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, hopts)
	}
	return slog.NewTextHandler(w, hopts)
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	m := *categories.Load()
	return m["all"] || m[category]
}

// Log emits a debug message for the given category.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the given category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// ParseLevel converts a level string to a slog.Level. Unknown values map to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories in sorted order.
func Categories() []string {
	m := *categories.Load()
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// Truncate returns s cut to at most maxLen bytes with "..." appended.
// It never splits a UTF-8 sequence.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func setCategories(m map[string]bool) {
	categories.Store(&m)
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
