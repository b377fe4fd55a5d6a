package sandbox

import (
	"strings"
	"sync"
)

// OutputBuffer collects merged stdout and stderr up to a byte limit.
// Writes never fail so that the producer is not interrupted; bytes past
// the limit are dropped and Truncated reports true.
type OutputBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

// NewOutputBuffer returns a buffer capped at limit bytes. A limit of zero
// or less means unbounded.
func NewOutputBuffer(limit int) *OutputBuffer {
	return &OutputBuffer{limit: limit}
}

// Write implements io.Writer.
func (b *OutputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if b.limit > 0 {
		room := b.limit - len(b.buf)
		if room <= 0 {
			b.truncated = b.truncated || n > 0
			return n, nil
		}
		if len(p) > room {
			p = p[:room]
			b.truncated = true
		}
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

// String returns the captured output with line endings normalized.
func (b *OutputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return NormalizeLines(string(b.buf))
}

// Truncated reports whether any output was dropped.
func (b *OutputBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// NormalizeLines rewrites s so that every line, including the last, ends
// with a single "\n". CRLF endings become LF.
func NormalizeLines(s string) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	var sb strings.Builder
	sb.Grow(len(s) + 1)
	for _, line := range lines {
		sb.WriteString(strings.TrimSuffix(line, "\r"))
		sb.WriteByte('\n')
	}
	return sb.String()
}
