package api

import (
	"crypto/rand"
	"strings"
)

// ExecutionIDPrefix starts every execution ID.
const ExecutionIDPrefix = "exec_"

const (
	idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	idLen      = 24
)

// NewExecutionID returns "exec_" followed by 24 random alphanumerics.
func NewExecutionID() string {
	var sb strings.Builder
	sb.Grow(len(ExecutionIDPrefix) + idLen)
	sb.WriteString(ExecutionIDPrefix)

	// Bytes >= 248 are dropped so every symbol is equally likely
	// (248 = 4 * 62).
	buf := make([]byte, idLen*2)
	for n := 0; n < idLen; {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand: " + err.Error())
		}
		for _, b := range buf {
			if b >= 248 {
				continue
			}
			sb.WriteByte(idAlphabet[int(b)%len(idAlphabet)])
			if n++; n == idLen {
				break
			}
		}
	}
	return sb.String()
}

// ValidateExecutionID reports whether id has the shape NewExecutionID
// produces.
func ValidateExecutionID(id string) bool {
	rest, ok := strings.CutPrefix(id, ExecutionIDPrefix)
	if !ok || len(rest) != idLen {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if strings.IndexByte(idAlphabet, rest[i]) < 0 {
			return false
		}
	}
	return true
}
