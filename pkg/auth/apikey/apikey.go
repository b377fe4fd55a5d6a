// Package apikey authenticates static API keys sent in the X-API-Key
// header or as a bearer token. Only SHA-256 digests of the keys are kept.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rhuss/vizlaunch/pkg/auth"
)

// HeaderName is the header used by the browser frontend and vizctl.
const HeaderName = "X-API-Key"

// Key binds a secret to the identity it authenticates.
type Key struct {
	Secret   string
	Identity auth.Identity
}

type entry struct {
	digest   [sha256.Size]byte
	identity auth.Identity
}

// Authenticator checks presented keys against a fixed set.
type Authenticator struct {
	entries []entry
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New hashes keys and returns an authenticator for them.
func New(keys ...Key) *Authenticator {
	a := &Authenticator{entries: make([]entry, 0, len(keys))}
	for _, k := range keys {
		a.entries = append(a.entries, entry{
			digest:   sha256.Sum256([]byte(k.Secret)),
			identity: k.Identity,
		})
	}
	return a
}

// Authenticate skips requests without a key and rejects unknown keys.
// Every entry is compared so timing does not reveal which one matched.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	secret, ok := credential(r)
	if !ok {
		return auth.Skip()
	}
	if secret == "" {
		return auth.Reject(auth.ErrUnauthenticated)
	}

	digest := sha256.Sum256([]byte(secret))
	match := -1
	for i := range a.entries {
		if subtle.ConstantTimeCompare(digest[:], a.entries[i].digest[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return auth.Reject(auth.ErrUnauthenticated)
	}

	id := a.entries[match].identity
	return auth.Accept(&id)
}

// credential returns the presented key. X-API-Key wins over Authorization.
func credential(r *http.Request) (string, bool) {
	if v, ok := r.Header[http.CanonicalHeaderKey(HeaderName)]; ok && len(v) > 0 {
		return strings.TrimSpace(v[0]), true
	}
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}
