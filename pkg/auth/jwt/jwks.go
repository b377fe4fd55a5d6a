package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// minRefresh limits how often an unknown key ID can force a JWKS fetch.
const minRefresh = time.Minute

// maxJWKSBytes caps the JWKS response size.
const maxJWKSBytes = 1 << 20

// keySet caches the verification keys of one JWKS endpoint.
type keySet struct {
	url    string
	client *http.Client
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	keys    map[string]any
	fetched time.Time
}

func newKeySet(url string, client *http.Client, ttl time.Duration) *keySet {
	return &keySet{url: url, client: client, ttl: ttl, now: time.Now}
}

// lookup returns the key for kid, refreshing the set when it is stale or
// the kid is unknown. An empty kid matches a set holding a single key.
// When a refresh fails a previously fetched key is still returned.
func (s *keySet) lookup(ctx context.Context, kid string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	age := now.Sub(s.fetched)
	key, ok := s.find(kid)
	if ok && age < s.ttl {
		return key, nil
	}

	if s.keys == nil || age >= s.ttl || age >= minRefresh {
		if err := s.refresh(ctx); err != nil {
			if ok {
				slog.Warn("jwks refresh failed, using cached key", "url", s.url, "error", err)
				return key, nil
			}
			return nil, err
		}
		key, ok = s.find(kid)
	}
	if !ok {
		return nil, fmt.Errorf("no key with id %q in JWKS", kid)
	}
	return key, nil
}

func (s *keySet) find(kid string) (any, bool) {
	if kid == "" && len(s.keys) == 1 {
		for _, k := range s.keys {
			return k, true
		}
	}
	k, ok := s.keys[kid]
	return k, ok
}

// refresh replaces the cached keys. Must be called with s.mu held.
func (s *keySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("jwks request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned HTTP %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBytes)).Decode(&doc); err != nil {
		return fmt.Errorf("decoding jwks: %w", err)
	}

	keys := make(map[string]any, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			slog.Warn("skipping jwks key", "kid", k.Kid, "kty", k.Kty, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}

	s.keys = keys
	s.fetched = s.now()
	slog.Debug("jwks refreshed", "url", s.url, "keys", len(keys))
	return nil
}

// jwk is one entry of a JSON Web Key Set.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`

	// RSA
	N string `json:"n"`
	E string `json:"e"`

	// EC
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (k jwk) publicKey() (any, error) {
	switch k.Kty {
	case "RSA":
		n, err := decodeBigInt(k.N)
		if err != nil {
			return nil, fmt.Errorf("modulus: %w", err)
		}
		e, err := decodeBigInt(k.E)
		if err != nil {
			return nil, fmt.Errorf("exponent: %w", err)
		}
		if !e.IsInt64() || e.Int64() > 1<<31-1 {
			return nil, errors.New("exponent out of range")
		}
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil

	case "EC":
		var curve elliptic.Curve
		switch k.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		case "P-521":
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("unsupported curve %q", k.Crv)
		}
		x, err := decodeBigInt(k.X)
		if err != nil {
			return nil, fmt.Errorf("x: %w", err)
		}
		y, err := decodeBigInt(k.Y)
		if err != nil {
			return nil, fmt.Errorf("y: %w", err)
		}
		if !curve.IsOnCurve(x, y) {
			return nil, errors.New("point is not on curve")
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil

	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}

func decodeBigInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("missing")
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
