package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/AlexKimmel/WebShield/internal/config"
)

type ctxKey int

const keyID ctxKey = 0

// Store is a static in-memory key store: secret -> keyID. Requests carrying
// a known secret are trusted and bypass the shield.
type Store struct {
	header   string
	bySecret map[string]string
}

// NewStatic creates a new static key store.
// header: HTTP header to read the key from (e.g., "X-API-Key")
// pairs: map of secret -> keyID
func NewStatic(header string, pairs map[string]string) *Store {
	h := header
	if h == "" {
		h = "X-API-Key"
	}
	return &Store{header: h, bySecret: pairs}
}

// FromConfig builds the store from configured keys, skipping incomplete ones.
func FromConfig(cfg config.Auth) *Store {
	pairs := make(map[string]string, len(cfg.Keys))
	for _, k := range cfg.Keys {
		if k.Secret != "" && k.ID != "" {
			pairs[k.Secret] = k.ID
		}
	}
	return NewStatic(cfg.Header, pairs)
}

func (s *Store) keyIDFor(secret string) (string, bool) {
	for known, id := range s.bySecret {
		if subtle.ConstantTimeCompare([]byte(known), []byte(secret)) == 1 {
			return id, true
		}
	}
	return "", false
}

// WithKeyID injects the key ID into context.
func WithKeyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyID, id)
}

// KeyIDFrom extracts the key ID from context (if present).
func KeyIDFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(keyID)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// Middleware marks requests with a recognised key as trusted. Unknown or
// missing keys are not an error: the request simply stays untrusted.
func (s *Store) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hname := s.header

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := strings.TrimSpace(r.Header.Get(hname))
			if secret == "" || len(s.bySecret) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if id, ok := s.keyIDFor(secret); ok {
				r = r.WithContext(WithKeyID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
