package middleware

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/clipcutter/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

const keyPrefixLen = 8

// Auth checks the Bearer token against a single bcrypt-hashed API key.
// With no hash configured every request passes.
type Auth struct {
	hash []byte
}

func NewAuth(apiKeyHash string) *Auth {
	return &Auth{hash: []byte(apiKeyHash)}
}

func (a *Auth) Enabled() bool {
	return len(a.hash) > 0
}

// Authenticate validates the Bearer token and sets key_prefix in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}
		if len(rawKey) < keyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		if bcrypt.CompareHashAndPassword(a.hash, []byte(rawKey)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetKeyPrefix(r.Context(), rawKey[:keyPrefixLen])))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
