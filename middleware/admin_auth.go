package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminAuth validates the static operator token. A bcrypt hash is preferred
// over a plaintext token when both are configured.
type AdminAuth struct {
	token     string
	tokenHash string
}

// NewAdminAuth creates the operator token check
func NewAdminAuth(token, tokenHash string) *AdminAuth {
	return &AdminAuth{token: token, tokenHash: tokenHash}
}

// RequireAdminAuth rejects requests without the operator token. Missing or mismatch → 403.
func (a *AdminAuth) RequireAdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.token == "" && a.tokenHash == "" {
			respondWithError(w, http.StatusForbidden, "Forbidden", "Admin access not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			respondWithError(w, http.StatusForbidden, "Forbidden", "Authorization header required")
			return
		}
		if !a.valid(token) {
			respondWithError(w, http.StatusForbidden, "Forbidden", "Invalid admin token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), "operator", "admin")))
	})
}

func (a *AdminAuth) valid(token string) bool {
	if a.tokenHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) == 1
}

// HashAdminToken returns the ADMIN_TOKEN_HASH value for an operator token
func HashAdminToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("admin token must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
