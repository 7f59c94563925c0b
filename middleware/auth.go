package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"complaintengine/models"
	"complaintengine/repository"
	"complaintengine/utils"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	roleKey   contextKey = "role"
)

// AuthMiddleware validates bearer JWTs and puts the caller's user_id and role in the context
type AuthMiddleware struct {
	users     *repository.UserRepository
	jwtSecret []byte
}

// NewAuthMiddleware creates a new auth middleware. users may be nil, in which
// case the token alone is trusted.
func NewAuthMiddleware(users *repository.UserRepository, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		users:     users,
		jwtSecret: []byte(jwtSecret),
	}
}

// RequireAuth middleware validates the token and sets user_id and role in context
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Unauthorized", "Authorization header required. Expected: Bearer <token>")
			return
		}

		claims, err := utils.ParseJWT(tokenString, m.jwtSecret)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token")
			return
		}

		role := claims.Role
		if m.users != nil {
			user, err := m.users.GetUserByID(r.Context(), claims.UserID)
			if err != nil || !user.IsActive {
				respondWithError(w, http.StatusUnauthorized, "Unauthorized", "User not found or inactive")
				return
			}
			role = string(user.Role)
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		ctx = context.WithValue(ctx, roleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithIdentity returns ctx carrying userID and role, as RequireAuth does
func WithIdentity(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

// UserIDFromContext returns the authenticated user id
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// RoleFromContext returns the authenticated user's role
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}

// ActorTypeFromContext maps the caller's role to a ledger actor type
func ActorTypeFromContext(ctx context.Context) models.ActorType {
	switch models.UserRole(RoleFromContext(ctx)) {
	case models.RoleCitizen:
		return models.ActorCitizen
	case models.RoleEmployee:
		return models.ActorEmployee
	case "":
		return models.ActorSystem
	default:
		return models.ActorOperator
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Helper function for error responses
func respondWithError(w http.ResponseWriter, statusCode int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: errorType, Message: message, Code: statusCode})
}
