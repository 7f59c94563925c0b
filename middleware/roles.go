package middleware

import (
	"net/http"

	"complaintengine/models"
)

// StaffRoles may assign, transfer and escalate complaints
var StaffRoles = []models.UserRole{
	models.RoleEmployee,
	models.RoleSupervisor,
	models.RoleDepartmentHead,
	models.RoleAdmin,
}

// RequireRole allows only callers whose role is in roles. It must run after RequireAuth.
func RequireRole(roles ...models.UserRole) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[string(role)] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[RoleFromContext(r.Context())] {
				respondWithError(w, http.StatusForbidden, "Forbidden", "Role not allowed for this endpoint")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
