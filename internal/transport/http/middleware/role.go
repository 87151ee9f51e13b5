package middleware

import (
	"net/http"
	"slices"
)

// Roles carried in the JWT role claim.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// RequireRole returns middleware that allows access only to users whose JWT
// role matches one of the provided role names.
func RequireRole(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if slices.Contains(allowedRoles, claims.Role) {
				next.ServeHTTP(w, r)
				return
			}
			writeJSONError(w, http.StatusForbidden, "forbidden")
		})
	}
}
