/*
middleware.go - Session and role middleware

Every route except login requires a valid bearer token; the parsed
claims ride the request context so handlers can scope reads to the
caller's role without re-parsing. Admin-only mutations get a second
gate on top.
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/rollcall/attendance/auth"
	"github.com/rollcall/attendance/roster"
)

type contextKey int

const claimsKey contextKey = iota

// sessionMiddleware rejects requests without a valid bearer token and
// stashes the claims in the request context.
func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		claims, err := h.Auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid session", err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminOnly gates a route on the Admin role.
func (h *Handler) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionClaims(r).Role != roster.RoleAdmin {
			writeError(w, http.StatusForbidden, "Admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionClaims returns the claims placed by sessionMiddleware. Only
// valid on routes behind it.
func sessionClaims(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	if claims == nil {
		// Route wiring bug: handler outside sessionMiddleware.
		return &auth.Claims{}
	}
	return claims
}
