package auth

import (
	"context"
	"net/http"
)

type contextKey string

const identityKey contextKey = "identity"

// identity is the authenticated caller attached to the request context.
type identity struct {
	UserID string
	Email  string
}

// Middleware verifies the session cookie and attaches the caller identity to
// the request context. With an empty secret the deployment is anonymous and
// every request passes with the empty identity.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(cookieName)
			if err != nil {
				http.Error(w, "Missing auth", http.StatusUnauthorized)
				return
			}

			claims, err := VerifyToken(secret, cookie.Value)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity{
				UserID: claims.Subject,
				Email:  claims.Email,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated caller's user id, or "" when anonymous.
func UserID(r *http.Request) string {
	if id, ok := r.Context().Value(identityKey).(identity); ok {
		return id.UserID
	}
	return ""
}

// Email returns the authenticated caller's email, or "" when anonymous.
func Email(r *http.Request) string {
	if id, ok := r.Context().Value(identityKey).(identity); ok {
		return id.Email
	}
	return ""
}
