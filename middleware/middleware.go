package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/swissmarley/agile-compass/logging"
	"github.com/swissmarley/agile-compass/models"
	"github.com/swissmarley/agile-compass/store"
	"github.com/swissmarley/agile-compass/utils"
)

type contextKey string

const userContextKey contextKey = "actingUser"

// UserFromContext returns the authenticated user placed in the request
// context by JWTAuthMiddleware.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// JWTAuthMiddleware validates the bearer token and loads the acting user's
// profile into the request context for handlers downstream.
func JWTAuthMiddleware(st store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logging.Logger.Warnf("Event ID: JWT_AUTH_MISSING_HEADER, Description: Authorization header missing for request to %s %s", r.Method, r.URL.Path)
				http.Error(w, "Authorization header missing", http.StatusUnauthorized)
				return
			}

			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := utils.ValidateToken(tokenStr)
			if err != nil {
				logging.Logger.Warnf("Event ID: JWT_AUTH_INVALID_TOKEN, Description: Invalid token provided for request to %s %s: %v", r.Method, r.URL.Path, err)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			var user models.User
			if err := st.GetOne(r.Context(), store.CollectionUsers, claims.UserID, &user); err != nil {
				logging.Logger.Warnf("Event ID: JWT_AUTH_UNKNOWN_USER, Description: Token subject %s has no profile: %v", claims.UserID, err)
				http.Error(w, "Unknown user", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
