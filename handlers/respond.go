package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/swissmarley/agile-compass/middleware"
	"github.com/swissmarley/agile-compass/models"
	"github.com/swissmarley/agile-compass/services"
	"github.com/swissmarley/agile-compass/store"
)

func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrSprintAlreadyActive):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusForError(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// actingUser pulls the authenticated user out of the request context. The
// auth middleware guarantees it is present on protected routes.
func actingUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
	}
	return user, ok
}
