package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/threadlink/threadlink/internal/auth"
	"github.com/threadlink/threadlink/internal/model"
	"github.com/threadlink/threadlink/internal/store"
)

// UsersHandler handles user administration endpoints (admin only).
type UsersHandler struct {
	DB *sql.DB
}

// List handles GET /api/admin/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Delete handles DELETE /api/admin/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user")
	if err != nil {
		writeError(w, r, err)
		return
	}

	caller := auth.CallerFrom(r.Context())
	if caller.ID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user deleted", "user", caller.Email, "deleted_user_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user removed"})
}

// LoginEvents handles GET /api/admin/login-events?limit=N.
func (h *UsersHandler) LoginEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 1000)
	}

	evs, err := store.ListLoginEvents(r.Context(), h.DB, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if evs == nil {
		evs = []model.LoginEvent{}
	}
	jsonResponse(w, http.StatusOK, evs)
}
