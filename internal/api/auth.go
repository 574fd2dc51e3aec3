package api

import (
	"database/sql"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/threadlink/threadlink/internal/auth"
	"github.com/threadlink/threadlink/internal/model"
	"github.com/threadlink/threadlink/internal/store"
)

// AuthHandler handles registration, login and session endpoints.
type AuthHandler struct {
	DB          *sql.DB
	JWTSecret   string
	Revocations *auth.Revocations
}

type registerRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	UserType string `json:"user_type"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if strings.TrimSpace(req.FullName) == "" || !strings.Contains(req.Email, "@") {
		jsonError(w, http.StatusBadRequest, "full name and a valid email are required")
		return
	}
	if req.UserType == "" {
		req.UserType = model.UserTypeDonor
	}
	if !model.ValidUserType(req.UserType) {
		jsonError(w, http.StatusBadRequest, "user type must be donor or orphanage")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		writeError(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, store.NewUser{
		FullName:     req.FullName,
		Email:        req.Email,
		Phone:        req.Phone,
		Address:      req.Address,
		PasswordHash: hash,
		UserType:     req.UserType,
		Role:         model.RoleUser,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, user.ID, user.Email, user.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user registered", "user", user.Email, "user_type", user.UserType)
	jsonResponse(w, http.StatusCreated, authResponse{Token: token, User: user})
}

// Login handles POST /api/auth/login. Every attempt is recorded.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if req.Email == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "email and password required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r)

	user, err := store.GetUserByEmail(ctx, h.DB, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		var userID *int64
		if user != nil {
			userID = &user.ID
		}
		if err := store.RecordLoginEvent(ctx, h.DB, userID, req.Email, false, ip); err != nil {
			slog.Error("failed to record login event", "error", err)
		}
		slog.Warn("login failed", "email", req.Email, "remote", ip)
		writeError(w, r, &model.AuthenticationError{Message: "invalid email or password"})
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, user.ID, user.Email, user.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.RecordLoginEvent(ctx, h.DB, &user.ID, user.Email, true, ip); err != nil {
		slog.Error("failed to record login event", "error", err)
	}

	slog.Info("user logged in", "user", user.Email, "role", user.Role)
	jsonResponse(w, http.StatusOK, authResponse{Token: token, User: user})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFrom(r.Context())
	user, err := store.GetUser(r.Context(), h.DB, caller.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, r, &model.NotFoundError{Entity: "user", ID: caller.ID})
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFrom(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		jsonError(w, http.StatusBadRequest, "current and new password required")
		return
	}
	if err := model.ValidatePassword(req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, caller.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		writeError(w, r, &model.AuthenticationError{Message: "current password is incorrect"})
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.UpdateUserPassword(r.Context(), h.DB, caller.ID, hash); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user changed own password", "user", caller.Email)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// Logout handles POST /api/auth/logout by revoking the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFrom(r.Context())

	expires := time.Unix(caller.ExpiresAt, 0)
	if caller.ExpiresAt == 0 {
		expires = time.Now().Add(auth.TokenExpiry)
	}
	if err := h.Revocations.Revoke(r.Context(), caller.TokenID, expires); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user logged out", "user", caller.Email)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// clientIP returns the remote host of the request.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
