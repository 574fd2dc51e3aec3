package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/threadlink/threadlink/internal/auth"
	"github.com/threadlink/threadlink/internal/model"
	"github.com/threadlink/threadlink/internal/store"
)

// AuthMiddleware validates the bearer token, rejects revoked tokens and
// deleted accounts, and stores the caller in the request context. The admin
// flag comes from the stored user so role changes apply immediately.
func AuthMiddleware(secret string, db *sql.DB, revs *auth.Revocations) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				writeError(w, r, &model.AuthenticationError{Message: "not authorized, no token"})
				return
			}

			claims, err := auth.ValidateToken(secret, tokenStr)
			if err != nil {
				writeError(w, r, &model.AuthenticationError{Message: "not authorized, token failed"})
				return
			}

			revoked, err := revs.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if revoked {
				writeError(w, r, &model.AuthenticationError{Message: "token has been revoked"})
				return
			}

			user, err := store.GetUser(r.Context(), db, claims.UserID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if user == nil || user.DeletedAt != nil {
				writeError(w, r, &model.AuthenticationError{Message: "user no longer exists"})
				return
			}

			caller := &auth.Caller{
				ID:      user.ID,
				Email:   user.Email,
				IsAdmin: user.IsAdmin(),
				TokenID: claims.ID,
			}
			if claims.ExpiresAt != nil {
				caller.ExpiresAt = claims.ExpiresAt.Unix()
			}
			next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
		})
	}
}

// RequireAdmin rejects callers without the administrator role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := auth.CallerFrom(r.Context())
		if caller == nil {
			writeError(w, r, &model.AuthenticationError{Message: "not authenticated"})
			return
		}
		if !caller.IsAdmin {
			writeError(w, r, &model.AuthorizationError{Message: "not authorized as an admin"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireOwnerOrAdmin returns an AuthorizationError unless the caller owns
// the resource or is an administrator.
func requireOwnerOrAdmin(caller *auth.Caller, ownerID int64) error {
	if caller != nil && (caller.IsAdmin || caller.ID == ownerID) {
		return nil
	}
	return &model.AuthorizationError{Message: "not authorized to access this resource"}
}

type requestIDKey struct{}

// RequestIDFrom returns the request ID assigned by LoggingMiddleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware assigns every request an ID, echoes it in X-Request-ID
// and logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.RequestURI(),
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", id,
		)
	})
}

// CORSMiddleware allows the single-page app origins to call the API with
// credentials.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})
	return c.Handler
}
