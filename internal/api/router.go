package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/threadlink/threadlink/internal/auth"
	"github.com/threadlink/threadlink/internal/events"
	"github.com/threadlink/threadlink/internal/imaging"
)

// Options configures optional collaborators of the router.
type Options struct {
	// Events receives domain events after each committed change. Nil
	// discards them.
	Events events.Publisher

	// Revocations checks logged-out tokens. Nil creates a default one over
	// the database.
	Revocations *auth.Revocations

	Imaging imaging.Options
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, opts Options) (http.Handler, error) {
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Revocations == nil {
		revs, err := auth.NewRevocations(db, auth.DefaultRevocationCacheSize)
		if err != nil {
			return nil, err
		}
		opts.Revocations = revs
	}

	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret, Revocations: opts.Revocations}
	usersHandler := &UsersHandler{DB: db}
	donationsHandler := &DonationsHandler{DB: db, Events: opts.Events, Imaging: opts.Imaging}
	requestsHandler := &RequestsHandler{DB: db, Events: opts.Events}

	authMW := AuthMiddleware(jwtSecret, db, opts.Revocations)
	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	admin := func(h http.HandlerFunc) http.Handler { return authMW(RequireAdmin(h)) }

	// Public.
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Session.
	mux.Handle("GET /api/auth/me", authed(authHandler.Me))
	mux.Handle("PUT /api/auth/password", authed(authHandler.ChangePassword))
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))

	// Administration.
	mux.Handle("GET /api/admin/users", admin(usersHandler.List))
	mux.Handle("DELETE /api/admin/users/{id}", admin(usersHandler.Delete))
	mux.Handle("GET /api/admin/login-events", admin(usersHandler.LoginEvents))

	// Inventory ledger.
	mux.Handle("POST /api/donations", authed(donationsHandler.Create))
	mux.Handle("GET /api/donations", authed(donationsHandler.ListMine))
	mux.Handle("GET /api/donations/all", admin(donationsHandler.ListAll))
	mux.Handle("GET /api/donations/approved", authed(donationsHandler.ListApproved))
	mux.Handle("GET /api/donations/{id}", authed(donationsHandler.Get))
	mux.Handle("PUT /api/donations/{id}/status", admin(donationsHandler.SetStatus))
	mux.Handle("PUT /api/donations/{id}/image", authed(donationsHandler.UploadImage))
	mux.Handle("GET /api/donations/{id}/image", authed(donationsHandler.GetImage))

	// Requests and fulfillment.
	mux.Handle("POST /api/orphanage-requests", authed(requestsHandler.Create))
	mux.Handle("GET /api/orphanage-requests/my-requests", authed(requestsHandler.ListMine))
	mux.Handle("GET /api/orphanage-requests", admin(requestsHandler.List))
	mux.Handle("GET /api/orphanage-requests/{id}", authed(requestsHandler.Get))
	mux.Handle("PUT /api/orphanage-requests/{id}/status", admin(requestsHandler.SetStatus))
	mux.Handle("POST /api/orphanage-requests/{id}/fulfill", admin(requestsHandler.Fulfill))
	mux.Handle("DELETE /api/orphanage-requests/{id}", admin(requestsHandler.Delete))

	return mux, nil
}

// publish delivers an event without failing the request that caused it.
// The request context may already be cancelled once the response is
// written, so the publish gets its own deadline.
func publish(r *http.Request, p events.Publisher, eventType string, payload any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), events.PublishTimeout)
	defer cancel()
	if err := p.Publish(ctx, eventType, payload); err != nil {
		slog.Warn("failed to publish event", "type", eventType, "request_id", RequestIDFrom(r.Context()), "error", err)
	}
}
