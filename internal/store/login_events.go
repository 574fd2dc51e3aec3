package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/threadlink/threadlink/internal/model"
)

// RecordLoginEvent stores a login attempt. userID is nil when the email did
// not match an account.
func RecordLoginEvent(ctx context.Context, db *sql.DB, userID *int64, email string, success bool, ip string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO login_events (user_id, email, success, ip_address) VALUES (?, ?, ?, ?)`,
		userID, NormalizeEmail(email), success, ip,
	)
	if err != nil {
		return fmt.Errorf("recording login event: %w", err)
	}
	return nil
}

// ListLoginEvents returns the most recent login attempts, newest first.
func ListLoginEvents(ctx context.Context, db *sql.DB, limit int) ([]model.LoginEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, email, success, ip_address, created_at
		 FROM login_events ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing login events: %w", err)
	}
	defer rows.Close()

	var events []model.LoginEvent
	for rows.Next() {
		var e model.LoginEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Email, &e.Success, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning login event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
