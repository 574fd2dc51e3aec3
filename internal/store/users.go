package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/threadlink/threadlink/internal/model"
)

// NewUser holds the attributes of an account to be created.
type NewUser struct {
	FullName     string
	Email        string
	Phone        string
	Address      string
	PasswordHash string
	UserType     string
	Role         string
}

const userColumns = `id, full_name, email, phone, address, password_hash, user_type, role, created_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Phone, &u.Address,
		&u.PasswordHash, &u.UserType, &u.Role, &u.CreatedAt, &u.DeletedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser creates a new user. A second active account with the same
// email is rejected with a ValidationError.
func CreateUser(ctx context.Context, db *sql.DB, nu NewUser) (*model.User, error) {
	email := NormalizeEmail(nu.Email)
	if nu.Role == "" {
		nu.Role = model.RoleUser
	}

	existing, err := GetUserByEmail(ctx, db, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &model.ValidationError{Message: "user already exists"}
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO users (full_name, email, phone, address, password_hash, user_type, role)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(nu.FullName), email, nu.Phone, nu.Address, nu.PasswordHash, nu.UserType, nu.Role,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &model.ValidationError{Message: "user already exists"}
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID, including soft-deleted users.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the active user with the given email.
func GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND deleted_at IS NULL`,
		NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users, newest first.
func ListUsers(ctx context.Context, db *sql.DB) ([]model.User, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUserRole changes a user's role.
func UpdateUserRole(ctx context.Context, db *sql.DB, id int64, role string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET role = ? WHERE id = ? AND deleted_at IS NULL`,
		role, id,
	)
	if err != nil {
		return fmt.Errorf("updating user role: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user. Deleting a missing or already deleted
// user returns a NotFoundError.
func DeleteUser(ctx context.Context, db *sql.DB, id int64) error {
	res, err := db.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n == 0 {
		return &model.NotFoundError{Entity: "user", ID: id}
	}
	return nil
}

// CountAdmins returns the number of active administrators.
func CountAdmins(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = 'admin' AND deleted_at IS NULL`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting admins: %w", err)
	}
	return n, nil
}

// EnsureAdmin makes sure an active administrator with the given email
// exists. An existing account with that email is promoted; otherwise a new
// one is created with passwordHash. created reports whether a new account
// was inserted.
func EnsureAdmin(ctx context.Context, db *sql.DB, email, fullName, passwordHash string) (u *model.User, created bool, err error) {
	u, err = GetUserByEmail(ctx, db, email)
	if err != nil {
		return nil, false, err
	}
	if u != nil {
		if !u.IsAdmin() {
			if err := UpdateUserRole(ctx, db, u.ID, model.RoleAdmin); err != nil {
				return nil, false, err
			}
			u.Role = model.RoleAdmin
		}
		return u, false, nil
	}

	u, err = CreateUser(ctx, db, NewUser{
		FullName:     fullName,
		Email:        email,
		PasswordHash: passwordHash,
		UserType:     model.UserTypeAdmin,
		Role:         model.RoleAdmin,
	})
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
