package model

import (
	"fmt"
	"time"
)

// User represents a registered account: a donor, an orphanage, or an administrator.
type User struct {
	ID           int64      `json:"id"`
	FullName     string     `json:"full_name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	Address      string     `json:"address,omitempty"`
	PasswordHash string     `json:"-"`
	UserType     string     `json:"user_type"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// IsAdmin reports whether the user holds the administrator role.
func (u *User) IsAdmin() bool {
	return u != nil && RoleAtLeast(u.Role, RoleAdmin)
}

// Profile returns the public part of the user record.
func (u *User) Profile() *Profile {
	return &Profile{ID: u.ID, FullName: u.FullName, Email: u.Email, Phone: u.Phone}
}

// Profile is the public view of a user attached to donations and requests.
type Profile struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
}

// Roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User types.
const (
	UserTypeDonor     = "donor"
	UserTypeOrphanage = "orphanage"
	UserTypeAdmin     = "admin"
)

// MinPasswordLength is the shortest password accepted on registration or reset.
const MinPasswordLength = 8

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin: 2,
		RoleUser:  1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// ValidUserType reports whether t may be chosen at registration.
// The admin type is reserved for provisioned accounts.
func ValidUserType(t string) bool {
	return t == UserTypeDonor || t == UserTypeOrphanage
}

// ValidatePassword checks the password policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength)}
	}
	return nil
}

// LoginEvent records a login attempt.
type LoginEvent struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Email     string    `json:"email"`
	Success   bool      `json:"success"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
