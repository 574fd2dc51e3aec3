package model

import "fmt"

// ValidationError reports malformed input or a violated business rule.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError reports that a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// InsufficientStockError reports that a donation cannot cover a requested quantity.
type InsufficientStockError struct {
	DonationID int64
	Title      string
	Available  int
	Requested  int
}

func (e *InsufficientStockError) Error() string {
	name := e.Title
	if name == "" {
		name = fmt.Sprintf("donation %d", e.DonationID)
	}
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", name, e.Available, e.Requested)
}

// AuthenticationError reports a missing or invalid caller identity.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

// AuthorizationError reports that the caller lacks the required role.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string { return e.Message }

// Invalid is shorthand for a formatted ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
