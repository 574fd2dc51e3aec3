package model

import (
	"strings"
	"time"
)

// Donation is a donated clothing lot held in the inventory ledger.
type Donation struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Size        string    `json:"size,omitempty"`
	Condition   string    `json:"condition,omitempty"`
	Quantity    int       `json:"quantity"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Gender      string    `json:"gender,omitempty"`
	HasImage    bool      `json:"has_image"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Joined fields (not always populated).
	Owner *Profile `json:"owner,omitempty"`
}

// DonationInput holds the donor-supplied attributes of a new donation.
type DonationInput struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	Size        string `json:"size"`
	Condition   string `json:"condition"`
	Quantity    int    `json:"quantity"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Gender      string `json:"gender"`
}

// Validate checks the required fields.
func (in *DonationInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Category) == "" {
		return Invalid("title, category and quantity are required")
	}
	if in.Quantity <= 0 {
		return Invalid("quantity must be positive")
	}
	return nil
}

// Donation statuses.
const (
	DonationStatusPending  = "pending"
	DonationStatusApproved = "approved"
	DonationStatusRejected = "rejected"
)

// ValidDonationStatus reports whether s is a known donation status.
func ValidDonationStatus(s string) bool {
	switch s {
	case DonationStatusPending, DonationStatusApproved, DonationStatusRejected:
		return true
	}
	return false
}
