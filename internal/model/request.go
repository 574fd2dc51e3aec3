package model

import (
	"math"
	"time"
)

// MinBatchQuantity is the smallest total quantity a request may ask for.
const MinBatchQuantity = 5

// MaxRequestQuantity bounds a single line and the total of a request.
const MaxRequestQuantity = math.MaxInt32

// Request is an orphanage's batched ask for donated items.
type Request struct {
	ID            int64         `json:"id"`
	OrphanageID   int64         `json:"orphanage_id"`
	Items         []RequestItem `json:"items"`
	TotalQuantity int           `json:"total_quantity"`
	Notes         string        `json:"notes"`
	Status        string        `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// Joined fields (not always populated).
	Orphanage *Profile `json:"orphanage,omitempty"`
}

// RequestItem is one line of a request. Title through ImageURL are a
// snapshot of the donation taken when the request was created.
type RequestItem struct {
	DonationID        int64  `json:"donation_id"`
	RequestedQuantity int    `json:"requested_quantity"`
	Title             string `json:"title"`
	Category          string `json:"category"`
	Size              string `json:"size,omitempty"`
	Gender            string `json:"gender,omitempty"`
	Condition         string `json:"condition,omitempty"`
	ImageURL          string `json:"image_url,omitempty"`

	// Current state of the referenced donation, for display.
	Donation *DonationRef `json:"donation,omitempty"`
}

// DonationRef is the display view of a donation referenced by a request line.
type DonationRef struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Size      string `json:"size,omitempty"`
	Condition string `json:"condition,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`
}

// LineInput is a submitted (donation, quantity) pair.
type LineInput struct {
	DonationID        int64 `json:"donation_id"`
	RequestedQuantity int   `json:"requested_quantity"`
}

// Request statuses.
const (
	RequestStatusPending   = "pending"
	RequestStatusApproved  = "approved"
	RequestStatusRejected  = "rejected"
	RequestStatusFulfilled = "fulfilled"
)

// ValidRequestStatus reports whether s is a known request status.
func ValidRequestStatus(s string) bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected, RequestStatusFulfilled:
		return true
	}
	return false
}

// requestTransitions lists the status changes a request may go through.
// Staying in the same status is handled separately as a no-op.
var requestTransitions = map[string][]string{
	RequestStatusPending:  {RequestStatusApproved, RequestStatusRejected},
	RequestStatusApproved: {RequestStatusFulfilled},
}

// CanTransitionRequest reports whether a request may move from one status to another.
func CanTransitionRequest(from, to string) bool {
	for _, s := range requestTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
