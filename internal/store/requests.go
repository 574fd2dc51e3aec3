package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/threadlink/threadlink/internal/model"
)

const requestColumns = `r.id, r.orphanage_id, r.total_quantity, r.notes, r.status, r.created_at, r.updated_at,
	u.id, u.full_name, u.email, u.phone`

const requestFrom = ` FROM requests r JOIN users u ON u.id = r.orphanage_id`

func scanRequest(row interface{ Scan(...any) error }) (*model.Request, error) {
	r := &model.Request{Orphanage: &model.Profile{}}
	err := row.Scan(&r.ID, &r.OrphanageID, &r.TotalQuantity, &r.Notes, &r.Status, &r.CreatedAt, &r.UpdatedAt,
		&r.Orphanage.ID, &r.Orphanage.FullName, &r.Orphanage.Email, &r.Orphanage.Phone)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CreateRequest validates an orphanage's submitted lines against the
// current inventory and records a pending request. Duplicate lines for the
// same donation are merged before the stock check. Item snapshots are taken
// from the stored donations.
func CreateRequest(ctx context.Context, db *sql.DB, orphanageID int64, lines []model.LineInput, notes string) (*model.Request, error) {
	if len(lines) == 0 {
		return nil, model.Invalid("request must contain at least one item")
	}
	var total int64
	for _, l := range lines {
		if l.RequestedQuantity < 1 {
			return nil, model.Invalid("requested quantity must be at least 1")
		}
		if l.RequestedQuantity > model.MaxRequestQuantity {
			return nil, model.Invalid("requested quantity must be at most %d", model.MaxRequestQuantity)
		}
		// Bounded per line, so the int64 sum cannot wrap.
		total += int64(l.RequestedQuantity)
	}
	if total > model.MaxRequestQuantity {
		return nil, model.Invalid("total requested quantity must be at most %d", model.MaxRequestQuantity)
	}
	cart := model.NewCart(lines)
	if cart.Total() < model.MinBatchQuantity {
		return nil, model.Invalid("total requested quantity must be at least %d pieces", model.MinBatchQuantity)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	items := make([]model.RequestItem, 0, cart.Len())
	for _, l := range cart.Lines() {
		d, err := getDonation(ctx, tx, l.DonationID)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, &model.NotFoundError{Entity: "donation", ID: l.DonationID}
		}
		if d.Status != model.DonationStatusApproved {
			return nil, model.Invalid("%s is not available for request", d.Title)
		}
		if l.RequestedQuantity > d.Quantity {
			return nil, &model.InsufficientStockError{
				DonationID: d.ID, Title: d.Title, Available: d.Quantity, Requested: l.RequestedQuantity,
			}
		}
		items = append(items, model.RequestItem{
			DonationID:        d.ID,
			RequestedQuantity: l.RequestedQuantity,
			Title:             d.Title,
			Category:          d.Category,
			Size:              d.Size,
			Gender:            d.Gender,
			Condition:         d.Condition,
			ImageURL:          d.ImageURL,
		})
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO requests (orphanage_id, total_quantity, notes, status) VALUES (?, ?, ?, ?)`,
		orphanageID, cart.Total(), strings.TrimSpace(notes), model.RequestStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting request id: %w", err)
	}

	for i, it := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO request_items (request_id, position, donation_id, requested_quantity,
			                            title, category, size, gender, condition, image_url)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, it.DonationID, it.RequestedQuantity, it.Title, it.Category, it.Size, it.Gender, it.Condition, it.ImageURL,
		)
		if err != nil {
			return nil, fmt.Errorf("creating request item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing request: %w", err)
	}

	return reloadRequest(ctx, db, id)
}

// reloadRequest reads back a request that was just written. A request that
// vanished in between is reported as not found.
func reloadRequest(ctx context.Context, db *sql.DB, id int64) (*model.Request, error) {
	r, err := GetRequest(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &model.NotFoundError{Entity: "request", ID: id}
	}
	return r, nil
}

// GetRequest returns a request with its items and the current state of each
// referenced donation.
func GetRequest(ctx context.Context, db *sql.DB, id int64) (*model.Request, error) {
	r, err := scanRequest(db.QueryRowContext(ctx,
		`SELECT `+requestColumns+requestFrom+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting request: %w", err)
	}

	r.Items, err = listRequestItems(ctx, db, r.ID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRequests returns all requests, or those in the given status when
// status is non-empty, newest first.
func ListRequests(ctx context.Context, db *sql.DB, status string) ([]model.Request, error) {
	if status == "" {
		return queryRequests(ctx, db, ` ORDER BY r.created_at DESC, r.id DESC`)
	}
	if !model.ValidRequestStatus(status) {
		return nil, model.Invalid("invalid status %q", status)
	}
	return queryRequests(ctx, db, ` WHERE r.status = ? ORDER BY r.created_at DESC, r.id DESC`, status)
}

// ListRequestsByOrphanage returns an orphanage's requests, oldest first.
func ListRequestsByOrphanage(ctx context.Context, db *sql.DB, orphanageID int64) ([]model.Request, error) {
	return queryRequests(ctx, db, ` WHERE r.orphanage_id = ? ORDER BY r.created_at, r.id`, orphanageID)
}

func queryRequests(ctx context.Context, db *sql.DB, tail string, args ...any) ([]model.Request, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+requestColumns+requestFrom+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}

	var requests []model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning request: %w", err)
		}
		requests = append(requests, *r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}

	for i := range requests {
		requests[i].Items, err = listRequestItems(ctx, db, requests[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return requests, nil
}

func listRequestItems(ctx context.Context, q Querier, requestID int64) ([]model.RequestItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT ri.donation_id, ri.requested_quantity, ri.title, ri.category, ri.size, ri.gender,
		        ri.condition, ri.image_url,
		        d.id, d.title, d.category, d.size, d.condition, d.image_url, d.image_mime IS NOT NULL,
		        d.quantity, d.status
		 FROM request_items ri
		 LEFT JOIN donations d ON d.id = ri.donation_id
		 WHERE ri.request_id = ?
		 ORDER BY ri.position`, requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing request items: %w", err)
	}
	defer rows.Close()

	items := []model.RequestItem{}
	for rows.Next() {
		var it model.RequestItem
		var (
			dID                                     sql.NullInt64
			dTitle, dCategory, dSize, dCond, dImage sql.NullString
			dHasImage                               sql.NullBool
			dQuantity                               sql.NullInt64
			dStatus                                 sql.NullString
		)
		if err := rows.Scan(&it.DonationID, &it.RequestedQuantity, &it.Title, &it.Category, &it.Size,
			&it.Gender, &it.Condition, &it.ImageURL,
			&dID, &dTitle, &dCategory, &dSize, &dCond, &dImage, &dHasImage, &dQuantity, &dStatus); err != nil {
			return nil, fmt.Errorf("scanning request item: %w", err)
		}
		if dID.Valid {
			it.Donation = &model.DonationRef{
				ID:        dID.Int64,
				Title:     dTitle.String,
				Category:  dCategory.String,
				Size:      dSize.String,
				Condition: dCond.String,
				ImageURL:  dImage.String,
				Quantity:  int(dQuantity.Int64),
				Status:    dStatus.String,
			}
			if dHasImage.Bool {
				it.Donation.ImageURL = DonationImagePath(dID.Int64)
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SetRequestStatus moves a request to a new status and returns the updated
// request together with its previous status. Setting the current status
// again is a no-op.
//
// Approval re-checks every line against current stock and decrements each
// referenced donation inside the same transaction as the status write. If
// any decrement fails nothing is committed.
func SetRequestStatus(ctx context.Context, db *sql.DB, id int64, status string) (*model.Request, string, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM requests WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", &model.NotFoundError{Entity: "request", ID: id}
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading request status: %w", err)
	}
	if !model.ValidRequestStatus(status) {
		return nil, "", model.Invalid("invalid status %q", status)
	}

	if current == status {
		tx.Rollback()
	} else {
		if !model.CanTransitionRequest(current, status) {
			return nil, "", model.Invalid("cannot change request status from %s to %s", current, status)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE requests SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			status, id,
		)
		if err != nil {
			return nil, "", fmt.Errorf("updating request status: %w", err)
		}

		if status == model.RequestStatusApproved {
			if err := reserveStock(ctx, tx, id); err != nil {
				return nil, "", err
			}
		}

		if err := tx.Commit(); err != nil {
			return nil, "", fmt.Errorf("committing request status: %w", err)
		}
	}

	r, err := reloadRequest(ctx, db, id)
	if err != nil {
		return nil, "", err
	}
	return r, current, nil
}

// reserveStock deducts every line of a request from inventory. Lines for
// the same donation are summed and checked together before any decrement;
// the conditional decrement remains the final authority.
func reserveStock(ctx context.Context, tx *sql.Tx, requestID int64) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT ri.donation_id, SUM(ri.requested_quantity), COALESCE(d.title, ''), COALESCE(d.quantity, -1)
		 FROM request_items ri
		 LEFT JOIN donations d ON d.id = ri.donation_id
		 WHERE ri.request_id = ?
		 GROUP BY ri.donation_id
		 ORDER BY MIN(ri.position)`, requestID,
	)
	if err != nil {
		return fmt.Errorf("reading request items: %w", err)
	}

	type need struct {
		donationID int64
		amount     int
		title      string
		available  int
	}
	var needs []need
	for rows.Next() {
		var n need
		if err := rows.Scan(&n.donationID, &n.amount, &n.title, &n.available); err != nil {
			rows.Close()
			return fmt.Errorf("scanning request item: %w", err)
		}
		needs = append(needs, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading request items: %w", err)
	}

	for _, n := range needs {
		if n.available < 0 {
			return &model.NotFoundError{Entity: "donation", ID: n.donationID}
		}
		if n.amount > n.available {
			return &model.InsufficientStockError{
				DonationID: n.donationID, Title: n.title, Available: n.available, Requested: n.amount,
			}
		}
	}

	for _, n := range needs {
		if err := DecrementDonationQuantity(ctx, tx, n.donationID, n.amount); err != nil {
			return err
		}
	}
	return nil
}

// FulfillRequest marks an approved request as fulfilled and returns it with
// its previous status.
func FulfillRequest(ctx context.Context, db *sql.DB, id int64) (*model.Request, string, error) {
	return SetRequestStatus(ctx, db, id, model.RequestStatusFulfilled)
}

// DeleteRequest removes a rejected request and its items. Requests in any
// other status are kept.
func DeleteRequest(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM requests WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.NotFoundError{Entity: "request", ID: id}
	}
	if err != nil {
		return fmt.Errorf("reading request status: %w", err)
	}
	if status != model.RequestStatusRejected {
		return model.Invalid("only rejected requests can be deleted")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting request: %w", err)
	}

	return tx.Commit()
}
