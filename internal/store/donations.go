package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/threadlink/threadlink/internal/model"
)

// Image is a processed donation photo.
type Image struct {
	Data []byte
	MIME string
}

const donationColumns = `d.id, d.user_id, d.title, d.category, d.size, d.condition, d.quantity,
	d.description, d.image_url, d.gender, d.image_mime IS NOT NULL, d.status, d.created_at, d.updated_at,
	u.id, u.full_name, u.email, u.phone`

const donationFrom = ` FROM donations d JOIN users u ON u.id = d.user_id`

// DonationImagePath returns the API path serving a stored donation photo.
func DonationImagePath(id int64) string {
	return fmt.Sprintf("/api/donations/%d/image", id)
}

func scanDonation(row interface{ Scan(...any) error }) (*model.Donation, error) {
	d := &model.Donation{Owner: &model.Profile{}}
	err := row.Scan(&d.ID, &d.UserID, &d.Title, &d.Category, &d.Size, &d.Condition, &d.Quantity,
		&d.Description, &d.ImageURL, &d.Gender, &d.HasImage, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		&d.Owner.ID, &d.Owner.FullName, &d.Owner.Email, &d.Owner.Phone)
	if err != nil {
		return nil, err
	}
	if d.HasImage {
		d.ImageURL = DonationImagePath(d.ID)
	}
	return d, nil
}

func queryDonations(ctx context.Context, q Querier, where string, args ...any) ([]model.Donation, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+donationColumns+donationFrom+where+` ORDER BY d.created_at DESC, d.id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing donations: %w", err)
	}
	defer rows.Close()

	var donations []model.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning donation: %w", err)
		}
		donations = append(donations, *d)
	}
	return donations, rows.Err()
}

// CreateDonation records a new pending donation owned by ownerID. img may be
// nil; when set the photo is stored alongside the record and image_url is
// served from the API.
func CreateDonation(ctx context.Context, db *sql.DB, ownerID int64, in model.DonationInput, img *Image) (*model.Donation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var data []byte
	var mime *string
	if img != nil {
		data, mime = img.Data, &img.MIME
		in.ImageURL = ""
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO donations (user_id, title, category, size, condition, quantity, description, image_url, gender, image, image_mime, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ownerID, strings.TrimSpace(in.Title), strings.TrimSpace(in.Category), in.Size, in.Condition,
		in.Quantity, in.Description, in.ImageURL, in.Gender, data, mime, model.DonationStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("creating donation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting donation id: %w", err)
	}

	return GetDonation(ctx, db, id)
}

// GetDonation returns a donation by ID with its owner's profile.
func GetDonation(ctx context.Context, db *sql.DB, id int64) (*model.Donation, error) {
	return getDonation(ctx, db, id)
}

func getDonation(ctx context.Context, q Querier, id int64) (*model.Donation, error) {
	d, err := scanDonation(q.QueryRowContext(ctx,
		`SELECT `+donationColumns+donationFrom+` WHERE d.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting donation: %w", err)
	}
	return d, nil
}

// ListDonationsByOwner returns a donor's donations, newest first.
func ListDonationsByOwner(ctx context.Context, db *sql.DB, ownerID int64) ([]model.Donation, error) {
	return queryDonations(ctx, db, ` WHERE d.user_id = ?`, ownerID)
}

// ListDonations returns all donations, or those in the given status when
// status is non-empty, newest first.
func ListDonations(ctx context.Context, db *sql.DB, status string) ([]model.Donation, error) {
	if status == "" {
		return queryDonations(ctx, db, "")
	}
	if !model.ValidDonationStatus(status) {
		return nil, model.Invalid("invalid status %q", status)
	}
	return queryDonations(ctx, db, ` WHERE d.status = ?`, status)
}

// SetDonationStatus moderates a donation. Quantity is not touched.
func SetDonationStatus(ctx context.Context, db *sql.DB, id int64, status string) (*model.Donation, error) {
	if !model.ValidDonationStatus(status) {
		return nil, model.Invalid("invalid status %q", status)
	}

	_, err := db.ExecContext(ctx,
		`UPDATE donations SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status != ?`,
		status, id, status,
	)
	if err != nil {
		return nil, fmt.Errorf("updating donation status: %w", err)
	}

	d, err := GetDonation(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &model.NotFoundError{Entity: "donation", ID: id}
	}
	return d, nil
}

// DecrementDonationQuantity removes amount units from a donation's stock in
// a single conditional update. It fails with InsufficientStockError when the
// current quantity is below amount, leaving the row unchanged.
func DecrementDonationQuantity(ctx context.Context, q Querier, id int64, amount int) error {
	if amount <= 0 {
		return model.Invalid("decrement amount must be positive")
	}

	res, err := q.ExecContext(ctx,
		`UPDATE donations SET quantity = quantity - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND quantity >= ?`,
		amount, id, amount,
	)
	if err != nil {
		return fmt.Errorf("decrementing donation quantity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrementing donation quantity: %w", err)
	}
	if n == 1 {
		return nil
	}

	var title string
	var available int
	err = q.QueryRowContext(ctx,
		`SELECT title, quantity FROM donations WHERE id = ?`, id,
	).Scan(&title, &available)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.NotFoundError{Entity: "donation", ID: id}
	}
	if err != nil {
		return fmt.Errorf("reading donation quantity: %w", err)
	}
	return &model.InsufficientStockError{DonationID: id, Title: title, Available: available, Requested: amount}
}

// SetDonationImage replaces a donation's photo.
func SetDonationImage(ctx context.Context, db *sql.DB, id int64, image []byte, mime string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE donations SET image = ?, image_mime = ?, image_url = '', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting donation image: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting donation image: %w", err)
	}
	if n == 0 {
		return &model.NotFoundError{Entity: "donation", ID: id}
	}
	return nil
}

// GetDonationImage returns a donation's photo and MIME type. Both are empty
// when the donation has no stored photo or does not exist.
func GetDonationImage(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM donations WHERE id = ?`, id,
	).Scan(&image, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting donation image: %w", err)
	}
	return image, mime.String, nil
}
