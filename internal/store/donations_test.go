package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/threadlink/threadlink/internal/db"
	"github.com/threadlink/threadlink/internal/model"
)

func createTestDonation(t *testing.T, database *sql.DB, ownerID int64, title string, quantity int, approve bool) *model.Donation {
	t.Helper()
	ctx := context.Background()
	d, err := CreateDonation(ctx, database, ownerID, model.DonationInput{
		Title:    title,
		Category: "Tops",
		Size:     "M",
		Quantity: quantity,
	}, nil)
	if err != nil {
		t.Fatalf("CreateDonation %s: %v", title, err)
	}
	if approve {
		d, err = SetDonationStatus(ctx, database, d.ID, model.DonationStatusApproved)
		if err != nil {
			t.Fatalf("approving donation %s: %v", title, err)
		}
	}
	return d
}

func TestCreateAndGetDonation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)

	d, err := CreateDonation(ctx, database, donor.ID, model.DonationInput{
		Title:     " Winter coat ",
		Category:  "Outerwear",
		Condition: "good",
		Quantity:  10,
		ImageURL:  "https://example.com/coat.jpg",
	}, nil)
	if err != nil {
		t.Fatalf("CreateDonation: %v", err)
	}
	if d.Status != model.DonationStatusPending {
		t.Errorf("expected pending, got %q", d.Status)
	}
	if d.Title != "Winter coat" || d.Quantity != 10 {
		t.Errorf("unexpected donation: %+v", d)
	}
	if d.Owner == nil || d.Owner.Email != donor.Email {
		t.Errorf("expected owner profile, got %+v", d.Owner)
	}
	if d.HasImage || d.ImageURL != "https://example.com/coat.jpg" {
		t.Errorf("unexpected image fields: %v %q", d.HasImage, d.ImageURL)
	}

	missing, err := GetDonation(ctx, database, 9999)
	if err != nil {
		t.Fatalf("GetDonation: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing donation")
	}
}

func TestCreateDonationValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)

	_, err := CreateDonation(ctx, database, donor.ID, model.DonationInput{Category: "Tops", Quantity: 1}, nil)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateDonationWithImage(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)

	d, err := CreateDonation(ctx, database, donor.ID, model.DonationInput{
		Title: "Scarf", Category: "Accessories", Quantity: 2, ImageURL: "data:image/jpeg;base64,AAAA",
	}, &Image{Data: []byte{0xff, 0xd8, 0xff}, MIME: "image/jpeg"})
	if err != nil {
		t.Fatalf("CreateDonation: %v", err)
	}
	if !d.HasImage || d.ImageURL != DonationImagePath(d.ID) {
		t.Errorf("expected stored image, got has_image=%v url=%q", d.HasImage, d.ImageURL)
	}

	data, mime, err := GetDonationImage(ctx, database, d.ID)
	if err != nil {
		t.Fatalf("GetDonationImage: %v", err)
	}
	if mime != "image/jpeg" || len(data) != 3 {
		t.Errorf("unexpected image: %q %d bytes", mime, len(data))
	}
}

func TestSetDonationImage(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)
	d := createTestDonation(t, database, donor.ID, "Jeans", 3, false)

	data, mime, _ := GetDonationImage(ctx, database, d.ID)
	if data != nil || mime != "" {
		t.Error("expected no image initially")
	}

	if err := SetDonationImage(ctx, database, d.ID, []byte{1, 2, 3, 4}, "image/jpeg"); err != nil {
		t.Fatalf("SetDonationImage: %v", err)
	}
	got, _ := GetDonation(ctx, database, d.ID)
	if !got.HasImage {
		t.Error("expected has_image after upload")
	}

	var nf *model.NotFoundError
	if err := SetDonationImage(ctx, database, 9999, []byte{1}, "image/jpeg"); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestListDonations(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, database, "alice@example.com", model.UserTypeDonor)
	bob := createTestUser(t, database, "bob@example.com", model.UserTypeDonor)

	a1 := createTestDonation(t, database, alice.ID, "A1", 1, true)
	createTestDonation(t, database, alice.ID, "A2", 1, false)
	createTestDonation(t, database, bob.ID, "B1", 1, false)

	mine, err := ListDonationsByOwner(ctx, database, alice.ID)
	if err != nil {
		t.Fatalf("ListDonationsByOwner: %v", err)
	}
	if len(mine) != 2 || mine[0].Title != "A2" {
		t.Errorf("expected alice's donations newest first, got %+v", mine)
	}

	all, _ := ListDonations(ctx, database, "")
	if len(all) != 3 || all[0].Title != "B1" {
		t.Errorf("expected 3 donations newest first, got %d", len(all))
	}

	approved, _ := ListDonations(ctx, database, model.DonationStatusApproved)
	if len(approved) != 1 || approved[0].ID != a1.ID {
		t.Errorf("expected only approved donation, got %+v", approved)
	}

	var ve *model.ValidationError
	if _, err := ListDonations(ctx, database, "bogus"); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for bad status, got %v", err)
	}
}

func TestSetDonationStatus(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)
	d := createTestDonation(t, database, donor.ID, "Shirt", 4, false)

	got, err := SetDonationStatus(ctx, database, d.ID, model.DonationStatusApproved)
	if err != nil {
		t.Fatalf("SetDonationStatus: %v", err)
	}
	if got.Status != model.DonationStatusApproved || got.Quantity != 4 {
		t.Errorf("unexpected donation after approve: %+v", got)
	}

	// Same status again is a no-op.
	got, err = SetDonationStatus(ctx, database, d.ID, model.DonationStatusApproved)
	if err != nil || got.Status != model.DonationStatusApproved {
		t.Errorf("expected no-op, got %+v, %v", got, err)
	}

	var ve *model.ValidationError
	if _, err := SetDonationStatus(ctx, database, d.ID, "fulfilled"); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	var nf *model.NotFoundError
	if _, err := SetDonationStatus(ctx, database, 9999, model.DonationStatusRejected); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestDecrementDonationQuantity(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)
	d := createTestDonation(t, database, donor.ID, "Socks", 5, true)

	if err := DecrementDonationQuantity(ctx, database, d.ID, 3); err != nil {
		t.Fatalf("DecrementDonationQuantity: %v", err)
	}

	err := DecrementDonationQuantity(ctx, database, d.ID, 3)
	var ise *model.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if ise.Available != 2 || ise.Requested != 3 || ise.Title != "Socks" {
		t.Errorf("unexpected error detail: %+v", ise)
	}

	// Exactly to zero is allowed.
	if err := DecrementDonationQuantity(ctx, database, d.ID, 2); err != nil {
		t.Fatalf("DecrementDonationQuantity to zero: %v", err)
	}
	got, _ := GetDonation(ctx, database, d.ID)
	if got.Quantity != 0 {
		t.Errorf("expected 0, got %d", got.Quantity)
	}

	var nf *model.NotFoundError
	if err := DecrementDonationQuantity(ctx, database, 9999, 1); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	var ve *model.ValidationError
	if err := DecrementDonationQuantity(ctx, database, d.ID, 0); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for zero amount, got %v", err)
	}
}
