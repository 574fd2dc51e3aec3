package store

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/threadlink/threadlink/internal/db"
	"github.com/threadlink/threadlink/internal/model"
)

func TestCreateRequest(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)
	home := createTestUser(t, database, "home@example.com", model.UserTypeOrphanage)
	shirts := createTestDonation(t, database, donor.ID, "Shirts", 10, true)
	pants := createTestDonation(t, database, donor.ID, "Pants", 4, true)

	r, err := CreateRequest(ctx, database, home.ID, []model.LineInput{
		{DonationID: shirts.ID, RequestedQuantity: 3},
		{DonationID: pants.ID, RequestedQuantity: 2},
	}, "  for winter ")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if r.Status != model.RequestStatusPending || r.TotalQuantity != 5 || r.Notes != "for winter" {
		t.Errorf("unexpected request: %+v", r)
	}
	if len(r.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(r.Items))
	}
	if r.Items[0].Title != "Shirts" || r.Items[0].Size != "M" || r.Items[0].Donation == nil {
		t.Errorf("expected snapshot and resolved donation, got %+v", r.Items[0])
	}
	if r.Orphanage == nil || r.Orphanage.ID != home.ID {
		t.Errorf("expected orphanage profile, got %+v", r.Orphanage)
	}

	// Creating a request does not reserve stock.
	got, _ := GetDonation(ctx, database, shirts.ID)
	if got.Quantity != 10 {
		t.Errorf("expected quantity unchanged, got %d", got.Quantity)
	}
}

func TestCreateRequestMergesDuplicateLines(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)
	home := createTestUser(t, database, "home@example.com", model.UserTypeOrphanage)
	d := createTestDonation(t, database, donor.ID, "Hats", 5, true)

	// Each line alone fits, together they exceed stock.
	_, err := CreateRequest(ctx, database, home.ID, []model.LineInput{
		{DonationID: d.ID, RequestedQuantity: 4},
		{DonationID: d.ID, RequestedQuantity: 4},
	}, "")
	var ise *model.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if ise.Requested != 8 {
		t.Errorf("expected merged quantity 8, got %d", ise.Requested)
	}

	r, err := CreateRequest(ctx, database, home.ID, []model.LineInput{
		{DonationID: d.ID, RequestedQuantity: 2},
		{DonationID: d.ID, RequestedQuantity: 3},
	}, "")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if len(r.Items) != 1 || r.Items[0].RequestedQuantity != 5 {
		t.Errorf("expected one merged line of 5, got %+v", r.Items)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)
	home := createTestUser(t, database, "home@example.com", model.UserTypeOrphanage)
	approved := createTestDonation(t, database, donor.ID, "Approved", 10, true)
	pending := createTestDonation(t, database, donor.ID, "Pending", 10, false)
	small := createTestDonation(t, database, donor.ID, "Small", 2, true)

	tests := []struct {
		name  string
		lines []model.LineInput
		check func(error) bool
	}{
		{"empty", nil, isValidation},
		{"zero quantity", []model.LineInput{{DonationID: approved.ID, RequestedQuantity: 0}, {DonationID: small.ID, RequestedQuantity: 5}}, isValidation},
		{"below minimum batch", []model.LineInput{{DonationID: approved.ID, RequestedQuantity: 4}}, isValidation},
		{"missing donation", []model.LineInput{{DonationID: 9999, RequestedQuantity: 5}}, isNotFound},
		{"pending donation", []model.LineInput{{DonationID: pending.ID, RequestedQuantity: 5}}, isValidation},
		{"insufficient stock", []model.LineInput{{DonationID: small.ID, RequestedQuantity: 3}, {DonationID: approved.ID, RequestedQuantity: 3}}, isInsufficient},
		{"line above maximum", []model.LineInput{{DonationID: approved.ID, RequestedQuantity: math.MaxInt}}, isValidation},
		{"merged lines wrap around", []model.LineInput{
			{DonationID: approved.ID, RequestedQuantity: math.MaxInt},
			{DonationID: approved.ID, RequestedQuantity: math.MaxInt},
			{DonationID: approved.ID, RequestedQuantity: 7},
		}, isValidation},
		{"total above maximum", []model.LineInput{
			{DonationID: approved.ID, RequestedQuantity: model.MaxRequestQuantity},
			{DonationID: small.ID, RequestedQuantity: 1},
		}, isValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateRequest(ctx, database, home.ID, tt.lines, "")
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	all, _ := ListRequests(ctx, database, "")
	if len(all) != 0 {
		t.Errorf("expected no requests stored, got %d", len(all))
	}
}

func TestApproveRequestDecrementsStock(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)
	home := createTestUser(t, database, "home@example.com", model.UserTypeOrphanage)
	d := createTestDonation(t, database, donor.ID, "Sweaters", 10, true)

	r, err := CreateRequest(ctx, database, home.ID, []model.LineInput{{DonationID: d.ID, RequestedQuantity: 5}}, "")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	approved, prev, err := SetRequestStatus(ctx, database, r.ID, model.RequestStatusApproved)
	if err != nil {
		t.Fatalf("SetRequestStatus: %v", err)
	}
	if prev != model.RequestStatusPending || approved.Status != model.RequestStatusApproved {
		t.Errorf("unexpected transition: prev=%q status=%q", prev, approved.Status)
	}
	got, _ := GetDonation(ctx, database, d.ID)
	if got.Quantity != 5 {
		t.Errorf("expected quantity 5, got %d", got.Quantity)
	}

	// Approving again is a no-op and does not decrement twice.
	if _, _, err := SetRequestStatus(ctx, database, r.ID, model.RequestStatusApproved); err != nil {
		t.Fatalf("repeat approve: %v", err)
	}
	got, _ = GetDonation(ctx, database, d.ID)
	if got.Quantity != 5 {
		t.Errorf("expected quantity still 5, got %d", got.Quantity)
	}

	// The snapshot survives while the resolved donation shows current stock.
	fetched, _ := GetRequest(ctx, database, r.ID)
	if fetched.Items[0].Donation.Quantity != 5 || fetched.Items[0].Title != "Sweaters" {
		t.Errorf("unexpected item: %+v", fetched.Items[0])
	}

	fulfilled, _, err := FulfillRequest(ctx, database, r.ID)
	if err != nil {
		t.Fatalf("FulfillRequest: %v", err)
	}
	if fulfilled.Status != model.RequestStatusFulfilled {
		t.Errorf("expected fulfilled, got %q", fulfilled.Status)
	}
}

func TestApproveRequestInsufficientStockRollsBack(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)
	home := createTestUser(t, database, "home@example.com", model.UserTypeOrphanage)
	plenty := createTestDonation(t, database, donor.ID, "Plenty", 10, true)
	scarce := createTestDonation(t, database, donor.ID, "Scarce", 3, true)

	r, err := CreateRequest(ctx, database, home.ID, []model.LineInput{
		{DonationID: plenty.ID, RequestedQuantity: 3},
		{DonationID: scarce.ID, RequestedQuantity: 3},
	}, "")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	// Stock drops after the request was created.
	if err := DecrementDonationQuantity(ctx, database, scarce.ID, 2); err != nil {
		t.Fatalf("DecrementDonationQuantity: %v", err)
	}

	_, _, err = SetRequestStatus(ctx, database, r.ID, model.RequestStatusApproved)
	var ise *model.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if ise.DonationID != scarce.ID {
		t.Errorf("expected error to name scarce donation, got %+v", ise)
	}

	got, _ := GetRequest(ctx, database, r.ID)
	if got.Status != model.RequestStatusPending {
		t.Errorf("expected request to stay pending, got %q", got.Status)
	}
	p, _ := GetDonation(ctx, database, plenty.ID)
	if p.Quantity != 10 {
		t.Errorf("expected untouched stock 10, got %d", p.Quantity)
	}
}

func TestConcurrentApprovalsNeverOverAllocate(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)
	home := createTestUser(t, database, "home@example.com", model.UserTypeOrphanage)
	d := createTestDonation(t, database, donor.ID, "Jackets", 10, true)

	const n = 4
	ids := make([]int64, n)
	for i := range ids {
		r, err := CreateRequest(ctx, database, home.ID, []model.LineInput{{DonationID: d.ID, RequestedQuantity: 6}}, "")
		if err != nil {
			t.Fatalf("CreateRequest: %v", err)
		}
		ids[i] = r.ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, _, errs[i] = SetRequestStatus(ctx, database, id, model.RequestStatusApproved)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case isInsufficient(err):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly 1 approval, got %d", succeeded)
	}

	got, _ := GetDonation(ctx, database, d.ID)
	if got.Quantity != 4 {
		t.Errorf("expected quantity 4, got %d", got.Quantity)
	}

	approved, _ := ListRequests(ctx, database, model.RequestStatusApproved)
	if len(approved) != 1 {
		t.Errorf("expected 1 approved request, got %d", len(approved))
	}
}

func TestRequestTransitions(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)
	home := createTestUser(t, database, "home@example.com", model.UserTypeOrphanage)
	d := createTestDonation(t, database, donor.ID, "Gloves", 20, true)

	newRequest := func() int64 {
		r, err := CreateRequest(ctx, database, home.ID, []model.LineInput{{DonationID: d.ID, RequestedQuantity: 5}}, "")
		if err != nil {
			t.Fatalf("CreateRequest: %v", err)
		}
		return r.ID
	}

	// pending -> fulfilled is not allowed.
	id := newRequest()
	if _, _, err := FulfillRequest(ctx, database, id); !isValidation(err) {
		t.Errorf("expected ValidationError fulfilling pending request, got %v", err)
	}

	// rejected is terminal.
	if _, _, err := SetRequestStatus(ctx, database, id, model.RequestStatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, _, err := SetRequestStatus(ctx, database, id, model.RequestStatusApproved); !isValidation(err) {
		t.Errorf("expected ValidationError approving rejected request, got %v", err)
	}

	// approved cannot be rejected.
	id = newRequest()
	if _, _, err := SetRequestStatus(ctx, database, id, model.RequestStatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, _, err := SetRequestStatus(ctx, database, id, model.RequestStatusRejected); !isValidation(err) {
		t.Errorf("expected ValidationError rejecting approved request, got %v", err)
	}

	if _, _, err := SetRequestStatus(ctx, database, id, "cancelled"); !isValidation(err) {
		t.Errorf("expected ValidationError for unknown status, got %v", err)
	}
	if _, _, err := SetRequestStatus(ctx, database, 9999, model.RequestStatusApproved); !isNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	// A missing request is reported before the status is looked at.
	if _, _, err := SetRequestStatus(ctx, database, 9999, "bogus"); !isNotFound(err) {
		t.Errorf("expected NotFoundError for missing request with unknown status, got %v", err)
	}
}

func TestReloadMissingRequest(t *testing.T) {
	database := db.NewTestDB(t)

	r, err := reloadRequest(context.Background(), database, 9999)
	if r != nil || !isNotFound(err) {
		t.Errorf("expected NotFoundError, got %+v, %v", r, err)
	}
}

func TestDeleteRequest(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)
	home := createTestUser(t, database, "home@example.com", model.UserTypeOrphanage)
	d := createTestDonation(t, database, donor.ID, "Boots", 8, true)

	r, err := CreateRequest(ctx, database, home.ID, []model.LineInput{{DonationID: d.ID, RequestedQuantity: 5}}, "")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if err := DeleteRequest(ctx, database, r.ID); !isValidation(err) {
		t.Errorf("expected ValidationError deleting pending request, got %v", err)
	}

	if _, _, err := SetRequestStatus(ctx, database, r.ID, model.RequestStatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := DeleteRequest(ctx, database, r.ID); err != nil {
		t.Fatalf("DeleteRequest: %v", err)
	}

	got, _ := GetRequest(ctx, database, r.ID)
	if got != nil {
		t.Error("expected request to be gone")
	}
	var items int
	database.QueryRow(`SELECT COUNT(*) FROM request_items WHERE request_id = ?`, r.ID).Scan(&items)
	if items != 0 {
		t.Errorf("expected items to cascade, got %d", items)
	}

	if err := DeleteRequest(ctx, database, r.ID); !isNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	// Rejection never touched stock.
	stock, _ := GetDonation(ctx, database, d.ID)
	if stock.Quantity != 8 {
		t.Errorf("expected quantity 8, got %d", stock.Quantity)
	}
}

func TestListRequestsOrdering(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)
	home := createTestUser(t, database, "home@example.com", model.UserTypeOrphanage)
	other := createTestUser(t, database, "other@example.com", model.UserTypeOrphanage)
	d := createTestDonation(t, database, donor.ID, "Tees", 50, true)

	line := []model.LineInput{{DonationID: d.ID, RequestedQuantity: 5}}
	first, _ := CreateRequest(ctx, database, home.ID, line, "first")
	second, _ := CreateRequest(ctx, database, home.ID, line, "second")
	CreateRequest(ctx, database, other.ID, line, "other")

	mine, err := ListRequestsByOrphanage(ctx, database, home.ID)
	if err != nil {
		t.Fatalf("ListRequestsByOrphanage: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != first.ID || mine[1].ID != second.ID {
		t.Errorf("expected oldest first, got %+v", mine)
	}
	if len(mine[0].Items) != 1 {
		t.Errorf("expected items loaded, got %d", len(mine[0].Items))
	}

	all, _ := ListRequests(ctx, database, "")
	if len(all) != 3 || all[0].Notes != "other" {
		t.Errorf("expected newest first, got %d", len(all))
	}

	SetRequestStatus(ctx, database, second.ID, model.RequestStatusRejected)
	rejected, _ := ListRequests(ctx, database, model.RequestStatusRejected)
	if len(rejected) != 1 || rejected[0].ID != second.ID {
		t.Errorf("expected 1 rejected, got %+v", rejected)
	}

	if _, err := ListRequests(ctx, database, "bogus"); !isValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func isValidation(err error) bool {
	var ve *model.ValidationError
	return errors.As(err, &ve)
}

func isNotFound(err error) bool {
	var nf *model.NotFoundError
	return errors.As(err, &nf)
}

func isInsufficient(err error) bool {
	var ise *model.InsufficientStockError
	return errors.As(err, &ise)
}
