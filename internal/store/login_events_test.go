package store

import (
	"context"
	"testing"

	"github.com/threadlink/threadlink/internal/db"
	"github.com/threadlink/threadlink/internal/model"
)

func TestLoginEvents(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	u := createTestUser(t, database, "donor@example.com", model.UserTypeDonor)

	if err := RecordLoginEvent(ctx, database, &u.ID, u.Email, true, "10.0.0.1"); err != nil {
		t.Fatalf("RecordLoginEvent: %v", err)
	}
	if err := RecordLoginEvent(ctx, database, nil, "Nobody@Example.com", false, "10.0.0.2"); err != nil {
		t.Fatalf("RecordLoginEvent: %v", err)
	}

	events, err := ListLoginEvents(ctx, database, 10)
	if err != nil {
		t.Fatalf("ListLoginEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	failed := events[0]
	if failed.Success || failed.UserID != nil || failed.Email != "nobody@example.com" {
		t.Errorf("unexpected failed event: %+v", failed)
	}
	ok := events[1]
	if !ok.Success || ok.UserID == nil || *ok.UserID != u.ID || ok.IPAddress != "10.0.0.1" {
		t.Errorf("unexpected success event: %+v", ok)
	}

	limited, _ := ListLoginEvents(ctx, database, 1)
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}
