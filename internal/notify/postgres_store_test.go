//go:build integration

package notify

import (
	"testing"
	"time"

	"github.com/atelierhq/atelier/internal/testutil"
)

func makeStoredSubscription(id, userID string, events ...EventType) *Subscription {
	if len(events) == 0 {
		events = []EventType{EventSettled}
	}
	return &Subscription{
		ID:        id,
		UserID:    userID,
		URL:       "https://203.0.113.10/hooks/" + id,
		Secret:    "whsec_" + id,
		Events:    events,
		Active:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPostgresStore_CreateAndGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := t.Context()

	sub := makeStoredSubscription("wh_pg001", "user_leader", EventOffered, EventSettled)
	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "wh_pg001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != "user_leader" {
		t.Errorf("Expected user_leader, got %s", got.UserID)
	}
	if got.Secret != "whsec_wh_pg001" {
		t.Errorf("Secret not round-tripped: %s", got.Secret)
	}
	if len(got.Events) != 2 {
		t.Errorf("Expected 2 events, got %d", len(got.Events))
	}
	if !got.Active {
		t.Error("Expected subscription to be active")
	}
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)

	if _, err := store.Get(t.Context(), "wh_missing"); err == nil {
		t.Error("Expected error for missing subscription")
	}
}

func TestPostgresStore_GetByUser(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := t.Context()

	for _, id := range []string{"wh_u1", "wh_u2"} {
		if err := store.Create(ctx, makeStoredSubscription(id, "user_artist")); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := store.Create(ctx, makeStoredSubscription("wh_other", "user_leader")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	subs, err := store.GetByUser(ctx, "user_artist")
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("Expected 2 subscriptions, got %d", len(subs))
	}
}

func TestPostgresStore_GetByEvent(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := t.Context()

	if err := store.Create(ctx, makeStoredSubscription("wh_settled", "user_a", EventSettled)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, makeStoredSubscription("wh_offered", "user_b", EventOffered)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, makeStoredSubscription("wh_both", "user_c", EventOffered, EventSettled)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	subs, err := store.GetByEvent(ctx, EventSettled)
	if err != nil {
		t.Fatalf("GetByEvent failed: %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("Expected 2 subscriptions for settled, got %d", len(subs))
	}
}

func TestPostgresStore_Update(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := t.Context()

	sub := makeStoredSubscription("wh_upd", "user_leader")
	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	sub.Active = false
	sub.LastSuccess = &now
	sub.LastError = "connection refused"
	sub.ConsecutiveFailures = 3
	if err := store.Update(ctx, sub); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.Get(ctx, "wh_upd")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Active {
		t.Error("Expected subscription to be disabled")
	}
	if got.LastSuccess == nil || !got.LastSuccess.Equal(now) {
		t.Errorf("LastSuccess not round-tripped: %v", got.LastSuccess)
	}
	if got.LastError != "connection refused" {
		t.Errorf("LastError not round-tripped: %s", got.LastError)
	}
	if got.ConsecutiveFailures != 3 {
		t.Errorf("Expected 3 consecutive failures, got %d", got.ConsecutiveFailures)
	}
}

func TestPostgresStore_Delete(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := t.Context()

	if err := store.Create(ctx, makeStoredSubscription("wh_del", "user_leader")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Delete(ctx, "wh_del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "wh_del"); err == nil {
		t.Error("Expected error after delete")
	}
}
