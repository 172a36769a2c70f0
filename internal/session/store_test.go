package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sweetline/confectioner/internal/models"
)

func testKey(userID string) models.ConversationKey {
	return models.ConversationKey{Platform: models.PlatformWhatsApp, UserID: userID}
}

func TestStore_GetUnknownKeyYieldsIdle(t *testing.T) {
	s := NewStore()
	rec := s.Get(testKey("nobody"))
	if rec.State != models.StateIdle {
		t.Errorf("expected Idle, got %q", rec.State)
	}
	if rec.Draft.Description != "" || rec.Draft.Weight != nil {
		t.Errorf("expected empty draft, got %+v", rec.Draft)
	}
	if s.Len() != 0 {
		t.Error("Get must not create records")
	}
}

func TestStore_SetStatePreservesDraft(t *testing.T) {
	s := NewStore()
	key := testKey("alice")
	s.MergeDraft(key, models.DraftFields{Description: "торт"})
	s.SetState(key, models.StateAwaitingWeight)

	rec := s.Get(key)
	if rec.State != models.StateAwaitingWeight {
		t.Errorf("expected AwaitingWeight, got %q", rec.State)
	}
	if rec.Draft.Description != "торт" {
		t.Errorf("draft lost on SetState: %+v", rec.Draft)
	}
}

func TestStore_MergeDraftEmptyFieldsAreNoOp(t *testing.T) {
	s := NewStore()
	key := testKey("bob")
	w := 2.5
	s.MergeDraft(key, models.DraftFields{Description: "чизкейк", Weight: &w})
	s.MergeDraft(key, models.DraftFields{})

	rec := s.Get(key)
	if rec.Draft.Description != "чизкейк" || rec.Draft.Weight == nil || *rec.Draft.Weight != 2.5 {
		t.Errorf("empty merge erased fields: %+v", rec.Draft)
	}
}

// Later non-empty values overwrite, empty values never erase. In particular a
// dedicated ingredients answer replaces anything extraction pre-filled earlier.
func TestStore_MergeDraftMonotonic(t *testing.T) {
	s := NewStore()
	key := testKey("carol")
	w1, w2 := 1.0, 3.0
	s.MergeDraft(key, models.DraftFields{Weight: &w1, Ingredients: "вишня, крем"})
	s.MergeDraft(key, models.DraftFields{Weight: &w2, Ingredients: "шоколад и орехи", DeliveryDate: "20.12.2025"})

	rec := s.Get(key)
	if rec.Draft.Weight == nil || *rec.Draft.Weight != 3.0 {
		t.Errorf("weight should be overwritten to 3.0: %v", rec.Draft.Weight)
	}
	if len(rec.Draft.Ingredients) != 1 || rec.Draft.Ingredients[0] != "шоколад и орехи" {
		t.Errorf("ingredients should be replaced by the later merge: %v", rec.Draft.Ingredients)
	}
	if rec.Draft.DeliveryDate != "20.12.2025" {
		t.Errorf("delivery date: %q", rec.Draft.DeliveryDate)
	}
}

func TestStore_GetReturnsSnapshot(t *testing.T) {
	s := NewStore()
	key := testKey("dave")
	w := 2.0
	s.MergeDraft(key, models.DraftFields{Weight: &w})

	rec := s.Get(key)
	*rec.Draft.Weight = 99

	again := s.Get(key)
	if *again.Draft.Weight != 2.0 {
		t.Errorf("snapshot mutation leaked into store: %v", *again.Draft.Weight)
	}
}

func TestStore_Reset(t *testing.T) {
	s := NewStore()
	key := testKey("erin")
	s.SetState(key, models.StateAwaitingConfirmation)
	s.Reset(key)

	rec := s.Get(key)
	if rec.State != models.StateIdle {
		t.Errorf("expected Idle after reset, got %q", rec.State)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d records", s.Len())
	}
}

func TestStore_PutReplacesRecord(t *testing.T) {
	s := NewStore()
	key := testKey("frank")
	w := 1.0
	s.Put(key, models.StateAwaitingConfirmation, models.OrderDraft{Description: "торт", Weight: &w})

	rec := s.Get(key)
	if rec.State != models.StateAwaitingConfirmation || rec.Draft.Description != "торт" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestStore_MalformedStateReadsAsIdle(t *testing.T) {
	s := NewStore()
	key := testKey("mallory")
	s.SetState(key, models.ConversationState("garbage"))

	rec := s.Get(key)
	if rec.State != models.StateIdle {
		t.Errorf("expected malformed state to read as Idle, got %q", rec.State)
	}
}

func TestStore_Expire(t *testing.T) {
	s := NewStore()
	current := time.Now()
	s.now = func() time.Time { return current }

	old := testKey("old-user")
	fresh := testKey("fresh-user")
	s.SetState(old, models.StateAwaitingWeight)

	current = current.Add(2 * time.Hour)
	s.SetState(fresh, models.StateAwaitingWeight)

	removed := s.Expire(time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 expired record, got %d", removed)
	}
	if s.Get(old).State != models.StateIdle {
		t.Error("expired conversation should read as Idle")
	}
	if s.Get(fresh).State != models.StateAwaitingWeight {
		t.Error("fresh conversation must survive the sweep")
	}
}

func TestStore_ActivityRefreshDefersExpiry(t *testing.T) {
	s := NewStore()
	current := time.Now()
	s.now = func() time.Time { return current }

	key := testKey("active")
	s.SetState(key, models.StateAwaitingWeight)

	current = current.Add(50 * time.Minute)
	s.MergeDraft(key, models.DraftFields{Ingredients: "вишня"})

	current = current.Add(50 * time.Minute)
	if removed := s.Expire(time.Hour); removed != 0 {
		t.Fatalf("refreshed conversation expired: removed=%d", removed)
	}
}

// Different keys must proceed without corrupting each other under concurrency.
func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	const users = 50
	const turns = 20

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := testKey(fmt.Sprintf("user-%d", n))
			for j := 0; j < turns; j++ {
				s.MergeDraft(key, models.DraftFields{Description: fmt.Sprintf("турн-%d", j), Ingredients: fmt.Sprintf("item-%d", j)})
				s.SetState(key, models.StateAwaitingIngredients)
				_ = s.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != users {
		t.Fatalf("expected %d records, got %d", users, s.Len())
	}
	for i := 0; i < users; i++ {
		rec := s.Get(testKey(fmt.Sprintf("user-%d", i)))
		want := fmt.Sprintf("турн-%d", turns-1)
		if rec.Draft.Description != want {
			t.Fatalf("user-%d: expected description %q, got %q", i, want, rec.Draft.Description)
		}
		if len(rec.Draft.Ingredients) != 1 || rec.Draft.Ingredients[0] != fmt.Sprintf("item-%d", turns-1) {
			t.Fatalf("user-%d: unexpected ingredients %v", i, rec.Draft.Ingredients)
		}
	}
}
