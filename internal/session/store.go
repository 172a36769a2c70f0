// Package session provides the conversation state store for the order dialogue.
//
// It holds one StateRecord per (platform, user) key with per-key atomicity:
// operations on the same key are serialized, operations on different keys
// never block each other. All reads return snapshots; no caller ever holds a
// reference into the store.
package session

import (
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/sweetline/confectioner/internal/models"
)

// DefaultMaxAge is the inactivity threshold after which a conversation is
// considered abandoned and eligible for expiry.
const DefaultMaxAge = time.Hour

// stripeCount is the number of lock stripes. Keys hash onto stripes so that
// contention stays per-stripe rather than global.
const stripeCount = 32

type stripe struct {
	mu      sync.Mutex
	records map[models.ConversationKey]*models.StateRecord
}

// Store is an in-memory conversation state store with striped locking.
type Store struct {
	stripes [stripeCount]*stripe
	now     func() time.Time
}

// NewStore creates an empty conversation state store.
func NewStore() *Store {
	s := &Store{now: time.Now}
	for i := range s.stripes {
		s.stripes[i] = &stripe{records: make(map[models.ConversationKey]*models.StateRecord)}
	}
	return s
}

func (s *Store) stripeFor(key models.ConversationKey) *stripe {
	h := fnv.New32a()
	h.Write([]byte(key.Platform))
	h.Write([]byte{0})
	h.Write([]byte(key.UserID))
	return s.stripes[h.Sum32()%stripeCount]
}

// Get returns a snapshot of the conversation record for key. Unknown keys
// yield an Idle record with an empty draft and zero timestamp; Get never
// fails and never creates a record.
func (s *Store) Get(key models.ConversationKey) models.StateRecord {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	rec, ok := st.records[key]
	if !ok {
		return models.StateRecord{State: models.StateIdle}
	}
	snapshot := *rec
	snapshot.Draft = rec.Draft.Clone()
	if !models.IsValidState(snapshot.State) {
		// Corrupted state tag: treat as a fresh Idle session.
		slog.Warn("SessionStore Get found malformed state, treating as idle", "platform", key.Platform, "userID", key.UserID, "state", snapshot.State)
		return models.StateRecord{State: models.StateIdle}
	}
	return snapshot
}

// SetState replaces the state tag for key, preserving any accumulated draft,
// and refreshes the last-activity timestamp. Creates the record if absent.
func (s *Store) SetState(key models.ConversationKey, state models.ConversationState) {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	rec, ok := st.records[key]
	if !ok {
		rec = &models.StateRecord{}
		st.records[key] = rec
	}
	rec.State = state
	rec.LastActivity = s.now()
	slog.Debug("SessionStore SetState", "platform", key.Platform, "userID", key.UserID, "state", state)
}

// MergeDraft merges non-empty incoming fields into the stored draft and
// refreshes the last-activity timestamp. Empty fields never erase existing
// values. Creates the record (defaulting to Idle) if absent.
func (s *Store) MergeDraft(key models.ConversationKey, fields models.DraftFields) {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	rec, ok := st.records[key]
	if !ok {
		rec = &models.StateRecord{State: models.StateIdle}
		st.records[key] = rec
	}
	rec.Draft.Merge(fields)
	rec.LastActivity = s.now()
	slog.Debug("SessionStore MergeDraft", "platform", key.Platform, "userID", key.UserID)
}

// Put replaces the whole record for key in one atomic step. Used by the
// dispatcher to persist the outcome of a dialogue step.
func (s *Store) Put(key models.ConversationKey, state models.ConversationState, draft models.OrderDraft) {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.records[key] = &models.StateRecord{
		State:        state,
		Draft:        draft.Clone(),
		LastActivity: s.now(),
	}
}

// Reset removes the record for key entirely.
func (s *Store) Reset(key models.ConversationKey) {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	delete(st.records, key)
	slog.Debug("SessionStore Reset", "platform", key.Platform, "userID", key.UserID)
}

// Expire removes every record whose last activity is older than maxAge and
// returns the number of removed records. It locks one stripe at a time, so a
// sweep never blocks in-progress operations on other stripes.
func (s *Store) Expire(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, st := range s.stripes {
		st.mu.Lock()
		for key, rec := range st.records {
			if rec.LastActivity.Before(cutoff) {
				delete(st.records, key)
				removed++
			}
		}
		st.mu.Unlock()
	}
	// The scheduler's sweep job logs the removed count.
	return removed
}

// Len reports the number of active conversations across all stripes.
func (s *Store) Len() int {
	n := 0
	for _, st := range s.stripes {
		st.mu.Lock()
		n += len(st.records)
		st.mu.Unlock()
	}
	return n
}
