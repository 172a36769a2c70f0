// Package store provides persistence backends for the confectioner assistant.
//
// The Store interface is the persistence gateway consumed by the channel
// adapters: users, committed orders and chat transcripts. An in-memory store
// backs tests and ephemeral runs; SQLite and PostgreSQL back production.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweetline/confectioner/internal/models"
)

// Store is the persistence gateway contract.
type Store interface {
	CreateUser(u models.User) (models.User, error)
	GetUserByPlatformID(platform models.Platform, platformUserID string) (*models.User, error)
	UpdateUser(u models.User) error

	CreateOrder(o models.Order) (models.Order, error)
	GetOrder(id string) (*models.Order, error)
	UpdateOrderStatus(id string, status models.OrderStatus) error
	UpdateOrderImage(id, imageURL string) error
	ListOrdersByUser(userID string) ([]models.Order, error)

	CreateChatRecord(c models.ChatRecord) (models.ChatRecord, error)
	ListChatsByUser(userID string) ([]models.ChatRecord, error)

	Close() error
}

// Opts holds configuration options for database-backed stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for database-backed stores.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for everything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a Store backed by process memory. Used by tests and by
// runs without a configured database.
type InMemoryStore struct {
	mu     sync.RWMutex
	users  map[string]models.User
	orders map[string]models.Order
	chats  map[string]models.ChatRecord
	now    func() time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:  make(map[string]models.User),
		orders: make(map[string]models.Order),
		chats:  make(map[string]models.ChatRecord),
		now:    time.Now,
	}
}

func (s *InMemoryStore) CreateUser(u models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := s.now()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *InMemoryStore) GetUserByPlatformID(platform models.Platform, platformUserID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Platform == platform && u.PlatformUserID == platformUserID {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) UpdateUser(u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return models.ErrUserNotFound
	}
	u.UpdatedAt = s.now()
	s.users[u.ID] = u
	return nil
}

func (s *InMemoryStore) CreateOrder(o models.Order) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	now := s.now()
	o.CreatedAt = now
	o.UpdatedAt = now
	s.orders[o.ID] = o
	return o, nil
}

func (s *InMemoryStore) GetOrder(id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	found := o
	return &found, nil
}

func (s *InMemoryStore) UpdateOrderStatus(id string, status models.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return models.ErrOrderNotFound
	}
	if !o.Status.CanTransitionTo(status) {
		return models.ErrInvalidTransition
	}
	o.Status = status
	o.UpdatedAt = s.now()
	s.orders[id] = o
	return nil
}

func (s *InMemoryStore) UpdateOrderImage(id, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return models.ErrOrderNotFound
	}
	o.ImageURL = imageURL
	o.UpdatedAt = s.now()
	s.orders[id] = o
	return nil
}

func (s *InMemoryStore) ListOrdersByUser(userID string) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) CreateChatRecord(c models.ChatRecord) (models.ChatRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = s.now()
	}
	s.chats[c.ID] = c
	return c, nil
}

func (s *InMemoryStore) ListChatsByUser(userID string) ([]models.ChatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ChatRecord
	for _, c := range s.chats {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
