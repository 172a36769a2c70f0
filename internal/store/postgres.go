// Package store provides persistence backends for the confectioner assistant.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/sweetline/confectioner/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL using the DSN and applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore initialized")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateUser(u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := s.db.Exec(`INSERT INTO users (id, platform, platform_user_id, first_name, last_name, age, gender, phone, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Platform, u.PlatformUserID, nilIfEmpty(u.FirstName), nilIfEmpty(u.LastName),
		nilIfZero(u.Age), nilIfEmpty(string(u.Gender)), nilIfEmpty(u.Phone), nilIfEmpty(u.Email),
		u.CreatedAt, u.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateUser failed", "error", err, "platform", u.Platform, "platformUserID", u.PlatformUserID)
		return models.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByPlatformID(platform models.Platform, platformUserID string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT id, platform, platform_user_id, first_name, last_name, age, gender, phone, email, created_at, updated_at
		FROM users WHERE platform = $1 AND platform_user_id = $2`, platform, platformUserID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserByPlatformID failed", "error", err, "platform", platform, "platformUserID", platformUserID)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) UpdateUser(u models.User) error {
	res, err := s.db.Exec(`UPDATE users SET first_name = $1, last_name = $2, age = $3, gender = $4, phone = $5, email = $6, updated_at = $7
		WHERE id = $8`,
		nilIfEmpty(u.FirstName), nilIfEmpty(u.LastName), nilIfZero(u.Age),
		nilIfEmpty(string(u.Gender)), nilIfEmpty(u.Phone), nilIfEmpty(u.Email), time.Now(), u.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateUser failed", "error", err, "id", u.ID)
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) CreateOrder(o models.Order) (models.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	ingredients, err := json.Marshal(o.Ingredients)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO orders (id, user_id, platform, description, weight, ingredients, delivery_date, status, price, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.UserID, o.Platform, o.Description, o.Weight, string(ingredients),
		nilIfEmpty(o.DeliveryDate), o.Status, o.Price, nilIfEmpty(o.ImageURL), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateOrder failed", "error", err, "userID", o.UserID)
		return models.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}
	slog.Info("PostgresStore CreateOrder succeeded", "id", o.ID, "userID", o.UserID, "platform", o.Platform)
	return o, nil
}

func (s *PostgresStore) GetOrder(id string) (*models.Order, error) {
	row := s.db.QueryRow(`SELECT id, user_id, platform, description, weight, ingredients, delivery_date, status, price, image_url, created_at, updated_at
		FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetOrder failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return &o, nil
}

func (s *PostgresStore) UpdateOrderStatus(id string, status models.OrderStatus) error {
	current, err := s.GetOrder(id)
	if err != nil {
		return err
	}
	if current == nil {
		return models.ErrOrderNotFound
	}
	if !current.Status.CanTransitionTo(status) {
		return models.ErrInvalidTransition
	}
	_, err = s.db.Exec(`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now(), id)
	if err != nil {
		slog.Error("PostgresStore UpdateOrderStatus failed", "error", err, "id", id, "status", status)
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateOrderImage(id, imageURL string) error {
	res, err := s.db.Exec(`UPDATE orders SET image_url = $1, updated_at = $2 WHERE id = $3`, imageURL, time.Now(), id)
	if err != nil {
		slog.Error("PostgresStore UpdateOrderImage failed", "error", err, "id", id)
		return fmt.Errorf("failed to update order image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrOrderNotFound
	}
	return nil
}

func (s *PostgresStore) ListOrdersByUser(userID string) ([]models.Order, error) {
	rows, err := s.db.Query(`SELECT id, user_id, platform, description, weight, ingredients, delivery_date, status, price, image_url, created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		slog.Error("PostgresStore ListOrdersByUser query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()
	var orders []models.Order
	for rows.Next() {
		o, err := scanOrderRows(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) CreateChatRecord(c models.ChatRecord) (models.ChatRecord, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO chats (id, user_id, platform, message, response, ai_model, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.UserID, c.Platform, c.Message, nilIfEmpty(c.Response), nilIfEmpty(c.AIModel), c.Timestamp)
	if err != nil {
		slog.Error("PostgresStore CreateChatRecord failed", "error", err, "userID", c.UserID)
		return models.ChatRecord{}, fmt.Errorf("failed to insert chat record: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListChatsByUser(userID string) ([]models.ChatRecord, error) {
	rows, err := s.db.Query(`SELECT id, user_id, platform, message, response, ai_model, timestamp
		FROM chats WHERE user_id = $1 ORDER BY timestamp`, userID)
	if err != nil {
		slog.Error("PostgresStore ListChatsByUser query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()
	var chats []models.ChatRecord
	for rows.Next() {
		c, err := scanChatRows(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
