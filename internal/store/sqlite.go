// Package store provides persistence backends for the confectioner assistant.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sweetline/confectioner/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the SQLite database at the DSN
// path and applies migrations.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore initialized", "dsn", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateUser(u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := s.db.Exec(`INSERT INTO users (id, platform, platform_user_id, first_name, last_name, age, gender, phone, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Platform, u.PlatformUserID, nilIfEmpty(u.FirstName), nilIfEmpty(u.LastName),
		nilIfZero(u.Age), nilIfEmpty(string(u.Gender)), nilIfEmpty(u.Phone), nilIfEmpty(u.Email),
		u.CreatedAt, u.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateUser failed", "error", err, "platform", u.Platform, "platformUserID", u.PlatformUserID)
		return models.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	slog.Debug("SQLiteStore CreateUser succeeded", "id", u.ID, "platform", u.Platform)
	return u, nil
}

func (s *SQLiteStore) GetUserByPlatformID(platform models.Platform, platformUserID string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT id, platform, platform_user_id, first_name, last_name, age, gender, phone, email, created_at, updated_at
		FROM users WHERE platform = ? AND platform_user_id = ?`, platform, platformUserID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserByPlatformID failed", "error", err, "platform", platform, "platformUserID", platformUserID)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) UpdateUser(u models.User) error {
	res, err := s.db.Exec(`UPDATE users SET first_name = ?, last_name = ?, age = ?, gender = ?, phone = ?, email = ?, updated_at = ?
		WHERE id = ?`,
		nilIfEmpty(u.FirstName), nilIfEmpty(u.LastName), nilIfZero(u.Age),
		nilIfEmpty(string(u.Gender)), nilIfEmpty(u.Phone), nilIfEmpty(u.Email), time.Now(), u.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateUser failed", "error", err, "id", u.ID)
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *SQLiteStore) CreateOrder(o models.Order) (models.Order, error) {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.Platform, o.Description, o.Weight, string(ingredients),
		nilIfEmpty(o.DeliveryDate), o.Status, o.Price, nilIfEmpty(o.ImageURL), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateOrder failed", "error", err, "userID", o.UserID)
		return models.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}
	slog.Info("SQLiteStore CreateOrder succeeded", "id", o.ID, "userID", o.UserID, "platform", o.Platform)
	return o, nil
}

func (s *SQLiteStore) GetOrder(id string) (*models.Order, error) {
	row := s.db.QueryRow(`SELECT id, user_id, platform, description, weight, ingredients, delivery_date, status, price, image_url, created_at, updated_at
		FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetOrder failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return &o, nil
}

func (s *SQLiteStore) UpdateOrderStatus(id string, status models.OrderStatus) error {
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
	_, err = s.db.Exec(`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateOrderStatus failed", "error", err, "id", id, "status", status)
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateOrderImage(id, imageURL string) error {
	res, err := s.db.Exec(`UPDATE orders SET image_url = ?, updated_at = ? WHERE id = ?`, imageURL, time.Now(), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateOrderImage failed", "error", err, "id", id)
		return fmt.Errorf("failed to update order image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrOrderNotFound
	}
	return nil
}

func (s *SQLiteStore) ListOrdersByUser(userID string) ([]models.Order, error) {
	rows, err := s.db.Query(`SELECT id, user_id, platform, description, weight, ingredients, delivery_date, status, price, image_url, created_at, updated_at
		FROM orders WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		slog.Error("SQLiteStore ListOrdersByUser query failed", "error", err, "userID", userID)
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

func (s *SQLiteStore) CreateChatRecord(c models.ChatRecord) (models.ChatRecord, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO chats (id, user_id, platform, message, response, ai_model, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Platform, c.Message, nilIfEmpty(c.Response), nilIfEmpty(c.AIModel), c.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore CreateChatRecord failed", "error", err, "userID", c.UserID)
		return models.ChatRecord{}, fmt.Errorf("failed to insert chat record: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListChatsByUser(userID string) ([]models.ChatRecord, error) {
	rows, err := s.db.Query(`SELECT id, user_id, platform, message, response, ai_model, timestamp
		FROM chats WHERE user_id = ? ORDER BY timestamp`, userID)
	if err != nil {
		slog.Error("SQLiteStore ListChatsByUser query failed", "error", err, "userID", userID)
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

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
