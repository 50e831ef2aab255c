package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User is an account that owns jobs and provider credentials.
type User struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Name         string `json:"name"`
	CreatedAt    string `json:"created_at"`
}

// CreateUser inserts a new account and returns its id.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, name) VALUES (?, ?, ?)`,
		email, passwordHash, name)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create user id: %w", err)
	}
	return id, nil
}

// UserByEmail loads an account by email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, COALESCE(name,''), created_at FROM users WHERE email = ?`, email))
}

// UserByID loads an account by id.
func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, COALESCE(name,''), created_at FROM users WHERE id = ?`, id))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// SetKey stores (or replaces) one provider credential for a user. An empty
// value deletes the credential.
func (s *Store) SetKey(ctx context.Context, userID int64, keyName, keyValue string) error {
	if keyValue == "" {
		return s.DeleteKey(ctx, userID, keyName)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO user_keys (user_id, key_name, key_value) VALUES (?, ?, ?)`,
		userID, keyName, keyValue)
	if err != nil {
		return fmt.Errorf("set key: %w", err)
	}
	return nil
}

// GetKey returns the credential value, or empty string when absent.
func (s *Store) GetKey(ctx context.Context, userID int64, keyName string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT key_value FROM user_keys WHERE user_id = ? AND key_name = ?`,
		userID, keyName).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get key: %w", err)
	}
	return value, nil
}

// ListKeys returns the names of credentials the user has stored.
func (s *Store) ListKeys(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key_name FROM user_keys WHERE user_id = ? ORDER BY key_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan key name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteKey removes one credential.
func (s *Store) DeleteKey(ctx context.Context, userID int64, keyName string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_keys WHERE user_id = ? AND key_name = ?`, userID, keyName)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}
