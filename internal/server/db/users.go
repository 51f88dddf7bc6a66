package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// GetOrCreateUserByEmail returns the user with the given email, creating it
// first if necessary.
func (s *Store) GetOrCreateUserByEmail(email, name string) (*User, error) {
	if u, err := s.GetUserByEmail(email); err != nil || u != nil {
		return u, err
	}

	res, err := s.db.Exec(
		`INSERT INTO users (email, name) VALUES (?, ?)
		 ON CONFLICT(email) DO NOTHING`, email, name,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost a race with a concurrent insert; the row exists now.
		return s.GetUserByEmail(email)
	}
	return s.GetUserByEmail(email)
}

// GetUser retrieves a user by id. Returns nil, nil when not found.
func (s *Store) GetUser(id int64) (*User, error) {
	u := &User{}
	err := s.db.QueryRow(
		`SELECT id, email, name, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email. Returns nil, nil when not found.
func (s *Store) GetUserByEmail(email string) (*User, error) {
	u := &User{}
	err := s.db.QueryRow(
		`SELECT id, email, name, created_at FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetUsersByIDs retrieves the users for the given ids, in no particular
// order. Missing ids are silently absent from the result.
func (s *Store) GetUsersByIDs(ids []int64) ([]*User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(
		`SELECT id, email, name, created_at FROM users WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("get users by ids: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes a user. Tokens, owned events and participant links go
// with it via foreign-key cascade.
func (s *Store) DeleteUser(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
