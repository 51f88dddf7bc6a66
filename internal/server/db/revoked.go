package db

import (
	"fmt"
	"time"
)

// RevokeJTI blacklists a refresh token's jti until its natural expiry.
func (s *Store) RevokeJTI(jti string, expiresAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?)
		 ON CONFLICT(jti) DO NOTHING`,
		jti, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("revoke jti: %w", err)
	}
	return nil
}

// IsJTIRevoked reports whether a jti is on the blacklist.
func (s *Store) IsJTIRevoked(jti string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(1) FROM revoked_tokens WHERE jti = ?`, jti,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check jti: %w", err)
	}
	return n > 0, nil
}

// PurgeExpiredJTIs drops blacklist rows whose tokens have expired anyway.
func (s *Store) PurgeExpiredJTIs(now time.Time) error {
	if _, err := s.db.Exec(
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, now.UTC(),
	); err != nil {
		return fmt.Errorf("purge jtis: %w", err)
	}
	return nil
}
