package db

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertGoogleToken inserts or updates a user's Google credential set.
// An empty RefreshToken on update keeps the stored one: Google only returns
// a refresh token on the first consent, so a re-login without one must not
// wipe the credential we already hold.
func (s *Store) UpsertGoogleToken(t *GoogleToken) error {
	var expiry any
	if !t.Expiry.IsZero() {
		expiry = t.Expiry.UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO google_tokens
		   (user_id, access_token, refresh_token, client_id, client_secret, token_uri, expiry)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   access_token = excluded.access_token,
		   refresh_token = CASE WHEN excluded.refresh_token = ''
		     THEN google_tokens.refresh_token ELSE excluded.refresh_token END,
		   client_id = excluded.client_id,
		   client_secret = excluded.client_secret,
		   token_uri = excluded.token_uri,
		   expiry = excluded.expiry,
		   updated_at = CURRENT_TIMESTAMP`,
		t.UserID, t.AccessToken, t.RefreshToken, t.ClientID, t.ClientSecret, t.TokenURI, expiry,
	)
	if err != nil {
		return fmt.Errorf("upsert google token: %w", err)
	}
	return nil
}

// GetGoogleToken retrieves a user's credential record. Returns nil, nil when
// the user never completed a Google login.
func (s *Store) GetGoogleToken(userID int64) (*GoogleToken, error) {
	t := &GoogleToken{}
	var expiry sql.NullTime
	err := s.db.QueryRow(
		`SELECT user_id, access_token, refresh_token, client_id, client_secret,
		        token_uri, expiry, created_at, updated_at
		 FROM google_tokens WHERE user_id = ?`, userID,
	).Scan(&t.UserID, &t.AccessToken, &t.RefreshToken, &t.ClientID, &t.ClientSecret,
		&t.TokenURI, &expiry, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get google token: %w", err)
	}
	if expiry.Valid {
		t.Expiry = expiry.Time
	}
	return t, nil
}

// UpdateGoogleTokenSecrets persists the outcome of a refresh round-trip in a
// single statement: access token and expiry always, refresh token only when
// the provider reissued one. Either all fields land or none do.
func (s *Store) UpdateGoogleTokenSecrets(userID int64, accessToken, refreshToken string, expiry time.Time) error {
	res, err := s.db.Exec(
		`UPDATE google_tokens SET
		   access_token = ?,
		   refresh_token = CASE WHEN ? = '' THEN refresh_token ELSE ? END,
		   expiry = ?,
		   updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ?`,
		accessToken, refreshToken, refreshToken, expiry.UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("update google token secrets: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update google token secrets: no record for user %d", userID)
	}
	return nil
}
