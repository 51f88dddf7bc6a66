package db

import "time"

// User is an application account. Accounts are created on first Google
// login, keyed by the verified email address.
type User struct {
	ID        int64
	Email     string
	Name      string
	CreatedAt time.Time
}

// GoogleToken holds the Google OAuth2 credential set for one user.
// Exactly one row per user; client id/secret are duplicated per row but in
// practice constant across a deployment.
type GoogleToken struct {
	UserID       int64
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	TokenURI     string
	// Expiry is the absolute expiry of AccessToken. Zero means unknown,
	// which is treated as expired.
	Expiry    time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Event is a locally-stored calendar event, mirrored to Google Calendar.
type Event struct {
	ID          int64
	Title       string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	// CreatedBy is nil for ownerless events (the owner was deleted, or the
	// row was seeded without one).
	CreatedBy *int64
	// GoogleEventID is the provider-assigned identifier. Empty until the
	// first successful remote create; cleared when the remote copy is gone.
	GoogleEventID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
