package db

import (
	"database/sql"
	"fmt"
)

// CreateEvent inserts an event and its participant links in one transaction.
// The event's ID is set on success.
func (s *Store) CreateEvent(ev *Event, participantIDs []int64) error {
	if !ev.EndTime.After(ev.StartTime) {
		return ErrEndNotAfterStart
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin create event: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO events (title, description, start_time, end_time, created_by, google_event_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Title, ev.Description, ev.StartTime.UTC(), ev.EndTime.UTC(),
		ev.CreatedBy, nullIfEmpty(ev.GoogleEventID),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}

	for _, uid := range participantIDs {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO event_participants (event_id, user_id) VALUES (?, ?)`,
			id, uid,
		); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create event: %w", err)
	}
	ev.ID = id
	return nil
}

// GetEvent retrieves an event by id. Returns nil, nil when not found.
func (s *Store) GetEvent(id int64) (*Event, error) {
	ev := &Event{}
	var createdBy sql.NullInt64
	var googleID sql.NullString
	err := s.db.QueryRow(
		`SELECT id, title, description, start_time, end_time, created_by,
		        google_event_id, created_at, updated_at
		 FROM events WHERE id = ?`, id,
	).Scan(&ev.ID, &ev.Title, &ev.Description, &ev.StartTime, &ev.EndTime,
		&createdBy, &googleID, &ev.CreatedAt, &ev.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if createdBy.Valid {
		ev.CreatedBy = &createdBy.Int64
	}
	if googleID.Valid {
		ev.GoogleEventID = googleID.String
	}
	return ev, nil
}

// ListEvents returns all events ordered by start time.
func (s *Store) ListEvents() ([]*Event, error) {
	rows, err := s.db.Query(
		`SELECT id, title, description, start_time, end_time, created_by,
		        google_event_id, created_at, updated_at
		 FROM events ORDER BY start_time`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev := &Event{}
		var createdBy sql.NullInt64
		var googleID sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.StartTime, &ev.EndTime,
			&createdBy, &googleID, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if createdBy.Valid {
			ev.CreatedBy = &createdBy.Int64
		}
		if googleID.Valid {
			ev.GoogleEventID = googleID.String
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// UpdateEvent rewrites an event's mutable fields and replaces its participant
// set in one transaction. The google_event_id column is deliberately not
// touched here; only the sync path writes it.
func (s *Store) UpdateEvent(ev *Event, participantIDs []int64) error {
	if !ev.EndTime.After(ev.StartTime) {
		return ErrEndNotAfterStart
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin update event: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE events SET title = ?, description = ?, start_time = ?, end_time = ?,
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		ev.Title, ev.Description, ev.StartTime.UTC(), ev.EndTime.UTC(), ev.ID,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update event: no event %d", ev.ID)
	}

	if _, err := tx.Exec(`DELETE FROM event_participants WHERE event_id = ?`, ev.ID); err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}
	for _, uid := range participantIDs {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO event_participants (event_id, user_id) VALUES (?, ?)`,
			ev.ID, uid,
		); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update event: %w", err)
	}
	return nil
}

// DeleteEvent removes an event; participant links cascade.
func (s *Store) DeleteEvent(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// SetEventGoogleID records the provider-assigned identifier after a
// successful remote create. Pass "" to clear it (remote copy gone).
func (s *Store) SetEventGoogleID(eventID int64, googleEventID string) error {
	_, err := s.db.Exec(
		`UPDATE events SET google_event_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		nullIfEmpty(googleEventID), eventID,
	)
	if err != nil {
		return fmt.Errorf("set google event id: %w", err)
	}
	return nil
}

// GetParticipants returns the participant users of an event.
func (s *Store) GetParticipants(eventID int64) ([]*User, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.email, u.name, u.created_at
		 FROM event_participants p JOIN users u ON u.id = p.user_id
		 WHERE p.event_id = ? ORDER BY u.id`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("get participants: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
