package db

import (
	"testing"
	"time"
)

func mustCreateEvent(t *testing.T, s *Store, owner *User, participants []int64) *Event {
	t.Helper()
	var createdBy *int64
	if owner != nil {
		createdBy = &owner.ID
	}
	ev := &Event{
		Title:       "Standup",
		Description: "Daily standup",
		StartTime:   time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC),
		CreatedBy:   createdBy,
	}
	if err := s.CreateEvent(ev, participants); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return ev
}

func TestCreateEventValidation(t *testing.T) {
	s := newTestStore(t)

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	for _, end := range []time.Time{start, start.Add(-time.Minute)} {
		err := s.CreateEvent(&Event{Title: "bad", StartTime: start, EndTime: end}, nil)
		if err != ErrEndNotAfterStart {
			t.Fatalf("CreateEvent(end=%v) err = %v, want ErrEndNotAfterStart", end, err)
		}
	}

	// Nothing was written.
	events, err := s.ListEvents()
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestEventCRUD(t *testing.T) {
	s := newTestStore(t)
	owner := mustCreateUser(t, s, "owner@example.com")
	p1 := mustCreateUser(t, s, "p1@example.com")
	p2 := mustCreateUser(t, s, "p2@example.com")

	ev := mustCreateEvent(t, s, owner, []int64{p1.ID, p2.ID})
	if ev.ID == 0 {
		t.Fatal("expected event id")
	}

	got, err := s.GetEvent(ev.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got == nil {
		t.Fatal("GetEvent returned nil")
	}
	if got.GoogleEventID != "" {
		t.Errorf("new event GoogleEventID = %q, want empty", got.GoogleEventID)
	}
	if got.CreatedBy == nil || *got.CreatedBy != owner.ID {
		t.Errorf("CreatedBy = %v", got.CreatedBy)
	}

	parts, err := s.GetParticipants(ev.ID)
	if err != nil {
		t.Fatalf("GetParticipants: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d participants", len(parts))
	}

	// Update replaces the participant set.
	got.Title = "Standup (moved)"
	got.EndTime = got.EndTime.Add(15 * time.Minute)
	if err := s.UpdateEvent(got, []int64{p2.ID}); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	parts, _ = s.GetParticipants(ev.ID)
	if len(parts) != 1 || parts[0].ID != p2.ID {
		t.Fatalf("participants after update: %+v", parts)
	}

	// Update validation
	got.EndTime = got.StartTime
	if err := s.UpdateEvent(got, nil); err != ErrEndNotAfterStart {
		t.Fatalf("UpdateEvent err = %v, want ErrEndNotAfterStart", err)
	}

	if err := s.DeleteEvent(ev.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	gone, err := s.GetEvent(ev.ID)
	if err != nil {
		t.Fatalf("GetEvent after delete: %v", err)
	}
	if gone != nil {
		t.Fatal("expected event gone")
	}
	parts, _ = s.GetParticipants(ev.ID)
	if len(parts) != 0 {
		t.Fatal("expected participant links to cascade")
	}
}

func TestSetEventGoogleID(t *testing.T) {
	s := newTestStore(t)
	ev := mustCreateEvent(t, s, nil, nil)

	if err := s.SetEventGoogleID(ev.ID, "gcal-1"); err != nil {
		t.Fatalf("SetEventGoogleID: %v", err)
	}
	got, _ := s.GetEvent(ev.ID)
	if got.GoogleEventID != "gcal-1" {
		t.Errorf("GoogleEventID = %q", got.GoogleEventID)
	}

	// Clearing writes NULL back.
	if err := s.SetEventGoogleID(ev.ID, ""); err != nil {
		t.Fatalf("SetEventGoogleID clear: %v", err)
	}
	got, _ = s.GetEvent(ev.ID)
	if got.GoogleEventID != "" {
		t.Errorf("GoogleEventID after clear = %q", got.GoogleEventID)
	}
}

func TestOwnerlessEvent(t *testing.T) {
	s := newTestStore(t)
	ev := mustCreateEvent(t, s, nil, nil)

	got, err := s.GetEvent(ev.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.CreatedBy != nil {
		t.Errorf("CreatedBy = %v, want nil", got.CreatedBy)
	}
}
