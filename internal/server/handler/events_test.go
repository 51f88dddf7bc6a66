package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/koyomi-dev/koyomi/internal/server/db"
)

type enqueueCall struct {
	eventID  int64
	userID   int64
	googleID string
}

type fakeEnqueuer struct {
	creates []enqueueCall
	updates []enqueueCall
	deletes []enqueueCall
	mails   []enqueueCall
	mailTo  []string
	err     error
}

func (f *fakeEnqueuer) EnqueueEventCreate(eventID, userID int64) error {
	f.creates = append(f.creates, enqueueCall{eventID: eventID, userID: userID})
	return f.err
}

func (f *fakeEnqueuer) EnqueueEventUpdate(eventID, userID int64) error {
	f.updates = append(f.updates, enqueueCall{eventID: eventID, userID: userID})
	return f.err
}

func (f *fakeEnqueuer) EnqueueEventDelete(eventID, userID int64, googleEventID string) error {
	f.deletes = append(f.deletes, enqueueCall{eventID: eventID, userID: userID, googleID: googleEventID})
	return f.err
}

func (f *fakeEnqueuer) EnqueueMailSend(userID int64, to, subject, body string) error {
	f.mails = append(f.mails, enqueueCall{userID: userID})
	f.mailTo = append(f.mailTo, to)
	return f.err
}

func eventRouter(store *db.Store, enq *fakeEnqueuer, uid int64) *gin.Engine {
	r := gin.New()
	g := r.Group("", asUser(uid))
	g.POST("/events", HandleCreateEvent(store, enq))
	g.GET("/events", HandleListEvents(store))
	g.GET("/events/:id", HandleGetEvent(store))
	g.PUT("/events/:id", HandleUpdateEvent(store, enq))
	g.DELETE("/events/:id", HandleDeleteEvent(store, enq))
	g.POST("/mail", HandleSendMail(enq))
	return r
}

func validEventBody(participants ...int64) map[string]any {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	return map[string]any{
		"title":        "standup",
		"description":  "daily",
		"start_time":   start,
		"end_time":     start.Add(30 * time.Minute),
		"participants": participants,
	}
}

func TestCreateEvent(t *testing.T) {
	store := newTestStore(t)
	uid := seedUser(t, store, "owner@example.com")
	pid := seedUser(t, store, "guest@example.com")
	enq := &fakeEnqueuer{}
	r := eventRouter(store, enq, uid)

	w := doJSON(t, r, http.MethodPost, "/events", validEventBody(pid))
	requireStatus(t, w, http.StatusCreated)

	body := decodeBody(t, w)
	if body["title"] != "standup" {
		t.Errorf("title = %v", body["title"])
	}
	if len(body["participants"].([]any)) != 1 {
		t.Errorf("participants = %v", body["participants"])
	}

	if len(enq.creates) != 1 {
		t.Fatalf("creates = %d, want 1", len(enq.creates))
	}
	if enq.creates[0].userID != uid {
		t.Errorf("enqueued userID = %d, want %d", enq.creates[0].userID, uid)
	}

	ev, err := store.GetEvent(enq.creates[0].eventID)
	if err != nil || ev == nil {
		t.Fatalf("GetEvent after create: ev=%v err=%v", ev, err)
	}
	if ev.CreatedBy == nil || *ev.CreatedBy != uid {
		t.Errorf("CreatedBy = %v, want %d", ev.CreatedBy, uid)
	}
}

func TestCreateEventRejectsBadRange(t *testing.T) {
	store := newTestStore(t)
	uid := seedUser(t, store, "owner@example.com")
	enq := &fakeEnqueuer{}
	r := eventRouter(store, enq, uid)

	body := validEventBody()
	body["end_time"] = body["start_time"]
	w := doJSON(t, r, http.MethodPost, "/events", body)
	requireStatus(t, w, http.StatusBadRequest)

	if len(enq.creates) != 0 {
		t.Errorf("bad request must enqueue nothing, got %d", len(enq.creates))
	}
	events, err := store.ListEvents()
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("bad request must write nothing, got %d rows", len(events))
	}
}

func TestCreateEventRejectsUnknownParticipant(t *testing.T) {
	store := newTestStore(t)
	uid := seedUser(t, store, "owner@example.com")
	enq := &fakeEnqueuer{}
	r := eventRouter(store, enq, uid)

	w := doJSON(t, r, http.MethodPost, "/events", validEventBody(999))
	requireStatus(t, w, http.StatusBadRequest)

	if len(enq.creates) != 0 {
		t.Errorf("rejected create must enqueue nothing, got %d", len(enq.creates))
	}
}

func TestCreateEventSucceedsWhenEnqueueFails(t *testing.T) {
	store := newTestStore(t)
	uid := seedUser(t, store, "owner@example.com")
	enq := &fakeEnqueuer{err: fmt.Errorf("broker down")}
	r := eventRouter(store, enq, uid)

	w := doJSON(t, r, http.MethodPost, "/events", validEventBody())
	requireStatus(t, w, http.StatusCreated)

	events, err := store.ListEvents()
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("row must survive an enqueue failure, got %d rows", len(events))
	}
}

func TestGetEventNotFound(t *testing.T) {
	store := newTestStore(t)
	uid := seedUser(t, store, "owner@example.com")
	r := eventRouter(store, &fakeEnqueuer{}, uid)

	requireStatus(t, doJSON(t, r, http.MethodGet, "/events/99", nil), http.StatusNotFound)
	requireStatus(t, doJSON(t, r, http.MethodGet, "/events/abc", nil), http.StatusBadRequest)
}

func TestUpdateEvent(t *testing.T) {
	store := newTestStore(t)
	uid := seedUser(t, store, "owner@example.com")
	enq := &fakeEnqueuer{}
	r := eventRouter(store, enq, uid)

	w := doJSON(t, r, http.MethodPost, "/events", validEventBody())
	requireStatus(t, w, http.StatusCreated)
	evID := enq.creates[0].eventID

	body := validEventBody()
	body["title"] = "retro"
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/events/%d", evID), body)
	requireStatus(t, w, http.StatusOK)

	ev, err := store.GetEvent(evID)
	if err != nil || ev == nil {
		t.Fatalf("GetEvent: ev=%v err=%v", ev, err)
	}
	if ev.Title != "retro" {
		t.Errorf("Title = %q", ev.Title)
	}
	if len(enq.updates) != 1 || enq.updates[0].eventID != evID {
		t.Errorf("updates = %+v", enq.updates)
	}
}

func TestDeleteEventEnqueuesCarriedGoogleID(t *testing.T) {
	store := newTestStore(t)
	uid := seedUser(t, store, "owner@example.com")
	enq := &fakeEnqueuer{}
	r := eventRouter(store, enq, uid)

	w := doJSON(t, r, http.MethodPost, "/events", validEventBody())
	requireStatus(t, w, http.StatusCreated)
	evID := enq.creates[0].eventID
	if err := store.SetEventGoogleID(evID, "gev_123"); err != nil {
		t.Fatalf("SetEventGoogleID: %v", err)
	}

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/events/%d", evID), nil)
	requireStatus(t, w, http.StatusNoContent)

	if len(enq.deletes) != 1 {
		t.Fatalf("deletes = %d, want 1", len(enq.deletes))
	}
	got := enq.deletes[0]
	if got.eventID != evID || got.userID != uid || got.googleID != "gev_123" {
		t.Errorf("delete payload = %+v", got)
	}

	ev, err := store.GetEvent(evID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if ev != nil {
		t.Error("row must be gone after delete")
	}
}

func TestDeleteEventWithoutGoogleIDEnqueuesNothing(t *testing.T) {
	store := newTestStore(t)
	uid := seedUser(t, store, "owner@example.com")
	enq := &fakeEnqueuer{}
	r := eventRouter(store, enq, uid)

	w := doJSON(t, r, http.MethodPost, "/events", validEventBody())
	requireStatus(t, w, http.StatusCreated)
	evID := enq.creates[0].eventID

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/events/%d", evID), nil)
	requireStatus(t, w, http.StatusNoContent)

	if len(enq.deletes) != 0 {
		t.Errorf("never-synced event must not enqueue a remote delete, got %d", len(enq.deletes))
	}
}

func TestSendMail(t *testing.T) {
	store := newTestStore(t)
	uid := seedUser(t, store, "owner@example.com")
	enq := &fakeEnqueuer{}
	r := eventRouter(store, enq, uid)

	w := doJSON(t, r, http.MethodPost, "/mail", map[string]any{
		"to": "dest@example.com", "subject": "hi", "body": "text",
	})
	requireStatus(t, w, http.StatusAccepted)
	if len(enq.mails) != 1 || enq.mails[0].userID != uid || enq.mailTo[0] != "dest@example.com" {
		t.Errorf("mails = %+v to = %v", enq.mails, enq.mailTo)
	}

	w = doJSON(t, r, http.MethodPost, "/mail", map[string]any{"to": "not-an-address", "subject": "hi"})
	requireStatus(t, w, http.StatusBadRequest)
}
