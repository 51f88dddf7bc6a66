package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/koyomi-dev/koyomi/internal/gcal"
	"github.com/koyomi-dev/koyomi/internal/logx"
	"github.com/koyomi-dev/koyomi/internal/server/db"
)

// Syncer is the slice of the sync engine the worker drives.
type Syncer interface {
	CreateRemote(ctx context.Context, userID int64, ev *db.Event, participants []*db.User) gcal.Result
	UpdateRemote(ctx context.Context, userID int64, ev *db.Event, participants []*db.User) gcal.Result
	DeleteRemote(ctx context.Context, userID int64, googleEventID string) gcal.Result
	SendMail(ctx context.Context, userID int64, to, subject, body string) gcal.Result
}

// Store re-loads entities by identifier inside the deferred job. In-memory
// state from the enqueuing request is never trusted.
type Store interface {
	GetEvent(id int64) (*db.Event, error)
	GetUser(id int64) (*db.User, error)
	GetParticipants(eventID int64) ([]*db.User, error)
}

// Handler executes sync jobs. Outcomes are logged, never surfaced to the
// original caller. A terminal result consumes the task; a transport-class
// failure is returned to asynq so the at-least-once machinery redelivers.
type Handler struct {
	store  Store
	syncer Syncer
}

func NewHandler(store Store, syncer Syncer) *Handler {
	return &Handler{store: store, syncer: syncer}
}

// Register wires the handler into an asynq mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeEventCreate, h.HandleEventCreate)
	mux.HandleFunc(TypeEventUpdate, h.HandleEventUpdate)
	mux.HandleFunc(TypeEventDelete, h.HandleEventDelete)
	mux.HandleFunc(TypeMailSend, h.HandleMailSend)
}

func (h *Handler) HandleEventCreate(ctx context.Context, t *asynq.Task) error {
	var p EventSyncPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	ev, user, participants, gerr := h.loadEvent(p.EventID, p.UserID)
	if gerr != nil {
		return finish(t.Type(), p.EventID, gcal.Failure(gerr))
	}
	return finish(t.Type(), p.EventID, h.syncer.CreateRemote(ctx, user.ID, ev, participants))
}

func (h *Handler) HandleEventUpdate(ctx context.Context, t *asynq.Task) error {
	var p EventSyncPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	ev, user, participants, gerr := h.loadEvent(p.EventID, p.UserID)
	if gerr != nil {
		return finish(t.Type(), p.EventID, gcal.Failure(gerr))
	}
	return finish(t.Type(), p.EventID, h.syncer.UpdateRemote(ctx, user.ID, ev, participants))
}

func (h *Handler) HandleEventDelete(ctx context.Context, t *asynq.Task) error {
	var p EventDeletePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	user, err := h.store.GetUser(p.UserID)
	if err != nil {
		return finish(t.Type(), p.EventID, gcal.Failf(gcal.KindTransport, "load user %d: %v", p.UserID, err))
	}
	if user == nil {
		return finish(t.Type(), p.EventID, gcal.Failf(gcal.KindAccountNotFound, "user %d not found", p.UserID))
	}

	// The local row is expected to be gone already; the delete is keyed by
	// the external id carried in the payload, so that is fine.
	return finish(t.Type(), p.EventID, h.syncer.DeleteRemote(ctx, user.ID, p.GoogleEventID))
}

func (h *Handler) HandleMailSend(ctx context.Context, t *asynq.Task) error {
	var p MailSendPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	user, err := h.store.GetUser(p.UserID)
	if err != nil {
		return finish(t.Type(), p.UserID, gcal.Failf(gcal.KindTransport, "load user %d: %v", p.UserID, err))
	}
	if user == nil {
		return finish(t.Type(), p.UserID, gcal.Failf(gcal.KindAccountNotFound, "user %d not found", p.UserID))
	}
	return finish(t.Type(), p.UserID, h.syncer.SendMail(ctx, user.ID, p.To, p.Subject, p.Body))
}

// loadEvent re-loads the event, its owner-or-payload user, and participants.
func (h *Handler) loadEvent(eventID, userID int64) (*db.Event, *db.User, []*db.User, *gcal.Error) {
	ev, err := h.store.GetEvent(eventID)
	if err != nil {
		return nil, nil, nil, gcal.Errf(gcal.KindTransport, "load event %d: %v", eventID, err)
	}
	if ev == nil {
		return nil, nil, nil, gcal.Errf(gcal.KindEventNotFound, "event %d not found", eventID)
	}

	user, err := h.store.GetUser(userID)
	if err != nil {
		return nil, nil, nil, gcal.Errf(gcal.KindTransport, "load user %d: %v", userID, err)
	}
	if user == nil {
		return nil, nil, nil, gcal.Errf(gcal.KindAccountNotFound, "user %d not found", userID)
	}

	participants, err := h.store.GetParticipants(eventID)
	if err != nil {
		return nil, nil, nil, gcal.Errf(gcal.KindTransport, "load participants of event %d: %v", eventID, err)
	}
	return ev, user, participants, nil
}

// finish records the job outcome and translates it into asynq's retry
// contract. Nothing here ever panics out of the worker.
func finish(taskType string, id int64, res gcal.Result) error {
	if res.OK {
		logx.Infof("%s id=%d: %s", taskType, id, res)
		return nil
	}
	if res.Retryable() {
		logx.Warnf("%s id=%d failed, will retry: %s", taskType, id, res)
		return fmt.Errorf("%s id=%d: %s", taskType, id, res)
	}
	logx.Warnf("%s id=%d failed terminally: %s", taskType, id, res)
	return nil
}
