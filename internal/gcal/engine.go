package gcal

import (
	"context"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/koyomi-dev/koyomi/internal/logx"
	"github.com/koyomi-dev/koyomi/internal/server/db"
)

// EventStore is the slice of the database the engine writes back to.
type EventStore interface {
	SetEventGoogleID(eventID int64, googleEventID string) error
}

// Engine mirrors local events to the user's primary Google calendar.
// All operations return a tagged Result; nothing escapes as a panic or a
// bare error, since callers are usually fire-and-forget jobs.
type Engine struct {
	clients  ClientBuilder
	store    EventStore
	timezone string
}

func NewEngine(clients ClientBuilder, store EventStore, timezone string) *Engine {
	return &Engine{clients: clients, store: store, timezone: timezone}
}

// BuildEventBody converts a local event into the provider representation.
// Pure: no I/O, no mutation. Timestamps always carry the configured zone
// identifier; a naive timestamp never reaches the wire.
func BuildEventBody(ev *db.Event, participants []*db.User, timezone string) *calendar.Event {
	body := &calendar.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Start: &calendar.EventDateTime{
			DateTime: ev.StartTime.Format(time.RFC3339),
			TimeZone: timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: ev.EndTime.Format(time.RFC3339),
			TimeZone: timezone,
		},
	}
	for _, p := range participants {
		body.Attendees = append(body.Attendees, &calendar.EventAttendee{Email: p.Email})
	}
	return body
}

// CreateRemote inserts the event into the user's calendar and persists the
// provider-assigned id on the local row. On any failure the local row keeps
// whatever external id it had.
//
// Delivery is at-least-once, so a replayed create may find the external id
// already written by an earlier run; it then converges to a full-replace
// update keyed by that id instead of inserting a duplicate.
func (e *Engine) CreateRemote(ctx context.Context, userID int64, ev *db.Event, participants []*db.User) Result {
	if !ev.EndTime.After(ev.StartTime) {
		return Failf(KindValidation, "event %d: end_time must be after start_time", ev.ID)
	}

	api, rerr := e.clients.Calendar(ctx, userID)
	if rerr != nil {
		return Failure(rerr)
	}

	if ev.GoogleEventID != "" {
		logx.Infof("event %d already has google id %s, updating instead", ev.ID, ev.GoogleEventID)
		return e.updateRemote(ctx, api, ev, participants)
	}

	created, err := api.Insert(ctx, BuildEventBody(ev, participants, e.timezone))
	if err != nil {
		return Failure(classify(err))
	}
	if serr := e.store.SetEventGoogleID(ev.ID, created.Id); serr != nil {
		return Failf(KindTransport, "persist google event id for event %d: %v", ev.ID, serr)
	}
	ev.GoogleEventID = created.Id
	return Success(created.Id)
}

// UpdateRemote replaces the remote copy of the event (full body, not a
// patch). Fails fast when the event was never synced; the transport is not
// touched in that case.
func (e *Engine) UpdateRemote(ctx context.Context, userID int64, ev *db.Event, participants []*db.User) Result {
	if !ev.EndTime.After(ev.StartTime) {
		return Failf(KindValidation, "event %d: end_time must be after start_time", ev.ID)
	}
	if ev.GoogleEventID == "" {
		return Failf(KindNoExternalID, "event %d has no google_event_id", ev.ID)
	}

	api, rerr := e.clients.Calendar(ctx, userID)
	if rerr != nil {
		return Failure(rerr)
	}
	return e.updateRemote(ctx, api, ev, participants)
}

func (e *Engine) updateRemote(ctx context.Context, api CalendarAPI, ev *db.Event, participants []*db.User) Result {
	updated, err := api.Update(ctx, ev.GoogleEventID, BuildEventBody(ev, participants, e.timezone))
	if err != nil {
		return Failure(classify(err))
	}
	return Success(updated.Id)
}

// DeleteRemote removes the remote copy keyed by the carried external id.
// The id is a parameter, not read from the event: in the delete-on-delete
// path the local row is already gone by the time the job runs.
func (e *Engine) DeleteRemote(ctx context.Context, userID int64, googleEventID string) Result {
	if googleEventID == "" {
		return Failf(KindNoExternalID, "no google_event_id to delete")
	}

	api, rerr := e.clients.Calendar(ctx, userID)
	if rerr != nil {
		return Failure(rerr)
	}
	if err := api.Delete(ctx, googleEventID); err != nil {
		// A 404/410 here just means the remote copy is already gone,
		// e.g. a delete job overtook an update job. Still reported as a
		// failure result, but harmless.
		return Failure(classify(err))
	}
	return Success(googleEventID)
}
