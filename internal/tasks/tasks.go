// Package tasks is the boundary between the request path and the sync
// engine: mutations enqueue jobs carrying primitive identifiers, and a
// worker process executes them later with at-least-once delivery.
package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names, also the routing keys on the broker.
const (
	TypeEventCreate = "calendar:event:create"
	TypeEventUpdate = "calendar:event:update"
	TypeEventDelete = "calendar:event:delete"
	TypeMailSend    = "mail:send"
)

// Payloads carry identifiers only, never live objects: the job may run in
// another process long after the enqueuing request finished.

type EventSyncPayload struct {
	EventID int64 `json:"event_id"`
	UserID  int64 `json:"user_id"`
}

type EventDeletePayload struct {
	EventID int64 `json:"event_id"`
	UserID  int64 `json:"user_id"`
	// GoogleEventID is captured before the local row is removed; by the
	// time the job runs the row is usually gone.
	GoogleEventID string `json:"google_event_id"`
}

type MailSendPayload struct {
	UserID  int64  `json:"user_id"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Enqueuer hands work to the broker. Fire-and-forget: callers only learn
// whether the enqueue itself succeeded, never the job's outcome.
type Enqueuer interface {
	EnqueueEventCreate(eventID, userID int64) error
	EnqueueEventUpdate(eventID, userID int64) error
	EnqueueEventDelete(eventID, userID int64, googleEventID string) error
	EnqueueMailSend(userID int64, to, subject, body string) error
}

const (
	maxRetry = 5
	// jobTimeout is the per-job hard deadline enforced by the broker so a
	// stuck remote call cannot pin a worker slot forever.
	jobTimeout = 2 * time.Minute
)

// Client is the asynq-backed Enqueuer.
type Client struct {
	c *asynq.Client
}

func NewClient(redisAddr string) *Client {
	return &Client{c: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

func (c *Client) Close() error {
	return c.c.Close()
}

func (c *Client) enqueue(typename string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typename, err)
	}
	task := asynq.NewTask(typename, data)
	if _, err := c.c.Enqueue(task, asynq.MaxRetry(maxRetry), asynq.Timeout(jobTimeout)); err != nil {
		return fmt.Errorf("enqueue %s: %w", typename, err)
	}
	return nil
}

func (c *Client) EnqueueEventCreate(eventID, userID int64) error {
	return c.enqueue(TypeEventCreate, EventSyncPayload{EventID: eventID, UserID: userID})
}

func (c *Client) EnqueueEventUpdate(eventID, userID int64) error {
	return c.enqueue(TypeEventUpdate, EventSyncPayload{EventID: eventID, UserID: userID})
}

func (c *Client) EnqueueEventDelete(eventID, userID int64, googleEventID string) error {
	return c.enqueue(TypeEventDelete, EventDeletePayload{
		EventID: eventID, UserID: userID, GoogleEventID: googleEventID,
	})
}

func (c *Client) EnqueueMailSend(userID int64, to, subject, body string) error {
	return c.enqueue(TypeMailSend, MailSendPayload{
		UserID: userID, To: to, Subject: subject, Body: body,
	})
}
