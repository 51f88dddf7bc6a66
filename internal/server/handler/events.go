package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/koyomi-dev/koyomi/internal/logx"
	"github.com/koyomi-dev/koyomi/internal/server/db"
	"github.com/koyomi-dev/koyomi/internal/tasks"
)

type eventRequest struct {
	Title        string    `json:"title" binding:"required"`
	Description  string    `json:"description"`
	StartTime    time.Time `json:"start_time" binding:"required"`
	EndTime      time.Time `json:"end_time" binding:"required"`
	Participants []int64   `json:"participants"`
}

// checkParticipants reports whether every requested participant id exists.
func checkParticipants(store *db.Store, ids []int64) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	users, err := store.GetUsersByIDs(ids)
	if err != nil {
		return false, err
	}
	found := make(map[int64]bool, len(users))
	for _, u := range users {
		found[u.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return false, nil
		}
	}
	return true, nil
}

func eventJSON(store *db.Store, ev *db.Event) (gin.H, error) {
	participants, err := store.GetParticipants(ev.ID)
	if err != nil {
		return nil, err
	}
	plist := make([]gin.H, 0, len(participants))
	for _, p := range participants {
		plist = append(plist, gin.H{"id": p.ID, "email": p.Email, "name": p.Name})
	}
	return gin.H{
		"id":              ev.ID,
		"title":           ev.Title,
		"description":     ev.Description,
		"start_time":      ev.StartTime,
		"end_time":        ev.EndTime,
		"created_by":      ev.CreatedBy,
		"google_event_id": ev.GoogleEventID,
		"participants":    plist,
		"created_at":      ev.CreatedAt,
		"updated_at":      ev.UpdatedAt,
	}, nil
}

// HandleCreateEvent handles POST /v1/events. The row commits first; the
// remote sync is enqueued afterwards and an enqueue failure never rolls the
// request back.
func HandleCreateEvent(store *db.Store, enq tasks.Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req eventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ok, err := checkParticipants(store, req.Participants)
		if err != nil {
			logx.Errorf("check participants: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create event"})
			return
		}
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown participant"})
			return
		}

		uid := callerID(c)
		ev := &db.Event{
			Title:       req.Title,
			Description: req.Description,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			CreatedBy:   &uid,
		}
		if err := store.CreateEvent(ev, req.Participants); err != nil {
			if errors.Is(err, db.ErrEndNotAfterStart) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "end_time must be after start_time"})
				return
			}
			logx.Errorf("CreateEvent: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create event"})
			return
		}

		if err := enq.EnqueueEventCreate(ev.ID, uid); err != nil {
			logx.Errorf("enqueue create sync event=%d: %v", ev.ID, err)
		}

		body, err := eventJSON(store, ev)
		if err != nil {
			logx.Errorf("load participants event=%d: %v", ev.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load event"})
			return
		}
		c.JSON(http.StatusCreated, body)
	}
}

// HandleListEvents handles GET /v1/events.
func HandleListEvents(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := store.ListEvents()
		if err != nil {
			logx.Errorf("ListEvents: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
			return
		}
		out := make([]gin.H, 0, len(events))
		for _, ev := range events {
			body, err := eventJSON(store, ev)
			if err != nil {
				logx.Errorf("load participants event=%d: %v", ev.ID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
				return
			}
			out = append(out, body)
		}
		c.JSON(http.StatusOK, out)
	}
}

// HandleGetEvent handles GET /v1/events/:id.
func HandleGetEvent(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
			return
		}
		ev, err := store.GetEvent(id)
		if err != nil {
			logx.Errorf("GetEvent(%d): %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load event"})
			return
		}
		if ev == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		body, err := eventJSON(store, ev)
		if err != nil {
			logx.Errorf("load participants event=%d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load event"})
			return
		}
		c.JSON(http.StatusOK, body)
	}
}

// HandleUpdateEvent handles PUT /v1/events/:id.
func HandleUpdateEvent(store *db.Store, enq tasks.Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
			return
		}
		ev, err := store.GetEvent(id)
		if err != nil {
			logx.Errorf("GetEvent(%d): %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load event"})
			return
		}
		if ev == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}

		var req eventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ok, err := checkParticipants(store, req.Participants)
		if err != nil {
			logx.Errorf("check participants: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update event"})
			return
		}
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown participant"})
			return
		}

		ev.Title = req.Title
		ev.Description = req.Description
		ev.StartTime = req.StartTime
		ev.EndTime = req.EndTime
		if err := store.UpdateEvent(ev, req.Participants); err != nil {
			if errors.Is(err, db.ErrEndNotAfterStart) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "end_time must be after start_time"})
				return
			}
			logx.Errorf("UpdateEvent(%d): %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update event"})
			return
		}

		if err := enq.EnqueueEventUpdate(ev.ID, callerID(c)); err != nil {
			logx.Errorf("enqueue update sync event=%d: %v", ev.ID, err)
		}

		body, err := eventJSON(store, ev)
		if err != nil {
			logx.Errorf("load participants event=%d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load event"})
			return
		}
		c.JSON(http.StatusOK, body)
	}
}

// HandleDeleteEvent handles DELETE /v1/events/:id. The google_event_id is
// captured and enqueued before the row is removed, so the remote copy can
// still be cleaned up after the local one is gone.
func HandleDeleteEvent(store *db.Store, enq tasks.Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
			return
		}
		ev, err := store.GetEvent(id)
		if err != nil {
			logx.Errorf("GetEvent(%d): %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load event"})
			return
		}
		if ev == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}

		if ev.GoogleEventID != "" && ev.CreatedBy != nil {
			if err := enq.EnqueueEventDelete(ev.ID, *ev.CreatedBy, ev.GoogleEventID); err != nil {
				logx.Errorf("enqueue delete sync event=%d: %v", ev.ID, err)
			}
		}

		if err := store.DeleteEvent(id); err != nil {
			logx.Errorf("DeleteEvent(%d): %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete event"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type mailRequest struct {
	To      string `json:"to" binding:"required,email"`
	Subject string `json:"subject" binding:"required"`
	Body    string `json:"body"`
}

// HandleSendMail handles POST /v1/mail: queues a send through the caller's
// Gmail account.
func HandleSendMail(enq tasks.Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req mailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := enq.EnqueueMailSend(callerID(c), req.To, req.Subject, req.Body); err != nil {
			logx.Errorf("enqueue mail send: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue mail"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	}
}
