package gcal

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const primaryCalendarID = "primary"

// Scope sets per service surface. A stored credential record is resolved
// against whichever set the caller needs; the sets never mix.
var (
	CalendarScopes = []string{calendar.CalendarScope}
	MailScopes     = []string{gmail.GmailSendScope}
)

// CalendarAPI is the slice of the Calendar surface the sync engine calls.
type CalendarAPI interface {
	Insert(ctx context.Context, ev *calendar.Event) (*calendar.Event, error)
	Update(ctx context.Context, googleEventID string, ev *calendar.Event) (*calendar.Event, error)
	Delete(ctx context.Context, googleEventID string) error
}

// MailAPI sends one raw base64url-encoded MIME message.
type MailAPI interface {
	Send(ctx context.Context, raw string) error
}

// ClientBuilder builds authenticated per-user API surfaces.
type ClientBuilder interface {
	Calendar(ctx context.Context, userID int64) (CalendarAPI, *Error)
	Mail(ctx context.Context, userID int64) (MailAPI, *Error)
}

// Gateway resolves a user's credential and wraps Google service clients.
// Resolver errors propagate verbatim; remote-call errors are classified by
// classify. No retries happen at this layer.
type Gateway struct {
	resolver *Resolver
}

func NewGateway(resolver *Resolver) *Gateway {
	return &Gateway{resolver: resolver}
}

// Calendar builds a calendar-v3 client for the user.
func (g *Gateway) Calendar(ctx context.Context, userID int64) (CalendarAPI, *Error) {
	cred, rerr := g.resolver.Resolve(ctx, userID, CalendarScopes)
	if rerr != nil {
		return nil, rerr
	}
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(oauthClient(ctx, cred)))
	if err != nil {
		return nil, Errf(KindTransport, "create calendar service: %v", err)
	}
	return &calendarClient{svc: svc}, nil
}

// Mail builds a gmail-v1 client for the user.
func (g *Gateway) Mail(ctx context.Context, userID int64) (MailAPI, *Error) {
	cred, rerr := g.resolver.Resolve(ctx, userID, MailScopes)
	if rerr != nil {
		return nil, rerr
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oauthClient(ctx, cred)))
	if err != nil {
		return nil, Errf(KindTransport, "create gmail service: %v", err)
	}
	return &mailClient{svc: svc}, nil
}

// oauthClient builds the authenticated HTTP client a service wraps. The
// resolver has already guaranteed a live access token, so the oauth2
// machinery here only attaches it (and can self-refresh mid-call as a
// fallback without persisting; the next resolution persists properly).
func oauthClient(ctx context.Context, cred *Credential) *http.Client {
	cfg := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       cred.Scopes,
	}
	tok := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
	}
	return cfg.Client(ctx, tok)
}

// MailProfile fetches the Gmail profile's address, proving the stored
// credential works. Resolved against the readonly scope set, not the send
// set; the same record serves both without mixing them.
func (g *Gateway) MailProfile(ctx context.Context, userID int64) (string, *Error) {
	cred, rerr := g.resolver.Resolve(ctx, userID, []string{gmail.GmailReadonlyScope})
	if rerr != nil {
		return "", rerr
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oauthClient(ctx, cred)))
	if err != nil {
		return "", Errf(KindTransport, "create gmail service: %v", err)
	}
	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", classify(err)
	}
	return profile.EmailAddress, nil
}

type calendarClient struct {
	svc *calendar.Service
}

func (c *calendarClient) Insert(ctx context.Context, ev *calendar.Event) (*calendar.Event, error) {
	return c.svc.Events.Insert(primaryCalendarID, ev).Context(ctx).Do()
}

func (c *calendarClient) Update(ctx context.Context, googleEventID string, ev *calendar.Event) (*calendar.Event, error) {
	return c.svc.Events.Update(primaryCalendarID, googleEventID, ev).Context(ctx).Do()
}

func (c *calendarClient) Delete(ctx context.Context, googleEventID string) error {
	return c.svc.Events.Delete(primaryCalendarID, googleEventID).Context(ctx).Do()
}

type mailClient struct {
	svc *gmail.Service
}

func (m *mailClient) Send(ctx context.Context, raw string) error {
	_, err := m.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	return err
}

// classify splits a remote-call error into the provider/transport taxonomy.
// Both collapse to a failed Result; the kind is what job handlers branch on.
func classify(err error) *Error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return Errf(KindProvider, "google api error %d: %s", gerr.Code, gerr.Message)
	}
	return Errf(KindTransport, "%v", err)
}
