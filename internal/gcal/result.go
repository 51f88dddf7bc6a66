package gcal

import "fmt"

// ErrorKind classifies every failure the sync core can produce. Callers
// branch on the kind; the message carries the human detail.
type ErrorKind string

const (
	// KindNoCredential: the user never completed a Google login.
	KindNoCredential ErrorKind = "no_credential"
	// KindRefreshFailed: the provider rejected the refresh round-trip.
	KindRefreshFailed ErrorKind = "refresh_failed"
	// KindUnrefreshable: access token expired and no refresh token stored.
	KindUnrefreshable ErrorKind = "unrefreshable"
	// KindProvider: the remote call completed but Google reported an error.
	KindProvider ErrorKind = "provider_error"
	// KindTransport: the remote call did not complete (network, bug).
	KindTransport ErrorKind = "transport_error"
	// KindNoExternalID: the local event has no remote counterpart.
	KindNoExternalID ErrorKind = "no_external_id"
	// KindEventNotFound / KindAccountNotFound: the local entity vanished
	// before a deferred job ran.
	KindEventNotFound   ErrorKind = "event_not_found"
	KindAccountNotFound ErrorKind = "account_not_found"
	// KindValidation: rejected before any remote interaction.
	KindValidation ErrorKind = "validation_error"
)

// Error is a classified sync-core failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Errf builds a classified error.
func Errf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Result is the outcome of one sync operation: either OK with an optional
// payload, or a classified error. Sync operations always return a Result and
// never panic out of a deferred job.
type Result struct {
	OK   bool
	Data any
	Err  *Error
}

func Success(data any) Result {
	return Result{OK: true, Data: data}
}

func Failure(err *Error) Result {
	return Result{Err: err}
}

func Failf(kind ErrorKind, format string, args ...any) Result {
	return Result{Err: Errf(kind, format, args...)}
}

// Retryable reports whether redelivering the job could change the outcome.
// Only transport-class failures qualify; everything else is terminal.
func (r Result) Retryable() bool {
	return !r.OK && r.Err != nil && r.Err.Kind == KindTransport
}

// String renders the result for job logs.
func (r Result) String() string {
	if r.OK {
		if r.Data != nil {
			return fmt.Sprintf("ok (%v)", r.Data)
		}
		return "ok"
	}
	return r.Err.Error()
}
