package gcal

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// headerSanitizer strips CR/LF so a caller-supplied value cannot smuggle
// extra headers into the message.
var headerSanitizer = strings.NewReplacer("\r", "", "\n", "")

// BuildMIME assembles a minimal RFC 2822 message and base64url-encodes it
// the way the Gmail API expects raw messages. The From header is omitted;
// Gmail fills in the authenticated user.
func BuildMIME(to, subject, body string) string {
	msg := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s",
		headerSanitizer.Replace(to), headerSanitizer.Replace(subject), body)
	return base64.URLEncoding.EncodeToString([]byte(msg))
}

// SendMail sends a notification e-mail through the user's Gmail account.
func (e *Engine) SendMail(ctx context.Context, userID int64, to, subject, body string) Result {
	if to == "" {
		return Failf(KindValidation, "mail recipient is required")
	}

	api, rerr := e.clients.Mail(ctx, userID)
	if rerr != nil {
		return Failure(rerr)
	}
	if err := api.Send(ctx, BuildMIME(to, subject, body)); err != nil {
		return Failure(classify(err))
	}
	return Success(to)
}
