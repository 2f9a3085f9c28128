package mailbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
)

// ErrNoAttachment is returned when a message has no attachment to download.
var ErrNoAttachment = errors.New("message has no attachment")

// AuthError indicates that the mail server rejected the account credentials.
type AuthError struct {
	Server  string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Server, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Envelope holds the parsed envelope data from an IMAP message.
type Envelope struct {
	MessageID string
	Subject   string
	From      string
	Date      time.Time
	UID       imap.UID

	// Attachment is the first filename-bearing body part, if any.
	Attachment *PartInfo
}

// PartInfo locates a body part within a message's structure.
type PartInfo struct {
	Path     []int
	Filename string
	MIMEType string
}

// IMAPConfig holds the IMAP server settings.
type IMAPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Folder   string
	TLS      bool
}

// SMTPConfig holds the SMTP server settings for forwarding attachments.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
	Timeout  time.Duration
}
