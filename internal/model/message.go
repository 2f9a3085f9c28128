package model

import (
	"fmt"
	"strings"
	"time"
)

// SubmissionKind identifies what a tagged inbound message carries.
type SubmissionKind string

const (
	KindAutobiography SubmissionKind = "autobiography"
	KindFeedback      SubmissionKind = "feedback"
)

// Attachment describes the first attachment found on an inbound message.
type Attachment struct {
	// ID is the provider-specific locator of the attachment part
	// (for IMAP, the dotted body part path such as "2" or "1.2").
	ID string `json:"id"`

	// Filename is the name the sender gave the attachment.
	Filename string `json:"filename"`

	// Extension is the original file extension without the leading dot.
	Extension string `json:"extension"`
}

// Message is an inbound mailbox message as seen by the router.
type Message struct {
	// ID is the opaque provider identifier used to fetch the message again
	// (the IMAP UID for the built-in mailbox).
	ID string `json:"id"`

	// MessageID is the RFC 5322 Message-ID header, when present.
	MessageID string `json:"message_id,omitempty"`

	// Sender is the normalized address of the first From entry.
	Sender string `json:"sender"`

	// Subject is the raw subject line.
	Subject string `json:"subject"`

	// Date is the message's Date header. Zero when the header is missing.
	Date time.Time `json:"date"`

	// Attachment is nil when the message carries no attachment.
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Ref returns a stable reference for the message. The Message-ID header is
// preferred since it survives mailbox renumbering; the provider ID is the
// fallback.
func (m Message) Ref() string {
	if m.MessageID != "" {
		return m.MessageID
	}
	return m.ID
}

// HasAttachment reports whether the message carries an attachment.
func (m Message) HasAttachment() bool {
	return m.Attachment != nil
}

func (m Message) String() string {
	return fmt.Sprintf("{ from [ %s ], titled %q }", m.Sender, m.Subject)
}

// NormalizeAddress lowercases and trims an email address so roster lookups
// and pairing comparisons are case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Outgoing is a message the router asks the mailbox to send.
type Outgoing struct {
	Recipient      string
	AttachmentPath string
	Subject        string
	Body           string
}
