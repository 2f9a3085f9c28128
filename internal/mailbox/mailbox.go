package mailbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Haraven/autobiographical-exercise/internal/model"
)

// Config configures a Mailbox.
type Config struct {
	IMAP IMAPConfig
	SMTP SMTPConfig

	// Address is the exchange account's own address: outgoing mail is sent
	// from it and inbound mail from it is ignored.
	Address string

	// AttachmentsOnly skips messages without an attachment when listing.
	AttachmentsOnly bool

	// Timeout bounds every single operation. Zero means no bound.
	Timeout time.Duration
}

// Mailbox is the IMAP/SMTP mailbox the router polls and sends through.
type Mailbox struct {
	imapClient *IMAPClient
	sender     *Sender
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time
}

// New creates a mailbox from cfg.
func New(cfg Config, log zerolog.Logger) *Mailbox {
	cfg.SMTP.Timeout = cfg.Timeout
	return &Mailbox{
		imapClient: NewIMAPClient(cfg.IMAP),
		sender:     NewSender(cfg.SMTP),
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// FromConfig maps the application configuration onto a mailbox.
func FromConfig(c model.MailboxConfig, password string, log zerolog.Logger) *Mailbox {
	return New(Config{
		IMAP: IMAPConfig{
			Host:     c.IMAPHost,
			Port:     c.IMAPPort,
			Username: c.Username,
			Password: password,
			Folder:   c.Folder,
			TLS:      c.TLS,
		},
		SMTP: SMTPConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			Username: c.Username,
			Password: password,
			TLS:      c.TLS,
		},
		Address:         c.Address,
		AttachmentsOnly: c.AttachmentsOnly,
		Timeout:         c.Timeout,
	}, log)
}

func (m *Mailbox) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.cfg.Timeout)
}

// ValidateConnection verifies IMAP credentials by connecting,
// authenticating, and selecting the polled folder. Returns the account
// username on success.
func (m *Mailbox) ValidateConnection(ctx context.Context) (string, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.imapClient.Validate(ctx); err != nil {
		return "", fmt.Errorf("validating mailbox connection: %w", err)
	}
	return m.cfg.IMAP.Username, nil
}

// ListCandidates retrieves every message in the polled folder, oldest
// first, skipping the account's own mail.
func (m *Mailbox) ListCandidates(ctx context.Context) ([]model.Message, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	m.log.Debug().Msg("Retrieving all e-mail messages...")

	envelopes, err := m.imapClient.FetchEnvelopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	own := model.NormalizeAddress(m.cfg.Address)
	messages := make([]model.Message, 0, len(envelopes))
	for _, env := range envelopes {
		msg := envelopeToMessage(env)
		if msg.Sender == "" || msg.Sender == own {
			continue
		}
		if m.cfg.AttachmentsOnly && !msg.HasAttachment() {
			continue
		}
		messages = append(messages, msg)
	}

	m.log.Debug().
		Int("listed", len(envelopes)).
		Int("candidates", len(messages)).
		Msg("Retrieved all e-mail messages")
	return messages, nil
}

// DownloadAttachment saves the first attachment of msg into dir under a
// fresh unique name that keeps the original extension, returning the path.
func (m *Mailbox) DownloadAttachment(
	ctx context.Context, msg model.Message, dir string,
) (string, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	uid, err := parseUID(msg.ID)
	if err != nil {
		return "", err
	}

	raw, err := m.imapClient.FetchRaw(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("fetching message %s: %w", msg.ID, err)
	}

	att, err := extractFirstAttachment(raw)
	if err != nil {
		return "", fmt.Errorf("extracting attachment of %s: %w", msg, err)
	}

	ext := extensionOf(att.Filename)
	if ext == "" && msg.Attachment != nil {
		ext = msg.Attachment.Extension
	}

	name := uuid.New().String()
	if ext != "" {
		name += "." + ext
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating attachment directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, att.Data, 0o644); err != nil {
		return "", fmt.Errorf("saving attachment %s: %w", path, err)
	}

	m.log.Debug().
		Str("path", path).
		Str("size", formatSize(int64(len(att.Data)))).
		Msg("Saved attachment")
	return path, nil
}

// Send forwards the attachment at out.AttachmentPath to out.Recipient.
func (m *Mailbox) Send(ctx context.Context, out model.Outgoing) error {
	data, err := os.ReadFile(out.AttachmentPath)
	if err != nil {
		return fmt.Errorf("reading attachment %s: %w", out.AttachmentPath, err)
	}

	raw, err := compose(outgoingMessage{
		From:           m.cfg.Address,
		To:             out.Recipient,
		Subject:        out.Subject,
		Body:           out.Body,
		AttachmentName: filepath.Base(out.AttachmentPath),
		Attachment:     data,
		Date:           m.now(),
	})
	if err != nil {
		return fmt.Errorf("composing mail to %s: %w", out.Recipient, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := m.sender.Send(m.cfg.Address, out.Recipient, raw); err != nil {
		return err
	}

	m.log.Debug().Str("recipient", out.Recipient).Msg("Sent attachment")
	return nil
}

// envelopeToMessage converts an Envelope to a model.Message.
func envelopeToMessage(env Envelope) model.Message {
	msg := model.Message{
		ID:        strconv.FormatUint(uint64(env.UID), 10),
		MessageID: env.MessageID,
		Sender:    model.NormalizeAddress(env.From),
		Subject:   env.Subject,
		Date:      env.Date,
	}

	if env.Attachment != nil {
		msg.Attachment = &model.Attachment{
			ID:        partPath(env.Attachment.Path),
			Filename:  env.Attachment.Filename,
			Extension: extensionOf(env.Attachment.Filename),
		}
	}

	return msg
}

// parseUID converts a string message ID to an IMAP UID.
func parseUID(id string) (imap.UID, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, fmt.Errorf(
			"invalid message UID %q: %w", id, err,
		)
	}
	return imap.UID(uid), nil
}

// partPath renders a body part path in IMAP section notation, e.g. "1.2".
func partPath(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ".")
}

// extensionOf returns the text after the last dot of a filename, without
// the dot.
func extensionOf(filename string) string {
	ext := filepath.Ext(strings.TrimSpace(filename))
	return strings.TrimPrefix(ext, ".")
}

// formatSize formats a byte size into a human-readable string.
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	case bytes >= 1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
