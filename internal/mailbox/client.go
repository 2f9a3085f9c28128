package mailbox

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// IMAPClient wraps go-imap v2 for connecting to and querying IMAP servers.
// Every operation opens its own session, so a broken connection never
// outlives a single poll.
type IMAPClient struct {
	cfg IMAPConfig
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(cfg IMAPConfig) *IMAPClient {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	return &IMAPClient{cfg: cfg}
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout/Close on the returned client.
func (c *IMAPClient) Connect(
	_ context.Context,
) (*imapclient.Client, error) {
	addr := c.cfg.Host + ":" + c.cfg.Port

	var client *imapclient.Client
	var err error

	if c.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{
			Server: addr,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v",
				c.cfg.Username, err,
			),
		}
	}

	return client, nil
}

// withFolder runs fn on an authenticated session with the configured folder
// selected. Cancelling ctx closes the connection, which unblocks any
// pending command.
func (c *IMAPClient) withFolder(
	ctx context.Context, fn func(*imapclient.Client) error,
) error {
	client, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(c.cfg.Folder, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", c.cfg.Folder, err)
	}

	return fn(client)
}

// Validate verifies credentials by connecting, authenticating, and
// selecting the configured folder.
func (c *IMAPClient) Validate(ctx context.Context) error {
	return c.withFolder(ctx, func(*imapclient.Client) error { return nil })
}

// FetchEnvelopes returns the envelope and attachment layout of every
// message in the folder, oldest first.
func (c *IMAPClient) FetchEnvelopes(ctx context.Context) ([]Envelope, error) {
	var envelopes []Envelope

	err := c.withFolder(ctx, func(client *imapclient.Client) error {
		searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
		if err != nil {
			return fmt.Errorf("searching messages: %w", err)
		}

		uids := searchData.AllUIDs()
		if len(uids) == 0 {
			return nil
		}

		fetchOpts := &imap.FetchOptions{
			Envelope:      true,
			UID:           true,
			BodyStructure: &imap.FetchItemBodyStructure{Extended: true},
		}

		fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
		defer fetchCmd.Close()

		for {
			msg := fetchCmd.Next()
			if msg == nil {
				break
			}

			buf, err := msg.Collect()
			if err != nil {
				continue
			}

			envelopes = append(envelopes, envelopeFromBuffer(buf))
		}

		if err := fetchCmd.Close(); err != nil {
			return fmt.Errorf("fetching envelopes: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// UIDs grow with arrival time within a folder.
	slices.SortFunc(envelopes, func(a, b Envelope) int {
		return cmp.Compare(a.UID, b.UID)
	})
	return envelopes, nil
}

// FetchRaw returns the full RFC 5322 source of the message with the given
// UID without marking it as seen.
func (c *IMAPClient) FetchRaw(ctx context.Context, uid imap.UID) ([]byte, error) {
	var raw []byte

	err := c.withFolder(ctx, func(client *imapclient.Client) error {
		bodySection := &imap.FetchItemBodySection{
			Peek: true,
		}

		fetchOpts := &imap.FetchOptions{
			UID:         true,
			BodySection: []*imap.FetchItemBodySection{bodySection},
		}

		fetchCmd := client.Fetch(imap.UIDSetNum(uid), fetchOpts)
		defer fetchCmd.Close()

		msg := fetchCmd.Next()
		if msg == nil {
			return fmt.Errorf("message UID %d not found", uid)
		}

		buf, err := msg.Collect()
		if err != nil {
			return fmt.Errorf("collecting message data: %w", err)
		}

		raw = buf.FindBodySection(bodySection)
		if raw == nil {
			return fmt.Errorf("message UID %d has no body", uid)
		}

		return fetchCmd.Close()
	})
	if err != nil {
		return nil, err
	}

	return raw, nil
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) Envelope {
	env := Envelope{
		UID: buf.UID,
	}

	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			env.From = buf.Envelope.From[0].Addr()
		}
	}

	if buf.BodyStructure != nil {
		env.Attachment = firstAttachmentPart(buf.BodyStructure)
	}

	return env
}

// firstAttachmentPart walks a body structure and returns the first single
// part that carries a filename.
func firstAttachmentPart(bs imap.BodyStructure) *PartInfo {
	var found *PartInfo
	bs.Walk(func(path []int, part imap.BodyStructure) bool {
		if found != nil {
			return false
		}
		single, ok := part.(*imap.BodyStructureSinglePart)
		if !ok {
			return true
		}
		if name := single.Filename(); name != "" {
			found = &PartInfo{
				Path:     append([]int(nil), path...),
				Filename: name,
				MIMEType: single.MediaType(),
			}
		}
		return false
	})
	return found
}

// AttachmentContent is a decoded attachment.
type AttachmentContent struct {
	Filename string
	MIMEType string
	Data     []byte
}

// extractFirstAttachment parses a raw RFC 2822 message using go-message and
// returns the first attachment, transfer-decoded. Inline parts that carry a
// filename count as attachments, since some clients send them that way.
func extractFirstAttachment(raw []byte) (*AttachmentContent, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing message: %w", err)
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading message part: %w", err)
		}

		var filename, contentType string
		switch h := part.Header.(type) {
		case *mail.AttachmentHeader:
			filename, _ = h.Filename()
			contentType, _, _ = h.ContentType()
		case *mail.InlineHeader:
			_, params, _ := h.ContentDisposition()
			filename = params["filename"]
			var ctParams map[string]string
			contentType, ctParams, _ = h.ContentType()
			if filename == "" {
				filename = ctParams["name"]
			}
		}
		if strings.TrimSpace(filename) == "" {
			continue
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("reading attachment %s: %w", filename, err)
		}

		return &AttachmentContent{
			Filename: filename,
			MIMEType: contentType,
			Data:     data,
		}, nil
	}

	return nil, ErrNoAttachment
}
