package mailbox

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Sender delivers composed messages over SMTP.
type Sender struct {
	cfg SMTPConfig
}

// NewSender creates an SMTP sender.
func NewSender(cfg SMTPConfig) *Sender {
	return &Sender{cfg: cfg}
}

// dial opens an authenticated SMTP session over implicit TLS or STARTTLS.
func (s *Sender) dial() (*smtp.Client, error) {
	addr := s.cfg.Host + ":" + s.cfg.Port
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	var client *smtp.Client
	var err error
	if s.cfg.TLS {
		client, err = smtp.DialTLS(addr, tlsConfig)
	} else {
		client, err = smtp.DialStartTLS(addr, tlsConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("dialing SMTP %s: %w", addr, err)
	}

	if s.cfg.Timeout > 0 {
		client.CommandTimeout = s.cfg.Timeout
		client.SubmissionTimeout = s.cfg.Timeout
	}

	auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	if err := client.Auth(auth); err != nil {
		client.Close()
		return nil, &AuthError{
			Server:  addr,
			Message: fmt.Sprintf("SMTP auth for %s: %v", s.cfg.Username, err),
		}
	}

	return client, nil
}

// Send delivers a composed message from one sender to one recipient.
func (s *Sender) Send(from, to string, msg []byte) error {
	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SendMail(from, []string{to}, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}

	return client.Quit()
}

// outgoingMessage is everything needed to compose a forward.
type outgoingMessage struct {
	From           string
	To             string
	Subject        string
	Body           string
	AttachmentName string
	Attachment     []byte
	Date           time.Time
}

// compose renders a multipart/mixed message with a plain-text body and a
// single base64 attachment.
func compose(m outgoingMessage) ([]byte, error) {
	var h mail.Header
	h.SetDate(m.Date)
	h.SetAddressList("From", []*mail.Address{{Address: m.From}})
	h.SetAddressList("To", []*mail.Address{{Address: m.To}})
	h.SetSubject(m.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating Message-ID: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("creating inline writer: %w", err)
	}
	var th mail.InlineHeader
	th.Set("Content-Type", "text/plain; charset=utf-8")
	th.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := tw.CreatePart(th)
	if err != nil {
		return nil, fmt.Errorf("creating body part: %w", err)
	}
	if _, err := io.WriteString(w, m.Body); err != nil {
		return nil, fmt.Errorf("writing body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing body part: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing inline writer: %w", err)
	}

	var ah mail.AttachmentHeader
	ah.Set("Content-Type", contentTypeFor(m.AttachmentName))
	ah.Set("Content-Transfer-Encoding", "base64")
	ah.SetFilename(m.AttachmentName)
	w, err = mw.CreateAttachment(ah)
	if err != nil {
		return nil, fmt.Errorf("creating attachment part: %w", err)
	}
	if _, err := w.Write(m.Attachment); err != nil {
		return nil, fmt.Errorf("writing attachment: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing attachment part: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing message writer: %w", err)
	}

	return buf.Bytes(), nil
}

// contentTypeFor guesses the attachment media type from its extension.
func contentTypeFor(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
