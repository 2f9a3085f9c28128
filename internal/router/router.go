// Package router decides, on every poll, which inbound messages are new
// submissions, pairs each new autobiography with a reviewer, forwards
// attachments in both directions and keeps the pairing table durable.
package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Haraven/autobiographical-exercise/internal/model"
)

// Mailbox is the mail provider the router reads from and sends through.
type Mailbox interface {
	// ListCandidates returns every inbound message, oldest first.
	ListCandidates(ctx context.Context) ([]model.Message, error)

	// DownloadAttachment stores the message's first attachment in dir and
	// returns the saved file path.
	DownloadAttachment(ctx context.Context, msg model.Message, dir string) (string, error)

	// Send forwards an attachment to a recipient.
	Send(ctx context.Context, out model.Outgoing) error
}

// Roster lists the registered participants.
type Roster interface {
	Contains(addr string) bool
	// All returns the participants in the order reviewers are scanned.
	All() []string
}

// PairingStore persists the pairing table.
type PairingStore interface {
	Load(ctx context.Context) ([]model.Pairing, error)
	Flush(ctx context.Context, pairings []model.Pairing) error
}

// Config holds the router settings.
type Config struct {
	AutobiographyTag string
	FeedbackTag      string

	AutobiographiesDir string
	FeedbackDir        string

	AutobiographySubject string
	AutobiographyBody    string
	FeedbackSubject      string
	FeedbackBody         string
}

// ConfigFrom extracts the router settings from the application config.
func ConfigFrom(c *model.AppConfig) Config {
	return Config{
		AutobiographyTag:     c.Tags.Autobiography,
		FeedbackTag:          c.Tags.Feedback,
		AutobiographiesDir:   c.Paths.Autobiographies,
		FeedbackDir:          c.Paths.Feedback,
		AutobiographySubject: c.Templates.AutobiographySubject,
		AutobiographyBody:    c.Templates.AutobiographyBody,
		FeedbackSubject:      c.Templates.FeedbackSubject,
		FeedbackBody:         c.Templates.FeedbackBody,
	}
}

// Router is the submission state machine. It is not safe for concurrent
// use: exactly one Tick runs at a time.
type Router struct {
	cfg     Config
	mailbox Mailbox
	roster  Roster
	store   PairingStore
	log     zerolog.Logger
	now     func() time.Time

	pairings []model.Pairing

	// firstTickID is the lowest pairing ID the running tick can create.
	// Pairings from this ID on were assigned during the tick, so no feedback
	// for them can exist yet.
	firstTickID int

	// dirty is set when the in-memory table differs from the store. It
	// survives a failed flush so the next tick retries it.
	dirty bool
}

// New loads the pairing table and returns a router over it. A corrupt table
// is returned as an error and must stop the service.
func New(
	ctx context.Context,
	cfg Config,
	mailbox Mailbox,
	roster Roster,
	store PairingStore,
	log zerolog.Logger,
) (*Router, error) {
	if cfg.AutobiographyTag == "" || cfg.FeedbackTag == "" {
		return nil, errors.New("router: subject tags are required")
	}
	if cfg.AutobiographiesDir == "" || cfg.FeedbackDir == "" {
		return nil, errors.New("router: attachment directories are required")
	}

	pairings, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading pairings: %w", err)
	}

	log.Info().
		Int("pairings", len(pairings)).
		Str("autobiographies", cfg.AutobiographiesDir).
		Str("feedback", cfg.FeedbackDir).
		Msg("Initialized submission router")

	return &Router{
		cfg:      cfg,
		mailbox:  mailbox,
		roster:   roster,
		store:    store,
		log:      log,
		now:      time.Now,
		pairings: pairings,
	}, nil
}

// Pairings returns a copy of the in-memory pairing table.
func (r *Router) Pairings() []model.Pairing {
	out := make([]model.Pairing, len(r.pairings))
	copy(out, r.pairings)
	return out
}

// candidate is a filtered message whose attachment is on disk.
type candidate struct {
	msg  model.Message
	path string
}

// Tick runs one fetch, filter, assign, send and persist cycle. Per-message
// failures are reported in the returned TickReport and retried on the next
// tick. An error is returned only when the message listing fails, which
// leaves state untouched, or when persisting the table fails, in which case
// the flush is retried on the next tick.
func (r *Router) Tick(ctx context.Context) (*TickReport, error) {
	report := &TickReport{}

	r.log.Info().Msg("Parsing all e-mails to get autobiographies and feedback messages...")
	messages, err := r.mailbox.ListCandidates(ctx)
	if err != nil {
		return report, fmt.Errorf("listing messages: %w", err)
	}
	report.Listed = len(messages)

	if len(messages) == 0 {
		r.log.Info().Msg("No e-mails with attachments are available")
		return report, r.flush(ctx, report)
	}
	r.log.Info().Int("count", len(messages)).Msg("Found e-mails")
	r.firstTickID = model.NextPairingID(r.pairings)

	autobiographies, feedback := r.partition(messages)
	report.NewAutobiographies = len(autobiographies)
	report.NewFeedback = len(feedback)
	r.logFound("autobiographies", autobiographies)
	r.logFound("feedback messages", feedback)

	autoCandidates := r.download(ctx, report, model.KindAutobiography, autobiographies, r.cfg.AutobiographiesDir)
	feedbackCandidates := r.download(ctx, report, model.KindFeedback, feedback, r.cfg.FeedbackDir)

	if len(autoCandidates) > 0 {
		r.log.Info().Msg("Sending autobiographies for feedback...")
		for _, c := range autoCandidates {
			report.Outcomes = append(report.Outcomes, r.routeAutobiography(ctx, c))
		}
		r.log.Info().Msg("Finished sending autobiographies")
	}

	if len(feedbackCandidates) > 0 {
		r.log.Info().Msg("Sending feedback back to autobiography authors...")
		for _, c := range feedbackCandidates {
			report.Outcomes = append(report.Outcomes, r.routeFeedback(ctx, c))
		}
		r.log.Info().Msg("Finished sending feedback")
	}

	return report, r.flush(ctx, report)
}

// Classify returns the submission kind of a message, or false when it is not
// a submission from a registered participant. A subject carrying both tags
// is feedback: replies such as "Feedback on my autobiography" name both.
// A subject quoting the outgoing feedback subject is an author's reply and
// is ignored.
func (r *Router) Classify(msg model.Message) (model.SubmissionKind, bool) {
	if !r.roster.Contains(msg.Sender) {
		return "", false
	}
	// Replies to forwarded feedback come from authors, not reviewers.
	if r.cfg.FeedbackSubject != "" && containsFold(msg.Subject, r.cfg.FeedbackSubject) {
		return "", false
	}
	switch {
	case containsFold(msg.Subject, r.cfg.FeedbackTag):
		return model.KindFeedback, true
	case containsFold(msg.Subject, r.cfg.AutobiographyTag):
		return model.KindAutobiography, true
	default:
		return "", false
	}
}

// partition splits messages into new autobiographies and new feedback,
// keeping input order and at most one message per sender and kind.
func (r *Router) partition(messages []model.Message) (autobiographies, feedback []model.Message) {
	seenAuthors := make(map[string]bool)
	seenReviewers := make(map[string]bool)

	for _, msg := range messages {
		kind, ok := r.Classify(msg)
		if !ok {
			continue
		}
		sender := model.NormalizeAddress(msg.Sender)

		switch kind {
		case model.KindAutobiography:
			if seenAuthors[sender] || !r.isNewAutobiography(sender) {
				continue
			}
			seenAuthors[sender] = true
			autobiographies = append(autobiographies, msg)
		case model.KindFeedback:
			if seenReviewers[sender] || !r.isNewFeedback(sender, msg) {
				continue
			}
			seenReviewers[sender] = true
			feedback = append(feedback, msg)
		}
	}
	return autobiographies, feedback
}

// isNewAutobiography reports whether author has no forwarded autobiography.
func (r *Router) isNewAutobiography(author string) bool {
	for _, p := range r.pairings {
		if sameAddress(p.Author, author) && p.AutobiographySent {
			return false
		}
	}
	return true
}

// isNewFeedback reports whether a feedback message from reviewer still needs
// routing. Only the reviewer's latest pairing can take feedback: once it is
// closed every further message is ignored, and while it is open a message
// already recorded on an earlier pairing, or sent before this pairing was
// created, belongs to an earlier assignment. A reviewer with no pairing yet
// is reported as new so the miss is logged.
func (r *Router) isNewFeedback(reviewer string, msg model.Message) bool {
	latest := -1
	ref := msg.Ref()
	for i, p := range r.pairings {
		if !sameAddress(p.Reviewer, reviewer) {
			continue
		}
		if p.FeedbackSent && p.FeedbackRef == ref {
			return false
		}
		if latest < 0 || p.ID > r.pairings[latest].ID {
			latest = i
		}
	}
	if latest < 0 {
		return true
	}
	p := r.pairings[latest]
	return p.Active() && !predates(msg, p)
}

// predates reports whether msg was sent no later than pairing p was
// created. Messages or pairings without a timestamp are not compared.
func predates(msg model.Message, p model.Pairing) bool {
	if msg.Date.IsZero() || p.CreatedAt.IsZero() {
		return false
	}
	return !msg.Date.After(p.CreatedAt)
}

// download saves the attachment of every message into dir. Messages whose
// download fails are reported as skipped and dropped.
func (r *Router) download(
	ctx context.Context,
	report *TickReport,
	kind model.SubmissionKind,
	messages []model.Message,
	dir string,
) []candidate {
	if len(messages) == 0 {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.log.Error().Err(err).Str("dir", dir).Msg("Could not create attachment directory")
		for _, msg := range messages {
			report.Outcomes = append(report.Outcomes, Outcome{
				Kind: kind, Message: msg, Result: Skipped, Reason: ReasonDownloadFailed, Err: err,
			})
		}
		return nil
	}

	candidates := make([]candidate, 0, len(messages))
	for _, msg := range messages {
		var path string
		err := guard(func() error {
			var err error
			path, err = r.mailbox.DownloadAttachment(ctx, msg, dir)
			return err
		})
		if err != nil {
			r.log.Warn().Err(err).
				Str("kind", string(kind)).
				Stringer("message", msg).
				Msg("Failed to retrieve attachment, removing from list")
			report.Outcomes = append(report.Outcomes, Outcome{
				Kind: kind, Message: msg, Result: Skipped, Reason: ReasonDownloadFailed, Err: err,
			})
			continue
		}
		candidates = append(candidates, candidate{msg: msg, path: path})
	}
	return candidates
}

// routeAutobiography assigns a reviewer to one autobiography and forwards it.
// The pairing is recorded only after the send succeeds.
func (r *Router) routeAutobiography(ctx context.Context, c candidate) Outcome {
	author := model.NormalizeAddress(c.msg.Sender)
	out := Outcome{Kind: model.KindAutobiography, Message: c.msg}

	reviewer := r.pickReviewer(author)
	if reviewer == "" {
		r.log.Error().Str("author", author).Msg("Could not assign recipient for autobiography")
		r.discard(c.path)
		out.Result, out.Reason = Skipped, ReasonNoReviewer
		return out
	}
	out.Recipient = reviewer

	r.log.Info().Str("author", author).Str("reviewer", reviewer).Msg("Sending autobiography...")
	err := guard(func() error {
		return r.mailbox.Send(ctx, model.Outgoing{
			Recipient:      reviewer,
			AttachmentPath: c.path,
			Subject:        r.cfg.AutobiographySubject,
			Body:           r.cfg.AutobiographyBody,
		})
	})
	if err != nil {
		r.log.Error().Err(err).Str("author", author).Str("reviewer", reviewer).
			Msg("Could not send autobiography")
		r.discard(c.path)
		out.Result, out.Reason, out.Err = Skipped, ReasonSendFailed, err
		return out
	}

	pairing, err := model.NewPairing(
		model.NextPairingID(r.pairings), author, reviewer,
		c.msg.Ref(), filepath.Base(c.path), r.now(),
	)
	if err != nil {
		// pickReviewer never returns the author, so this is unreachable
		// short of a roster returning unnormalized duplicates.
		r.log.Error().Err(err).Msg("Refusing to record pairing")
		out.Result, out.Reason, out.Err = Skipped, ReasonNoReviewer, err
		return out
	}
	r.pairings = append(r.pairings, pairing)
	r.dirty = true

	r.log.Info().Int("pairing", pairing.ID).Msg("Sent email successfully")
	out.Result, out.PairingID = Delivered, pairing.ID
	return out
}

// routeFeedback forwards one feedback attachment to the author of the
// reviewer's open pairing, closing it only after the send succeeds.
func (r *Router) routeFeedback(ctx context.Context, c candidate) Outcome {
	reviewer := model.NormalizeAddress(c.msg.Sender)
	out := Outcome{Kind: model.KindFeedback, Message: c.msg}

	idx := r.activePairingOf(reviewer)
	if idx < 0 {
		r.log.Error().Str("reviewer", reviewer).
			Msg("Could not send feedback because no pairing to an autobiography was found, skipping")
		r.discard(c.path)
		out.Result, out.Reason = Skipped, ReasonNoPairing
		return out
	}
	pairing := &r.pairings[idx]
	out.Recipient = pairing.Author

	if pairing.ID >= r.firstTickID || predates(c.msg, *pairing) {
		r.log.Warn().Str("reviewer", reviewer).Int("pairing", pairing.ID).
			Msg("Feedback was sent before the autobiography reached the reviewer, skipping")
		r.discard(c.path)
		out.Result, out.Reason = Skipped, ReasonStaleFeedback
		return out
	}

	r.log.Info().Str("reviewer", reviewer).Str("author", pairing.Author).Msg("Sending feedback...")
	err := guard(func() error {
		return r.mailbox.Send(ctx, model.Outgoing{
			Recipient:      pairing.Author,
			AttachmentPath: c.path,
			Subject:        r.cfg.FeedbackSubject,
			Body:           r.cfg.FeedbackBody,
		})
	})
	if err != nil {
		r.log.Error().Err(err).Str("reviewer", reviewer).Str("author", pairing.Author).
			Msg("Could not send feedback")
		r.discard(c.path)
		out.Result, out.Reason, out.Err = Skipped, ReasonSendFailed, err
		return out
	}

	if err := pairing.MarkFeedbackSent(c.msg.Ref(), filepath.Base(c.path), r.now()); err != nil {
		// activePairingOf only returns open pairings.
		r.log.Error().Err(err).Msg("Refusing to close pairing")
		out.Result, out.Reason, out.Err = Skipped, ReasonNoPairing, err
		return out
	}
	r.dirty = true

	r.log.Info().Int("pairing", pairing.ID).Msg("Sent email successfully")
	out.Result, out.PairingID = Delivered, pairing.ID
	return out
}

// pickReviewer scans the roster in order for the first participant who is
// not the author and holds no active pairing. Pairings created earlier in
// the same tick are already active, so they count too.
func (r *Router) pickReviewer(author string) string {
	for _, addr := range r.roster.All() {
		if sameAddress(addr, author) {
			continue
		}
		if r.activePairingOf(addr) >= 0 {
			continue
		}
		return model.NormalizeAddress(addr)
	}
	return ""
}

// activePairingOf returns the index of reviewer's active pairing, or -1.
func (r *Router) activePairingOf(reviewer string) int {
	for i, p := range r.pairings {
		if sameAddress(p.Reviewer, reviewer) && p.Active() {
			return i
		}
	}
	return -1
}

// flush persists the table when anything changed since the last flush.
func (r *Router) flush(ctx context.Context, report *TickReport) error {
	if !r.dirty {
		return nil
	}
	if err := r.store.Flush(ctx, r.pairings); err != nil {
		return fmt.Errorf("flushing pairings: %w", err)
	}
	r.dirty = false
	report.Flushed = true
	r.log.Debug().Int("pairings", len(r.pairings)).Msg("Flushed pairings")
	return nil
}

// discard removes an attachment downloaded for a candidate that did not
// advance; the next tick downloads it again.
func (r *Router) discard(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.log.Warn().Err(err).Str("path", path).Msg("Could not remove attachment")
	}
}

func (r *Router) logFound(what string, messages []model.Message) {
	if len(messages) == 0 {
		r.log.Info().Msgf("Found no new %s", what)
		return
	}
	senders := make([]string, len(messages))
	for i, m := range messages {
		senders[i] = m.Sender
	}
	r.log.Info().Strs("senders", senders).Msgf("Found %d new %s", len(messages), what)
}

// guard runs fn, turning a panic into an error so one bad message cannot
// abort the rest of the tick.
func guard(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func sameAddress(a, b string) bool {
	return model.NormalizeAddress(a) == model.NormalizeAddress(b)
}
