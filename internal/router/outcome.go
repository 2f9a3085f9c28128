package router

import "github.com/Haraven/autobiographical-exercise/internal/model"

// Result is the per-candidate outcome of a tick.
type Result int

const (
	// Delivered means the candidate's attachment was forwarded and the
	// pairing table advanced.
	Delivered Result = iota
	// Skipped means the candidate did not advance this tick. Nothing was
	// recorded for it, so it is reconsidered on the next tick.
	Skipped
)

func (r Result) String() string {
	if r == Delivered {
		return "delivered"
	}
	return "skipped"
}

// SkipReason explains why a candidate was skipped.
type SkipReason string

const (
	ReasonNone           SkipReason = ""
	ReasonDownloadFailed SkipReason = "attachment download failed"
	ReasonNoReviewer     SkipReason = "no eligible reviewer"
	ReasonSendFailed     SkipReason = "send failed"
	ReasonNoPairing      SkipReason = "no open pairing for reviewer"
	ReasonStaleFeedback  SkipReason = "feedback predates the pairing"
)

// Outcome records what happened to one candidate message during a tick.
type Outcome struct {
	Kind    model.SubmissionKind
	Message model.Message
	Result  Result
	Reason  SkipReason

	// Recipient is who the attachment went to (or would have gone to).
	Recipient string

	// PairingID is the pairing created or closed, zero when skipped.
	PairingID int

	// Err is the underlying failure for download and send skips.
	Err error
}

// TickReport summarizes one tick.
type TickReport struct {
	// Listed is the number of messages returned by the mailbox.
	Listed int

	// NewAutobiographies and NewFeedback count the candidates that passed
	// filtering.
	NewAutobiographies int
	NewFeedback        int

	Outcomes []Outcome

	// Flushed is true when the pairing table was persisted by this tick.
	Flushed bool
}

// Delivered returns the outcomes that advanced the pairing table.
func (r *TickReport) Delivered() []Outcome {
	return r.filter(Delivered)
}

// Skipped returns the outcomes that will be retried.
func (r *TickReport) Skipped() []Outcome {
	return r.filter(Skipped)
}

func (r *TickReport) filter(result Result) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Result == result {
			out = append(out, o)
		}
	}
	return out
}
