package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvariant is returned when a pairing set or a pairing transition breaks
// one of the pairing rules.
var ErrInvariant = errors.New("pairing invariant violated")

// PairingStatus is the state derived from a pairing's two delivery flags.
type PairingStatus int

const (
	// StatusAwaitingReviewerDelivery means the autobiography has not been
	// forwarded yet. Persisted pairings never carry this status since a
	// pairing is only recorded once the forward succeeds.
	StatusAwaitingReviewerDelivery PairingStatus = iota
	// StatusAwaitingFeedback means the reviewer holds the autobiography and
	// owes feedback. Such a pairing is active.
	StatusAwaitingFeedback
	// StatusClosed means the feedback was forwarded back to the author.
	StatusClosed
)

func (s PairingStatus) String() string {
	switch s {
	case StatusAwaitingReviewerDelivery:
		return "awaiting delivery"
	case StatusAwaitingFeedback:
		return "awaiting feedback"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("PairingStatus(%d)", int(s))
	}
}

// Pairing links an autobiography author to the reviewer assigned to it.
type Pairing struct {
	// ID is the sequence number of the pairing, starting at 1.
	ID int `json:"id" db:"id"`

	// Author submitted the autobiography.
	Author string `json:"author" db:"author"`

	// Reviewer was assigned to give feedback.
	Reviewer string `json:"reviewer" db:"reviewer"`

	// AutobiographySent is true once the autobiography was forwarded to Reviewer.
	AutobiographySent bool `json:"autobiography_sent" db:"autobiography_sent"`

	// FeedbackSent is true once the reviewer's feedback was forwarded to Author.
	FeedbackSent bool `json:"feedback_sent" db:"feedback_sent"`

	// AutobiographyRef references the message that carried the autobiography.
	AutobiographyRef string `json:"autobiography_ref,omitempty" db:"autobiography_ref"`

	// AutobiographyFile is the stored attachment file name.
	AutobiographyFile string `json:"autobiography_file,omitempty" db:"autobiography_file"`

	// FeedbackRef references the message that carried the feedback.
	FeedbackRef string `json:"feedback_ref,omitempty" db:"feedback_ref"`

	// FeedbackFile is the stored feedback attachment file name.
	FeedbackFile string `json:"feedback_file,omitempty" db:"feedback_file"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewPairing returns a pairing for an autobiography that was just forwarded
// to reviewer.
func NewPairing(
	id int, author, reviewer, ref, file string, now time.Time,
) (Pairing, error) {
	author = NormalizeAddress(author)
	reviewer = NormalizeAddress(reviewer)
	if author == "" || reviewer == "" {
		return Pairing{}, fmt.Errorf("%w: empty author or reviewer", ErrInvariant)
	}
	if author == reviewer {
		return Pairing{}, fmt.Errorf(
			"%w: %s cannot review their own autobiography", ErrInvariant, author,
		)
	}

	now = now.UTC()
	return Pairing{
		ID:                id,
		Author:            author,
		Reviewer:          reviewer,
		AutobiographySent: true,
		AutobiographyRef:  ref,
		AutobiographyFile: file,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Status derives the pairing state from its flags.
func (p Pairing) Status() PairingStatus {
	switch {
	case !p.AutobiographySent:
		return StatusAwaitingReviewerDelivery
	case !p.FeedbackSent:
		return StatusAwaitingFeedback
	default:
		return StatusClosed
	}
}

// Active reports whether the pairing consumes its reviewer's capacity.
func (p Pairing) Active() bool {
	return p.Status() == StatusAwaitingFeedback
}

// MarkFeedbackSent records that the reviewer's feedback reached the author.
// Only an active pairing can be closed, and a closed pairing never reopens.
func (p *Pairing) MarkFeedbackSent(ref, file string, now time.Time) error {
	if p.Status() != StatusAwaitingFeedback {
		return fmt.Errorf(
			"%w: pairing %d (%s -> %s) is %s",
			ErrInvariant, p.ID, p.Author, p.Reviewer, p.Status(),
		)
	}

	p.FeedbackSent = true
	p.FeedbackRef = ref
	p.FeedbackFile = file
	p.UpdatedAt = now.UTC()
	return nil
}

// ValidatePairings checks a full pairing set: unique ids, no self review and
// at most one active pairing per reviewer.
func ValidatePairings(pairings []Pairing) error {
	active := make(map[string]int, len(pairings))
	ids := make(map[int]bool, len(pairings))
	for _, p := range pairings {
		if ids[p.ID] {
			return fmt.Errorf("%w: pairing id %d is used twice", ErrInvariant, p.ID)
		}
		ids[p.ID] = true
		if p.Author == "" || p.Reviewer == "" {
			return fmt.Errorf("%w: pairing %d has an empty address", ErrInvariant, p.ID)
		}
		if NormalizeAddress(p.Author) == NormalizeAddress(p.Reviewer) {
			return fmt.Errorf(
				"%w: pairing %d pairs %s with themselves",
				ErrInvariant, p.ID, p.Author,
			)
		}
		if p.FeedbackSent && !p.AutobiographySent {
			return fmt.Errorf(
				"%w: pairing %d has feedback without an autobiography",
				ErrInvariant, p.ID,
			)
		}
		if !p.Active() {
			continue
		}
		reviewer := NormalizeAddress(p.Reviewer)
		if prev, ok := active[reviewer]; ok {
			return fmt.Errorf(
				"%w: %s holds active pairings %d and %d",
				ErrInvariant, reviewer, prev, p.ID,
			)
		}
		active[reviewer] = p.ID
	}
	return nil
}

// NextPairingID returns the sequence number for the next pairing.
func NextPairingID(pairings []Pairing) int {
	next := 1
	for _, p := range pairings {
		if p.ID >= next {
			next = p.ID + 1
		}
	}
	return next
}
