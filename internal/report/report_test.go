package report

import (
	"slices"
	"strings"
	"testing"

	"github.com/Haraven/autobiographical-exercise/tests/testutil"
)

func TestSummarize(t *testing.T) {
	roster := []string{"a@x", "B@x", "c@x", "d@x"}
	s := Summarize(testutil.SamplePairings(), roster)

	if s.Total != 2 || s.AwaitingFeedback != 1 || s.Closed != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", s.Total, s.AwaitingFeedback, s.Closed)
	}
	if want := []string{"b@x", "c@x", "d@x"}; !slices.Equal(s.AvailableReviewers, want) {
		t.Errorf("AvailableReviewers = %v, want %v", s.AvailableReviewers, want)
	}
	if want := []string{"b@x", "d@x"}; !slices.Equal(s.NotSubmitted, want) {
		t.Errorf("NotSubmitted = %v, want %v", s.NotSubmitted, want)
	}
}

func TestRender(t *testing.T) {
	out := Render(testutil.SamplePairings(), []string{"a@x", "b@x", "c@x"})

	for _, want := range []string{
		"Autobiography pairings",
		"c@x",
		"awaiting feedback",
		"closed",
		"2 pairings: 1 awaiting feedback, 1 closed",
		"Available reviewers (2): b@x, c@x",
		"Not yet submitted (1): b@x",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output is missing %q:\n%s", want, out)
		}
	}
}

func TestRenderEmpty(t *testing.T) {
	out := Render(nil, nil)
	if !strings.Contains(out, "No pairings recorded yet.") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "Available reviewers (0): none") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
