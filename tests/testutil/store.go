package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Haraven/autobiographical-exercise/internal/model"
	"github.com/Haraven/autobiographical-exercise/internal/store"
)

// NewTestSQLiteStore creates a SQLiteStore in a temporary directory with all
// migrations applied. It automatically closes the store when the test
// completes.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "pairings.db"))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestJSONStore returns a JSONStore backed by a file in a temporary
// directory. The file does not exist until the first flush.
func NewTestJSONStore(t *testing.T) *store.JSONStore {
	t.Helper()
	return store.NewJSONStore(filepath.Join(t.TempDir(), "data", "pairings.json"))
}

// FixedTime is the clock used by sample pairings.
var FixedTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// SamplePairings returns one closed and one active pairing.
func SamplePairings() []model.Pairing {
	return []model.Pairing{
		{
			ID:                1,
			Author:            "a@x",
			Reviewer:          "b@x",
			AutobiographySent: true,
			FeedbackSent:      true,
			AutobiographyRef:  "<auto-a@x>",
			AutobiographyFile: "a.pdf",
			FeedbackRef:       "<feedback-b@x>",
			FeedbackFile:      "b.docx",
			CreatedAt:         FixedTime,
			UpdatedAt:         FixedTime.Add(time.Hour),
		},
		{
			ID:                2,
			Author:            "c@x",
			Reviewer:          "a@x",
			AutobiographySent: true,
			AutobiographyRef:  "<auto-c@x>",
			AutobiographyFile: "c.pdf",
			CreatedAt:         FixedTime.Add(2 * time.Hour),
			UpdatedAt:         FixedTime.Add(2 * time.Hour),
		},
	}
}
