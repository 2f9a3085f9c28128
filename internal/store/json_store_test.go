package store_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Haraven/autobiographical-exercise/internal/model"
	"github.com/Haraven/autobiographical-exercise/internal/store"
	"github.com/Haraven/autobiographical-exercise/tests/testutil"
)

func TestJSONStoreMissingFileIsEmpty(t *testing.T) {
	s := testutil.NewTestJSONStore(t)

	pairings, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(pairings) != 0 {
		t.Errorf("expected no pairings, got %d", len(pairings))
	}
}

func TestJSONStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestJSONStore(t)
	want := testutil.SamplePairings()

	if err := s.Flush(ctx, want); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v\nwant %+v", got, want)
	}

	// No temporary files are left next to the table.
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatalf("reading store dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the table file, found %d entries", len(entries))
	}
}

func TestJSONStoreFlushOfLoadIsStable(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestJSONStore(t)

	if err := s.Flush(ctx, testutil.SamplePairings()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	before, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("reading table: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Flush(ctx, loaded); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	after, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("reading table: %v", err)
	}

	if !bytes.Equal(before, after) {
		t.Errorf("table changed across Flush(Load()):\n%s\n---\n%s", before, after)
	}
}

func TestJSONStoreEmptyFlushKeepsTable(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestJSONStore(t)

	if err := s.Flush(ctx, nil); err != nil {
		t.Fatalf("Flush(nil): %v", err)
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("empty flush created the table: %v", err)
	}

	if err := s.Flush(ctx, testutil.SamplePairings()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := s.Flush(ctx, []model.Pairing{}); err != nil {
		t.Fatalf("Flush(empty): %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("empty flush wiped the table: %d pairings left", len(got))
	}
}

func TestJSONStoreCorruptTable(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", "  \n"},
		{"null", "null\n"},
		{"truncated", `[{"id": 1, "author": "a@x"`},
		{"wrong shape", `{"author": "a@x"}`},
		{
			"duplicate id",
			`[{"id": 1, "author": "a@x", "reviewer": "b@x", "autobiography_sent": true, "feedback_sent": true},
			  {"id": 1, "author": "c@x", "reviewer": "a@x", "autobiography_sent": true}]`,
		},
		{"self review", `[{"author": "a@x", "reviewer": "a@x", "autobiography_sent": true}]`},
		{
			"reviewer with two active pairings",
			`[{"author": "a@x", "reviewer": "b@x", "autobiography_sent": true},
			  {"author": "c@x", "reviewer": "b@x", "autobiography_sent": true}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pairings.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("writing table: %v", err)
			}

			_, err := store.NewJSONStore(path).Load(context.Background())
			if !errors.Is(err, store.ErrCorrupt) {
				t.Fatalf("expected ErrCorrupt, got %v", err)
			}
		})
	}
}

func TestJSONStoreLegacyRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairings.json")
	legacy := `[
  {"author": "a@x", "reviewer": "b@x", "autobiography_sent": true, "feedback_sent": true},
  {"author": "b@x", "reviewer": "a@x", "autobiography_sent": true, "feedback_sent": false}
]`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("writing table: %v", err)
	}

	got, err := store.NewJSONStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("legacy records were not numbered: %+v", got)
	}
	if got[0].Status() != model.StatusClosed || got[1].Status() != model.StatusAwaitingFeedback {
		t.Errorf("unexpected statuses: %v, %v", got[0].Status(), got[1].Status())
	}
}

func TestJSONStoreNumbersLegacyRecordsAfterExplicitIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairings.json")
	mixed := `[
  {"id": 2, "author": "a@x", "reviewer": "b@x", "autobiography_sent": true, "feedback_sent": true},
  {"author": "c@x", "reviewer": "a@x", "autobiography_sent": true}
]`
	if err := os.WriteFile(path, []byte(mixed), 0o644); err != nil {
		t.Fatalf("writing table: %v", err)
	}

	got, err := store.NewJSONStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Fatalf("unexpected ids: %+v", got)
	}
}

func TestEncodeFormat(t *testing.T) {
	data, err := store.Encode([]model.Pairing{{ID: 1, Author: "a@x", Reviewer: "b@x", AutobiographySent: true}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("[\n  {\n    \"id\": 1,")) {
		t.Errorf("unexpected layout:\n%s", data)
	}
	if !bytes.HasSuffix(data, []byte("]\n")) {
		t.Errorf("missing trailing newline:\n%s", data)
	}
	if bytes.Contains(data, []byte("feedback_ref")) {
		t.Errorf("empty references should be omitted:\n%s", data)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := store.Open("postgres", "x"); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}
}
