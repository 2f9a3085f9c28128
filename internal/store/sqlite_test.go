package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Haraven/autobiographical-exercise/internal/model"
	"github.com/Haraven/autobiographical-exercise/internal/store"
	"github.com/Haraven/autobiographical-exercise/tests/testutil"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestSQLiteStore(t)

	empty, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load on a fresh store: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("fresh store has %d pairings", len(empty))
	}

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
}

func TestSQLiteStoreFlushReplacesTable(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestSQLiteStore(t)

	if err := s.Flush(ctx, testutil.SamplePairings()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	closed := testutil.SamplePairings()[:1]
	if err := s.Flush(ctx, closed); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := s.Flush(ctx, nil); err != nil {
		t.Fatalf("Flush(nil): %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("expected only pairing 1, got %+v", got)
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pairings.db")

	first, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := first.Flush(ctx, testutil.SamplePairings()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening runs the migrations check against an up-to-date schema.
	second, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer second.Close()

	got, err := second.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[1].Author != "c@x" {
		t.Errorf("unexpected pairings after reopen: %+v", got)
	}
}

func TestSQLiteStoreDetectsInvalidTable(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestSQLiteStore(t)

	invalid := []model.Pairing{
		{ID: 1, Author: "a@x", Reviewer: "b@x", AutobiographySent: true},
		{ID: 2, Author: "c@x", Reviewer: "b@x", AutobiographySent: true},
	}
	if err := s.Flush(ctx, invalid); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if _, err := s.Load(ctx); !errors.Is(err, store.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	dir := t.TempDir()

	jsonStore, err := store.Open(model.StoreDriverJSON, filepath.Join(dir, "pairings.json"))
	if err != nil {
		t.Fatalf("Open(json): %v", err)
	}
	if _, ok := jsonStore.(*store.JSONStore); !ok {
		t.Errorf("Open(json) returned %T", jsonStore)
	}

	sqliteStore, err := store.Open(model.StoreDriverSQLite, filepath.Join(dir, "pairings.db"))
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	defer sqliteStore.Close()
	if _, ok := sqliteStore.(*store.SQLiteStore); !ok {
		t.Errorf("Open(sqlite) returned %T", sqliteStore)
	}
}
