package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Haraven/autobiographical-exercise/internal/model"
)

// SQLiteStore implements PairingStore using a local SQLite database.
type SQLiteStore struct {
	db   *sqlx.DB
	path string
}

// pairingRow mirrors the pairings table. Timestamps are kept as RFC 3339
// text so they round-trip exactly.
type pairingRow struct {
	ID                int    `db:"id"`
	Author            string `db:"author"`
	Reviewer          string `db:"reviewer"`
	AutobiographySent bool   `db:"autobiography_sent"`
	FeedbackSent      bool   `db:"feedback_sent"`
	AutobiographyRef  string `db:"autobiography_ref"`
	AutobiographyFile string `db:"autobiography_file"`
	FeedbackRef       string `db:"feedback_ref"`
	FeedbackFile      string `db:"feedback_file"`
	CreatedAt         string `db:"created_at"`
	UpdatedAt         string `db:"updated_at"`
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single writer owns the table; one connection also keeps ":memory:"
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Load retrieves every pairing ordered by sequence number.
func (s *SQLiteStore) Load(ctx context.Context) ([]model.Pairing, error) {
	var rows []pairingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, author, reviewer, autobiography_sent, feedback_sent,
			autobiography_ref, autobiography_file, feedback_ref, feedback_file,
			created_at, updated_at
		FROM pairings
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying pairings: %w", err)
	}

	pairings := make([]model.Pairing, 0, len(rows))
	for _, r := range rows {
		p, err := r.toPairing()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: pairing %d: %v", ErrCorrupt, s.path, r.ID, err)
		}
		pairings = append(pairings, p)
	}

	if err := validateLoaded(s.path, pairings); err != nil {
		return nil, err
	}
	return pairings, nil
}

// Flush replaces the table contents inside one transaction.
func (s *SQLiteStore) Flush(ctx context.Context, pairings []model.Pairing) error {
	if len(pairings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM pairings"); err != nil {
		return fmt.Errorf("clearing pairings: %w", err)
	}

	const query = `
		INSERT INTO pairings (
			id, author, reviewer, autobiography_sent, feedback_sent,
			autobiography_ref, autobiography_file, feedback_ref, feedback_file,
			created_at, updated_at
		) VALUES (
			:id, :author, :reviewer, :autobiography_sent, :feedback_sent,
			:autobiography_ref, :autobiography_file, :feedback_ref, :feedback_file,
			:created_at, :updated_at
		)`

	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range pairings {
		if _, err := stmt.ExecContext(ctx, rowFromPairing(p)); err != nil {
			return fmt.Errorf("inserting pairing %d: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

func rowFromPairing(p model.Pairing) pairingRow {
	return pairingRow{
		ID:                p.ID,
		Author:            p.Author,
		Reviewer:          p.Reviewer,
		AutobiographySent: p.AutobiographySent,
		FeedbackSent:      p.FeedbackSent,
		AutobiographyRef:  p.AutobiographyRef,
		AutobiographyFile: p.AutobiographyFile,
		FeedbackRef:       p.FeedbackRef,
		FeedbackFile:      p.FeedbackFile,
		CreatedAt:         formatTime(p.CreatedAt),
		UpdatedAt:         formatTime(p.UpdatedAt),
	}
}

func (r pairingRow) toPairing() (model.Pairing, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return model.Pairing{}, fmt.Errorf("created_at: %w", err)
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return model.Pairing{}, fmt.Errorf("updated_at: %w", err)
	}

	return model.Pairing{
		ID:                r.ID,
		Author:            r.Author,
		Reviewer:          r.Reviewer,
		AutobiographySent: r.AutobiographySent,
		FeedbackSent:      r.FeedbackSent,
		AutobiographyRef:  r.AutobiographyRef,
		AutobiographyFile: r.AutobiographyFile,
		FeedbackRef:       r.FeedbackRef,
		FeedbackFile:      r.FeedbackFile,
		CreatedAt:         created,
		UpdatedAt:         updated,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
