package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pairings (
	id                 INTEGER PRIMARY KEY,
	author             TEXT NOT NULL,
	reviewer           TEXT NOT NULL,
	autobiography_sent INTEGER NOT NULL DEFAULT 0,
	feedback_sent      INTEGER NOT NULL DEFAULT 0,
	created_at         TEXT NOT NULL DEFAULT '',
	updated_at         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_pairings_author ON pairings(author);
CREATE INDEX IF NOT EXISTS idx_pairings_reviewer ON pairings(reviewer);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE pairings ADD COLUMN autobiography_ref TEXT NOT NULL DEFAULT '';
ALTER TABLE pairings ADD COLUMN autobiography_file TEXT NOT NULL DEFAULT '';
ALTER TABLE pairings ADD COLUMN feedback_ref TEXT NOT NULL DEFAULT '';
ALTER TABLE pairings ADD COLUMN feedback_file TEXT NOT NULL DEFAULT '';

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
