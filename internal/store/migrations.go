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

CREATE TABLE IF NOT EXISTS receipts (
	id            TEXT PRIMARY KEY,
	source_id     TEXT NOT NULL UNIQUE,
	source_type   TEXT NOT NULL,
	vendor        TEXT NOT NULL,
	amount        TEXT NOT NULL,
	currency      TEXT NOT NULL,
	receipt_date  DATE NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	confidence    REAL NOT NULL,
	pdf_path      TEXT NOT NULL,
	email_subject TEXT NOT NULL DEFAULT '',
	email_sender  TEXT NOT NULL DEFAULT '',
	email_date    DATETIME,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_receipts_vendor ON receipts(vendor);
CREATE INDEX IF NOT EXISTS idx_receipts_receipt_date ON receipts(receipt_date);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
