// Package store persists receipt PDFs on disk and receipt records in
// a local SQLite database.
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/receipt-index/internal/model"
)

// SQLiteStore records completed receipts and supplies the set of
// already-processed message identifiers.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
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

// SaveReceipt inserts a completed receipt record. Inserting the same
// source_id twice is an error; dedup happens before the pipeline runs.
func (s *SQLiteStore) SaveReceipt(ctx context.Context, r model.Receipt) error {
	const query = `
		INSERT INTO receipts (
			id, source_id, source_type,
			vendor, amount, currency, receipt_date,
			description, confidence, pdf_path,
			email_subject, email_sender, email_date,
			created_at, updated_at
		) VALUES (
			?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?,
			?, ?
		)`

	_, err := s.db.ExecContext(ctx, query,
		r.ID.String(), r.SourceID, r.SourceType,
		r.Vendor, r.Amount.String(), r.Currency, r.ReceiptDate.UTC(),
		r.Description, r.Confidence, r.PDFPath,
		r.EmailSubject, r.EmailSender, r.EmailDate.UTC(),
		r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting receipt %s: %w", r.SourceID, err)
	}

	return nil
}

// ProcessedSourceIDs returns the identities of every message that has
// already completed the pipeline.
func (s *SQLiteStore) ProcessedSourceIDs(
	ctx context.Context,
) (map[string]struct{}, error) {
	var ids []string
	if err := s.db.SelectContext(
		ctx, &ids, "SELECT source_id FROM receipts",
	); err != nil {
		return nil, fmt.Errorf("querying processed source ids: %w", err)
	}

	processed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		processed[id] = struct{}{}
	}
	return processed, nil
}

// ListReceipts returns all stored receipts, newest transaction first.
func (s *SQLiteStore) ListReceipts(ctx context.Context) ([]model.Receipt, error) {
	const query = `
		SELECT id, source_id, source_type,
		       vendor, amount, currency, receipt_date,
		       description, confidence, pdf_path,
		       email_subject, email_sender, email_date,
		       created_at, updated_at
		FROM receipts
		ORDER BY receipt_date DESC, created_at DESC`

	var receipts []model.Receipt
	if err := s.db.SelectContext(ctx, &receipts, query); err != nil {
		return nil, fmt.Errorf("querying receipts: %w", err)
	}
	return receipts, nil
}
