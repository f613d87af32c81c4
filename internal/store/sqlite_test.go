package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nhle/receipt-index/internal/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "receipts.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testReceipt(sourceID string) model.Receipt {
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	return model.Receipt{
		ID:           uuid.New(),
		SourceID:     sourceID,
		SourceType:   "email",
		Vendor:       "Amazon",
		Amount:       decimal.RequireFromString("42.99"),
		Currency:     "USD",
		ReceiptDate:  time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		Description:  "books",
		Confidence:   0.9,
		PDFPath:      "2025/06/2025-06-15__amazon__42.99.pdf",
		EmailSubject: "Your order",
		EmailSender:  "shop@example.com",
		EmailDate:    time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestSaveAndListReceipts(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	ctx := context.Background()

	r := testReceipt("<m1@example.com>")
	if err := s.SaveReceipt(ctx, r); err != nil {
		t.Fatalf("saving receipt: %v", err)
	}

	got, err := s.ListReceipts(ctx)
	if err != nil {
		t.Fatalf("listing receipts: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d receipts, want 1", len(got))
	}

	stored := got[0]
	if stored.SourceID != r.SourceID {
		t.Errorf("SourceID: got %q, want %q", stored.SourceID, r.SourceID)
	}
	if stored.Vendor != r.Vendor {
		t.Errorf("Vendor: got %q, want %q", stored.Vendor, r.Vendor)
	}
	if stored.Amount.String() != "42.99" {
		t.Errorf("Amount: got %s, want 42.99", stored.Amount)
	}
	if stored.PDFPath != r.PDFPath {
		t.Errorf("PDFPath: got %q, want %q", stored.PDFPath, r.PDFPath)
	}
	if stored.Confidence != r.Confidence {
		t.Errorf("Confidence: got %g, want %g", stored.Confidence, r.Confidence)
	}
}

func TestSaveReceiptDuplicateSourceID(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveReceipt(ctx, testReceipt("<dup@example.com>")); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.SaveReceipt(ctx, testReceipt("<dup@example.com>")); err == nil {
		t.Fatal("expected error on duplicate source_id")
	}
}

func TestProcessedSourceIDs(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	ctx := context.Background()

	processed, err := s.ProcessedSourceIDs(ctx)
	if err != nil {
		t.Fatalf("empty store: %v", err)
	}
	if len(processed) != 0 {
		t.Errorf("got %d ids from empty store, want 0", len(processed))
	}

	for _, id := range []string{"<a@example.com>", "<b@example.com>"} {
		if err := s.SaveReceipt(ctx, testReceipt(id)); err != nil {
			t.Fatalf("saving %s: %v", id, err)
		}
	}

	processed, err = s.ProcessedSourceIDs(ctx)
	if err != nil {
		t.Fatalf("loading ids: %v", err)
	}
	if len(processed) != 2 {
		t.Fatalf("got %d ids, want 2", len(processed))
	}
	for _, id := range []string{"<a@example.com>", "<b@example.com>"} {
		if _, ok := processed[id]; !ok {
			t.Errorf("missing id %q", id)
		}
	}
}

func TestListReceiptsOrdering(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	ctx := context.Background()

	older := testReceipt("<old@example.com>")
	older.ReceiptDate = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	newer := testReceipt("<new@example.com>")
	newer.ReceiptDate = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	if err := s.SaveReceipt(ctx, older); err != nil {
		t.Fatalf("saving older: %v", err)
	}
	if err := s.SaveReceipt(ctx, newer); err != nil {
		t.Fatalf("saving newer: %v", err)
	}

	got, err := s.ListReceipts(ctx)
	if err != nil {
		t.Fatalf("listing receipts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d receipts, want 2", len(got))
	}
	if got[0].SourceID != "<new@example.com>" {
		t.Errorf("first receipt: got %q, want newest transaction first", got[0].SourceID)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "receipts.db")

	s1, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s1.SaveReceipt(context.Background(), testReceipt("<m@example.com>")); err != nil {
		t.Fatalf("saving receipt: %v", err)
	}
	s1.Close()

	// Reopening runs the migration check against an existing schema.
	s2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	got, err := s2.ListReceipts(context.Background())
	if err != nil {
		t.Fatalf("listing after reopen: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d receipts after reopen, want 1", len(got))
	}
}
