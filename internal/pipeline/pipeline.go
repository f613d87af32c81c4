// Package pipeline runs the end-to-end ingest loop: fetch, extract,
// render, store, record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nhle/receipt-index/internal/extract"
	"github.com/nhle/receipt-index/internal/model"
	"github.com/nhle/receipt-index/internal/source"
)

// sourceType tags records ingested through the mail pipeline.
const sourceType = "email"

// Renderer produces the canonical PDF for one message.
type Renderer interface {
	RenderPDF(msg *model.Message) ([]byte, error)
}

// FileStore persists PDF bytes under a deterministic relative path.
type FileStore interface {
	Save(receiptDate time.Time, vendor string, amount decimal.Decimal, pdf []byte) (string, error)
}

// RecordStore supplies the processed-identifier set and records each
// completed receipt.
type RecordStore interface {
	ProcessedSourceIDs(ctx context.Context) (map[string]struct{}, error)
	SaveReceipt(ctx context.Context, r model.Receipt) error
}

// skipObserver is implemented by adapters that can report dedup skips
// for run accounting.
type skipObserver interface {
	SetOnSkip(fn func(sourceID string))
}

// Failure describes one message that failed its single best-effort
// pass. Failures do not abort the run.
type Failure struct {
	SourceID string
	Subject  string
	Err      error
}

// RunReport summarizes one ingest run.
type RunReport struct {
	Ingested int
	Skipped  int
	Failed   []Failure
}

// Pipeline processes messages sequentially, one end-to-end pass per
// message. It holds no state across runs.
type Pipeline struct {
	adapter   source.Adapter
	extractor extract.Extractor
	renderer  Renderer
	files     FileStore
	records   RecordStore
	logger    *slog.Logger
	now       func() time.Time
}

// New wires a pipeline from its collaborators.
func New(
	adapter source.Adapter,
	extractor extract.Extractor,
	renderer Renderer,
	files FileStore,
	records RecordStore,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		adapter:   adapter,
		extractor: extractor,
		renderer:  renderer,
		files:     files,
		records:   records,
		logger:    logger,
		now:       time.Now,
	}
}

// Run performs one full scan of the source. Per-message extraction and
// rendering failures are recorded in the report and skipped;
// connection-level, storage, and record-keeping failures abort the run
// with the partial report.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{}

	processed, err := p.records.ProcessedSourceIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("loading processed ids: %w", err)
	}

	if obs, ok := p.adapter.(skipObserver); ok {
		obs.SetOnSkip(func(string) { report.Skipped++ })
	}

	for msg, err := range p.adapter.FetchUnprocessed(ctx, processed) {
		if err != nil {
			return report, fmt.Errorf("source scan failed: %w", err)
		}

		if err := p.processMessage(ctx, msg); err != nil {
			var fatal *fatalError
			if errors.As(err, &fatal) {
				return report, fatal.err
			}
			p.logger.Warn("message failed, continuing",
				"source_id", msg.SourceID,
				"subject", msg.Subject,
				"error", err)
			report.Failed = append(report.Failed, Failure{
				SourceID: msg.SourceID,
				Subject:  msg.Subject,
				Err:      err,
			})
			continue
		}

		report.Ingested++
	}

	return report, nil
}

// processMessage runs one message through extract, render, store, and
// record. Storage and record failures come back wrapped as fatal.
func (p *Pipeline) processMessage(ctx context.Context, msg *model.Message) error {
	prompt := extract.BuildPrompt(msg)

	meta, err := p.extractor.Extract(ctx, prompt)
	if err != nil {
		return fmt.Errorf("extracting metadata: %w", err)
	}

	pdf, err := p.renderer.RenderPDF(msg)
	if err != nil {
		return fmt.Errorf("rendering pdf: %w", err)
	}

	relPath, err := p.files.Save(meta.Date, meta.Vendor, meta.Amount, pdf)
	if err != nil {
		return &fatalError{err: fmt.Errorf("storing pdf: %w", err)}
	}

	now := p.now()
	receipt := model.Receipt{
		ID:           uuid.New(),
		SourceID:     msg.SourceID,
		SourceType:   sourceType,
		Vendor:       meta.Vendor,
		Amount:       meta.Amount,
		Currency:     meta.Currency,
		ReceiptDate:  meta.Date,
		Description:  meta.Description,
		Confidence:   meta.Confidence,
		PDFPath:      relPath,
		EmailSubject: msg.Subject,
		EmailSender:  msg.Sender,
		EmailDate:    msg.Date,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := p.records.SaveReceipt(ctx, receipt); err != nil {
		return &fatalError{err: fmt.Errorf("recording receipt: %w", err)}
	}

	p.logger.Info("ingested receipt",
		"source_id", msg.SourceID,
		"vendor", meta.Vendor,
		"amount", meta.Amount.String(),
		"pdf_path", relPath)

	return nil
}

// fatalError marks failures that must abort the run rather than skip
// the message.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }
