// Command receipt-index ingests receipt emails from an IMAP mailbox,
// extracts purchase metadata, and files each receipt as a PDF.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/nhle/receipt-index/internal/config"
	"github.com/nhle/receipt-index/internal/extract"
	"github.com/nhle/receipt-index/internal/pipeline"
	"github.com/nhle/receipt-index/internal/render"
	"github.com/nhle/receipt-index/internal/source/imap"
	"github.com/nhle/receipt-index/internal/store"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	var runErr error
	switch cmd := flag.Arg(0); cmd {
	case "ingest":
		runErr = runIngest(cfg)
	case "list":
		runErr = runList(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if runErr != nil {
		slog.Error("command failed", "error", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: receipt-index [flags] <command>

Commands:
  ingest    fetch unprocessed receipt emails and file them
  list      print stored receipts

Flags:
`)
	flag.PrintDefaults()
}

// setupLogger configures the global slog logger with text output and
// the configured level.
func setupLogger(level string) {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

// runIngest wires the pipeline and performs one full ingest pass.
func runIngest(cfg *config.Config) error {
	ctx := context.Background()

	records, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening receipt database: %w", err)
	}
	defer records.Close()

	adapter := imap.NewAdapter(imap.Config{
		Host:     cfg.IMAP.Host,
		Port:     cfg.IMAP.Port,
		Username: cfg.IMAP.Username,
		Password: cfg.IMAP.Password,
		Folder:   cfg.IMAP.Folder,
	}, slog.Default())

	p := pipeline.New(
		adapter,
		extract.NewClaudeExtractor(cfg.LLM.APIKey, cfg.LLM.Model),
		render.New(render.NewWKHTMLEngine()),
		store.NewLocalFileStore(cfg.StoreRoot),
		records,
		slog.Default(),
	)

	report, err := p.Run(ctx)
	if err != nil {
		return err
	}

	slog.Info("ingest complete",
		"ingested", report.Ingested,
		"skipped", report.Skipped,
		"failed", len(report.Failed))
	for _, f := range report.Failed {
		slog.Warn("failed message",
			"source_id", f.SourceID,
			"subject", f.Subject,
			"error", f.Err)
	}

	return nil
}

// runList prints every stored receipt, newest first.
func runList(cfg *config.Config) error {
	ctx := context.Background()

	records, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening receipt database: %w", err)
	}
	defer records.Close()

	receipts, err := records.ListReceipts(ctx)
	if err != nil {
		return err
	}

	for _, r := range receipts {
		fmt.Printf("%s  %-30s  %10s %s  %s\n",
			r.ReceiptDate.Format("2006-01-02"),
			r.Vendor,
			r.Amount.String(),
			r.Currency,
			r.PDFPath,
		)
	}

	return nil
}
