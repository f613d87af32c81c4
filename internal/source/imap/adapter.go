// Package imap implements the mailbox source adapter over IMAP.
package imap

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/receipt-index/internal/model"
	"github.com/nhle/receipt-index/internal/normalize"
	"github.com/nhle/receipt-index/internal/source"
)

// Config holds the IMAP connection settings for one mailbox.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string
}

// Adapter fetches unprocessed receipt emails from a single IMAP folder.
// It implements source.Adapter.
type Adapter struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	onSkip func(sourceID string)
}

// NewAdapter creates an IMAP adapter for the given mailbox.
func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	return &Adapter{cfg: cfg, logger: logger, now: time.Now}
}

// SetOnSkip registers an observer called once per message skipped as
// already processed. Used for run accounting.
func (a *Adapter) SetOnSkip(fn func(sourceID string)) {
	a.onSkip = fn
}

// FetchUnprocessed connects to the mailbox, lists every message in the
// configured folder, and yields each message whose identity is not in
// processed, in mailbox listing order. The connection is released
// unconditionally when the sequence ends, whether by exhaustion, early
// break, or failure.
func (a *Adapter) FetchUnprocessed(
	ctx context.Context,
	processed map[string]struct{},
) iter.Seq2[*model.Message, error] {
	return func(yield func(*model.Message, error) bool) {
		client, err := a.connect(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		defer func() {
			if err := client.Logout().Wait(); err != nil {
				a.logger.Debug("imap logout failed", "error", err)
			}
		}()

		if _, err := client.Select(a.cfg.Folder, &imap.SelectOptions{
			ReadOnly: true,
		}).Wait(); err != nil {
			yield(nil, fmt.Errorf("selecting folder %s: %w", a.cfg.Folder, err))
			return
		}

		searchData, err := client.Search(&imap.SearchCriteria{}, nil).Wait()
		if err != nil {
			yield(nil, fmt.Errorf("listing messages: %w", err))
			return
		}

		for _, seq := range searchData.AllSeqNums() {
			raw, err := fetchRaw(client, seq)
			if err != nil {
				yield(nil, fmt.Errorf("fetching message %d: %w", seq, err))
				return
			}
			if raw == nil {
				// Empty fetch responses are not an error.
				continue
			}

			msg, err := normalize.Normalize(raw, a.now)
			if err != nil {
				a.logger.Warn("failed to parse message, skipping",
					"seq", seq, "error", err)
				continue
			}

			if _, ok := processed[msg.SourceID]; ok {
				a.logger.Debug("skipping already-processed message",
					"source_id", msg.SourceID)
				if a.onSkip != nil {
					a.onSkip(msg.SourceID)
				}
				continue
			}

			if !yield(msg, nil) {
				return
			}
		}
	}
}

// connect dials the server over implicit TLS and authenticates.
func (a *Adapter) connect(_ context.Context) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)

	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(a.cfg.Username, a.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &source.AuthError{
			Source: "imap",
			Message: fmt.Sprintf(
				"authentication failed for %s: %v", a.cfg.Username, err,
			),
		}
	}

	return client, nil
}

// fetchRaw retrieves the full raw message for one sequence number.
// A nil result with a nil error means the server returned no data.
func fetchRaw(client *imapclient.Client, seq uint32) ([]byte, error) {
	bodySection := &imap.FetchItemBodySection{Peek: true}

	fetchCmd := client.Fetch(imap.SeqSetNum(seq), &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fetchCmd.Close()
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message data: %w", err)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, err
	}

	return buf.FindBodySection(bodySection), nil
}
