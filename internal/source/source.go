// Package source defines the contract between the ingest pipeline and
// the mailbox adapters that feed it.
package source

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/nhle/receipt-index/internal/model"
)

// AuthError indicates that authentication failed for a source. It is
// returned by adapters when login is rejected.
type AuthError struct {
	Source  string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Source, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Adapter enumerates and fetches unprocessed messages from one source.
//
// FetchUnprocessed performs one full scan per call: it connects,
// lists every message in the configured folder, and yields each
// normalized message whose identity is not in processed, in the
// source's native listing order. Per-message parse failures are
// logged and skipped inside the adapter. A connection-level failure
// ends the sequence with a single non-nil error element; the
// connection is released before it is yielded.
type Adapter interface {
	FetchUnprocessed(
		ctx context.Context,
		processed map[string]struct{},
	) iter.Seq2[*model.Message, error]
}
