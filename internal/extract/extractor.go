// Package extract turns normalized receipt emails into structured
// purchase metadata via a language model.
package extract

import (
	"context"

	"github.com/nhle/receipt-index/internal/model"
)

// Extractor runs one extraction prompt and returns validated metadata.
// The pipeline treats the implementation as opaque; alternative model
// backends substitute here without touching the rest of the system.
type Extractor interface {
	Extract(ctx context.Context, prompt string) (model.ReceiptMetadata, error)
}
