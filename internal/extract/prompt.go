package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/nhle/receipt-index/internal/model"
)

// noBodyMarker stands in when a message carries neither body.
const noBodyMarker = "(no body content)"

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// BuildPrompt converts a normalized message into the plain-text model
// input. It always leads with subject, sender, and an ISO-8601
// timestamp, then the body: the plain-text body when present,
// otherwise the HTML body with markup stripped, otherwise a fixed
// marker. Deterministic, no side effects.
func BuildPrompt(msg *model.Message) string {
	parts := []string{
		"Subject: " + msg.Subject,
		"From: " + msg.Sender,
		"Date: " + msg.Date.Format(time.RFC3339),
		"",
		"--- Email Body ---",
	}

	switch {
	case msg.TextBody != "":
		parts = append(parts, msg.TextBody)
	case msg.HTMLBody != "":
		parts = append(parts, stripTags(msg.HTMLBody))
	default:
		parts = append(parts, noBodyMarker)
	}

	return strings.Join(parts, "\n")
}

// stripTags removes HTML markup, keeping only text content. Character
// references stay in their escaped textual form; decoding them is not
// worth the fidelity risk for model input.
func stripTags(html string) string {
	return htmlTagPattern.ReplaceAllString(html, "")
}
