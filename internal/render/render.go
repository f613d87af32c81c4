// Package render produces one canonical PDF per normalized message.
package render

import (
	"encoding/base64"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/nhle/receipt-index/internal/model"
)

// Engine converts an HTML document to PDF bytes. Engine failures are
// hard failures for the message being rendered; the renderer never
// catches them.
type Engine interface {
	RenderHTML(htmlContent string) ([]byte, error)
}

const noBodyMarker = "(no body content)"

// plainTextTemplate wraps a text body with the message headers in a
// fixed monospace layout. Placeholders are subject, sender, date, and
// body, all pre-escaped by the caller.
const plainTextTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: monospace; font-size: 12px; margin: 2em; }
  .header { border-bottom: 1px solid #ccc; padding-bottom: 1em; margin-bottom: 1em; }
  .header p { margin: 0.2em 0; }
  pre { white-space: pre-wrap; word-wrap: break-word; }
</style>
</head>
<body>
<div class="header">
  <p><strong>Subject:</strong> %s</p>
  <p><strong>From:</strong> %s</p>
  <p><strong>Date:</strong> %s</p>
</div>
<pre>%s</pre>
</body>
</html>
`

var cidPattern = regexp.MustCompile(`cid:([^\s"'>]+)`)

// Renderer renders normalized messages to PDF through a strict
// four-tier cascade.
type Renderer struct {
	engine Engine
}

// New creates a Renderer backed by the given HTML-to-PDF engine.
func New(engine Engine) *Renderer {
	return &Renderer{engine: engine}
}

// RenderPDF produces the canonical PDF for a message. Preference
// order, first match wins:
//
//  1. a PDF attachment is passed through byte-for-byte
//  2. an HTML body is rendered, with cid: references inlined
//  3. a text body is wrapped in the monospace template and rendered
//  4. the template is rendered with a fixed placeholder body
//
// Tier 4 guarantees a non-empty result for every well-formed message.
func (r *Renderer) RenderPDF(msg *model.Message) ([]byte, error) {
	if data := findPDFAttachment(msg.Attachments); data != nil {
		return data, nil
	}

	if msg.HTMLBody != "" {
		return r.engine.RenderHTML(
			embedInlineImages(msg.HTMLBody, msg.Attachments),
		)
	}

	body := msg.TextBody
	if body == "" {
		body = noBodyMarker
	}

	doc := fmt.Sprintf(plainTextTemplate,
		html.EscapeString(msg.Subject),
		html.EscapeString(msg.Sender),
		html.EscapeString(msg.Date.Format("2006-01-02T15:04:05Z07:00")),
		html.EscapeString(body),
	)
	return r.engine.RenderHTML(doc)
}

// findPDFAttachment returns the first attachment whose content type is
// application/pdf, or nil.
func findPDFAttachment(attachments []model.Attachment) []byte {
	for _, att := range attachments {
		if strings.EqualFold(att.ContentType, "application/pdf") {
			return att.Data
		}
	}
	return nil
}

// embedInlineImages rewrites every cid:<token> reference whose token
// matches an image attachment's filename into a base64 data: URI.
// Unresolved references are left untouched.
func embedInlineImages(htmlContent string, attachments []model.Attachment) string {
	images := make(map[string]model.Attachment)
	for _, att := range attachments {
		if strings.HasPrefix(att.ContentType, "image/") {
			// The filename may be the part's Content-ID.
			images[att.Filename] = att
		}
	}
	if len(images) == 0 {
		return htmlContent
	}

	return cidPattern.ReplaceAllStringFunc(htmlContent, func(ref string) string {
		token := strings.TrimPrefix(ref, "cid:")
		att, ok := images[token]
		if !ok {
			return ref
		}
		b64 := base64.StdEncoding.EncodeToString(att.Data)
		return fmt.Sprintf("data:%s;base64,%s", att.ContentType, b64)
	})
}
