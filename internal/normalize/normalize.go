// Package normalize decodes raw RFC 5322 messages into the uniform
// in-memory representation consumed by the rest of the pipeline.
package normalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/receipt-index/internal/model"
)

// inlineImagePlaceholder names inline image parts that carry neither a
// filename nor a Content-ID.
const inlineImagePlaceholder = "inline-image"

// Normalize parses raw message bytes into a model.Message. Header
// decoding is best-effort: undecodable encoded words fall back to the
// raw header value, unknown charsets fall back to UTF-8 with invalid
// sequences replaced. A nil error does not imply the message had any
// body or attachments.
func Normalize(raw []byte, now func() time.Time) (*model.Message, error) {
	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parsing message: %w", err)
	}

	h := mail.Header{Header: ent.Header}

	subject, err := h.Text("Subject")
	if err != nil {
		subject = ent.Header.Get("Subject")
	}
	sender, err := h.Text("From")
	if err != nil {
		sender = ent.Header.Get("From")
	}

	date, err := h.Date()
	if err != nil || date.IsZero() {
		date = now()
	}

	msg := &model.Message{
		SourceID:    SourceID(ent.Header),
		Subject:     subject,
		Sender:      sender,
		Date:        date,
		Attachments: []model.Attachment{},
	}

	walk(ent, msg)
	return msg, nil
}

// SourceID returns the message's unique identifier: the trimmed
// Message-ID header when present, otherwise a fingerprint of the raw
// header triple.
func SourceID(h message.Header) string {
	if id := strings.TrimSpace(h.Get("Message-Id")); id != "" {
		return id
	}
	return Fingerprint(h.Get("Subject"), h.Get("Date"), h.Get("From"))
}

// Fingerprint computes the deterministic fallback identity from the
// raw (undecoded) subject, date, and sender header values. The result
// is stable across runs for the same triple; it is the sole
// deduplication key for messages without a native Message-ID.
func Fingerprint(subject, date, sender string) string {
	sum := sha256.Sum256([]byte(subject + "|" + date + "|" + sender))
	return hex.EncodeToString(sum[:])
}

// walk traverses the MIME tree in document order using an explicit
// stack of multipart readers, so adversarial nesting depth cannot
// exhaust the call stack. Container parts are descended into but never
// classified themselves.
func walk(root *message.Entity, msg *model.Message) {
	if mr := root.MultipartReader(); mr != nil {
		stack := []message.MultipartReader{mr}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			part, err := top.NextPart()
			if err == io.EOF {
				stack = stack[:len(stack)-1]
				continue
			}
			if err != nil && !message.IsUnknownCharset(err) {
				// Malformed remainder; keep what was already
				// classified.
				stack = stack[:len(stack)-1]
				continue
			}
			if sub := part.MultipartReader(); sub != nil {
				stack = append(stack, sub)
				continue
			}
			classifyLeaf(part, msg)
		}
		return
	}

	// Single-part message: only the body classification applies.
	ctype, _, _ := root.Header.ContentType()
	body, err := io.ReadAll(root.Body)
	if err != nil {
		return
	}
	switch ctype {
	case "text/html":
		msg.HTMLBody = sanitizeText(body)
	case "text/plain":
		msg.TextBody = sanitizeText(body)
	}
}

// classifyLeaf applies the body/attachment rules to one non-container
// part: explicit attachments first, then first-wins HTML and text
// bodies, then inline images. Anything else is ignored.
func classifyLeaf(part *message.Entity, msg *model.Message) {
	ctype, _, _ := part.Header.ContentType()
	disp, dispParams, _ := part.Header.ContentDisposition()

	filename := dispParams["filename"]
	if filename == "" {
		_, ctParams, _ := part.Header.ContentType()
		filename = ctParams["name"]
	}

	body, err := io.ReadAll(part.Body)
	if err != nil {
		// Undecodable payload: the leaf contributes nothing.
		return
	}

	isAttachment := filename != "" ||
		strings.Contains(strings.ToLower(disp), "attachment")

	switch {
	case isAttachment:
		if filename == "" {
			filename = "unnamed"
		}
		msg.Attachments = append(msg.Attachments, model.Attachment{
			Filename:    filename,
			ContentType: ctype,
			Data:        body,
		})
	case ctype == "text/html" && msg.HTMLBody == "":
		msg.HTMLBody = sanitizeText(body)
	case ctype == "text/plain" && msg.TextBody == "":
		msg.TextBody = sanitizeText(body)
	case strings.HasPrefix(ctype, "image/"):
		name := strings.Trim(part.Header.Get("Content-Id"), "<>")
		if name == "" {
			name = inlineImagePlaceholder
		}
		msg.Attachments = append(msg.Attachments, model.Attachment{
			Filename:    name,
			ContentType: ctype,
			Data:        body,
		})
	}
}

// sanitizeText converts decoded body bytes to a string, replacing any
// invalid UTF-8 sequences left over from charset fallbacks.
func sanitizeText(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
