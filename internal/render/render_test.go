package render

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nhle/receipt-index/internal/model"
)

// fakeEngine records the HTML it was asked to render.
type fakeEngine struct {
	lastHTML string
	result   []byte
	err      error
}

func (f *fakeEngine) RenderHTML(htmlContent string) ([]byte, error) {
	f.lastHTML = htmlContent
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testMessage() *model.Message {
	return &model.Message{
		SourceID: "<m1@example.com>",
		Subject:  "Receipt",
		Sender:   "shop@example.com",
		Date:     time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestRenderPDFAttachmentPassthrough(t *testing.T) {
	t.Parallel()

	pdfData := []byte("%PDF-1.4 original bytes")
	msg := testMessage()
	msg.HTMLBody = "<p>ignored: the attachment wins</p>"
	msg.Attachments = []model.Attachment{
		{Filename: "receipt.pdf", ContentType: "application/pdf", Data: pdfData},
	}

	engine := &fakeEngine{result: []byte("rendered")}
	got, err := New(engine).RenderPDF(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(pdfData) {
		t.Errorf("got %q, want exact attachment bytes", got)
	}
	if engine.lastHTML != "" {
		t.Error("engine was invoked despite PDF attachment")
	}
}

func TestRenderPDFAttachmentCaseInsensitive(t *testing.T) {
	t.Parallel()

	msg := testMessage()
	msg.Attachments = []model.Attachment{
		{Filename: "r.pdf", ContentType: "Application/PDF", Data: []byte("pdf")},
	}

	got, err := New(&fakeEngine{}).RenderPDF(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "pdf" {
		t.Errorf("got %q, want attachment bytes", got)
	}
}

func TestRenderPDFFirstPDFAttachmentWins(t *testing.T) {
	t.Parallel()

	msg := testMessage()
	msg.Attachments = []model.Attachment{
		{Filename: "a.pdf", ContentType: "application/pdf", Data: []byte("first")},
		{Filename: "b.pdf", ContentType: "application/pdf", Data: []byte("second")},
	}

	got, err := New(&fakeEngine{}).RenderPDF(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "first" {
		t.Errorf("got %q, want first attachment", got)
	}
}

func TestRenderPDFFallsThroughToHTML(t *testing.T) {
	t.Parallel()

	msg := testMessage()
	msg.HTMLBody = "<p>Your receipt</p>"

	engine := &fakeEngine{result: []byte("pdf-from-html")}
	got, err := New(engine).RenderPDF(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "pdf-from-html" {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(engine.lastHTML, "<p>Your receipt</p>") {
		t.Errorf("engine received %q", engine.lastHTML)
	}
}

func TestRenderPDFEmbedsInlineImages(t *testing.T) {
	t.Parallel()

	imgData := []byte{0x89, 0x50, 0x4e, 0x47}
	msg := testMessage()
	msg.HTMLBody = `<img src="cid:logo"> and <img src="cid:missing">`
	msg.Attachments = []model.Attachment{
		{Filename: "logo", ContentType: "image/png", Data: imgData},
	}

	engine := &fakeEngine{result: []byte("pdf")}
	if _, err := New(engine).RenderPDF(msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(imgData)
	if !strings.Contains(engine.lastHTML, wantURI) {
		t.Errorf("rewritten HTML missing data URI:\n%s", engine.lastHTML)
	}
	if strings.Contains(engine.lastHTML, "cid:logo") {
		t.Error("resolved cid reference was not rewritten")
	}
	if !strings.Contains(engine.lastHTML, "cid:missing") {
		t.Error("unresolved cid reference should be left untouched")
	}
}

func TestRenderPDFTextBody(t *testing.T) {
	t.Parallel()

	msg := testMessage()
	msg.TextBody = "Total: $42.99 <special & chars>"

	engine := &fakeEngine{result: []byte("pdf-from-text")}
	got, err := New(engine).RenderPDF(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "pdf-from-text" {
		t.Errorf("got %q", got)
	}

	html := engine.lastHTML
	if !strings.Contains(html, "Total: $42.99 &lt;special &amp; chars&gt;") {
		t.Errorf("text body not escaped into template:\n%s", html)
	}
	if !strings.Contains(html, "Receipt") || !strings.Contains(html, "shop@example.com") {
		t.Errorf("template missing headers:\n%s", html)
	}
	if !strings.Contains(html, "monospace") {
		t.Errorf("template missing monospace style:\n%s", html)
	}
}

func TestRenderPDFNoBodyFallback(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{result: []byte("pdf-fallback")}
	got, err := New(engine).RenderPDF(testMessage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("fallback produced empty result")
	}
	if !strings.Contains(engine.lastHTML, "(no body content)") {
		t.Errorf("fallback template missing placeholder:\n%s", engine.lastHTML)
	}
}

func TestRenderPDFEngineErrorPropagates(t *testing.T) {
	t.Parallel()

	engineErr := errors.New("wkhtmltopdf exploded")
	msg := testMessage()
	msg.HTMLBody = "<p>body</p>"

	_, err := New(&fakeEngine{err: engineErr}).RenderPDF(msg)
	if !errors.Is(err, engineErr) {
		t.Errorf("got %v, want engine error to propagate", err)
	}
}
