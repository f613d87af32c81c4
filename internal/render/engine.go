package render

import (
	"fmt"
	"strings"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
)

// WKHTMLEngine renders HTML to PDF by shelling out to wkhtmltopdf.
type WKHTMLEngine struct{}

// NewWKHTMLEngine returns the default production engine. It requires
// the wkhtmltopdf binary on PATH.
func NewWKHTMLEngine() *WKHTMLEngine {
	return &WKHTMLEngine{}
}

// RenderHTML converts one HTML document to PDF bytes.
func (e *WKHTMLEngine) RenderHTML(htmlContent string) ([]byte, error) {
	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("initializing pdf generator: %w", err)
	}

	page := wkhtmltopdf.NewPageReader(strings.NewReader(htmlContent))
	page.Encoding.Set("utf-8")
	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("rendering html to pdf: %w", err)
	}

	return pdfg.Bytes(), nil
}
