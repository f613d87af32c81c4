package store

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

// vendorSlugMaxLen caps the vendor slug inside stored filenames.
const vendorSlugMaxLen = 50

// FileStore persists receipt PDFs and resolves previously returned
// relative paths.
type FileStore interface {
	Save(receiptDate time.Time, vendor string, amount decimal.Decimal, pdf []byte) (string, error)
	Exists(relativePath string) bool
	Path(relativePath string) string
}

// LocalFileStore writes PDFs under a root directory with the layout
// {year}/{zero-padded month}/{ISO date}__{vendor-slug}__{amount}.pdf.
// The layout is an observable contract; downstream tooling parses it.
type LocalFileStore struct {
	root string
}

// NewLocalFileStore creates a file store rooted at the given directory.
// The directory itself is created lazily on first save.
func NewLocalFileStore(root string) *LocalFileStore {
	return &LocalFileStore{root: root}
}

// Save writes the PDF and returns its relative path. An existing file
// is never overwritten: identical (date, vendor, amount) tuples get a
// numeric suffix starting at 2.
func (s *LocalFileStore) Save(
	receiptDate time.Time,
	vendor string,
	amount decimal.Decimal,
	pdf []byte,
) (string, error) {
	year := receiptDate.Format("2006")
	month := receiptDate.Format("01")

	dir := filepath.Join(s.root, year, month)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating store directory %s: %w", dir, err)
	}

	base := fmt.Sprintf("%s__%s__%s",
		receiptDate.Format("2006-01-02"),
		slugifyVendor(vendor),
		amount.String(),
	)

	filename := base + ".pdf"
	for counter := 2; fileExists(filepath.Join(dir, filename)); counter++ {
		filename = fmt.Sprintf("%s_%d.pdf", base, counter)
	}

	if err := os.WriteFile(filepath.Join(dir, filename), pdf, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", filename, err)
	}

	return path.Join(year, month, filename), nil
}

// Path returns the absolute path for a relative path previously
// returned by Save. The input is trusted and not normalized.
func (s *LocalFileStore) Path(relativePath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relativePath))
}

// Exists reports whether a stored file is present.
func (s *LocalFileStore) Exists(relativePath string) bool {
	return fileExists(s.Path(relativePath))
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// slugifyVendor renders an arbitrary vendor string as a lowercase,
// hyphen-delimited slug capped at vendorSlugMaxLen. The slug alphabet
// contains no separators or dots, so traversal sequences in hostile
// vendor names cannot escape the store root.
func slugifyVendor(vendor string) string {
	v := slug.Make(vendor)
	if len(v) > vendorSlugMaxLen {
		v = strings.TrimRight(v[:vendorSlugMaxLen], "-")
	}
	return v
}
