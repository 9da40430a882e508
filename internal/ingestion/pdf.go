package ingestion

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// loadPDFLayoutAware extracts text from every page using the reader's
// built-in layout-aware plain-text extraction, joining pages with a
// blank line. This is the preferred PDF loader (spec 4.D step 5).
func loadPDFLayoutAware(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("ingestion: open pdf %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	rows, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("ingestion: layout-aware extract %s: %w", path, err)
	}
	if _, err := b.ReadFrom(rows); err != nil {
		return "", fmt.Errorf("ingestion: read extracted text %s: %w", path, err)
	}
	return b.String(), nil
}

// loadPDFPages is the page-loader fallback: it walks pages individually
// and concatenates their plain text, tolerating per-page extraction
// failures rather than failing the whole file.
func loadPDFPages(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("ingestion: open pdf %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("ingestion: no extractable text in %s", path)
	}
	return b.String(), nil
}
