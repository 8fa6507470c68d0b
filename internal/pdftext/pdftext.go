// Package pdftext turns a PDF file into per-page plain text.
package pdftext

import (
	"fmt"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// Extractor reads PDFs page by page. It tries the Go library first and, when
// enabled, falls back to pdftotext for PDFs the library cannot decode.
type Extractor struct {
	FallbackPdftotext bool
}

// Pages returns the plain text of every page, 1-based order. Pages that fail
// to decode come back as empty strings so indices stay aligned with the
// document's physical page numbers.
func (e *Extractor) Pages(path string) ([]string, error) {
	pages, err := extractPages(path)
	if err != nil && e.FallbackPdftotext {
		pages, err = extractPdftotext(path)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdf has no pages: %s", path)
	}
	return pages, nil
}

func extractPages(path string) ([]string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func extractPdftotext(path string) ([]string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	// pdftotext separates pages with form feeds.
	return strings.Split(string(out), "\f"), nil
}
