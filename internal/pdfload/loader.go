// Package pdfload extracts per-page text from PDF files for ingestion.
package pdfload

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrInvalidDocument marks files that cannot be read as a PDF. Ingestion
// treats it like any other load failure: the job fails before the index is
// touched.
var ErrInvalidDocument = errors.New("not a readable PDF document")

// Page is one extractable unit of a source document.
type Page struct {
	Number int
	Text   string
	Source string
}

// Load extracts one Page per PDF page. Pages without extractable text are
// kept (with empty text) so page numbering stays aligned with the document.
func Load(path string) ([]Page, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrInvalidDocument, filepath.Base(path), err)
	}
	defer f.Close()

	source := filepath.Base(path)
	total := reader.NumPage()
	pages := make([]Page, 0, total)

	for i := 1; i <= total; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Number: i, Source: source})
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: extracting page %d of %s: %v", ErrInvalidDocument, i, source, err)
		}
		pages = append(pages, Page{
			Number: i,
			Text:   strings.TrimSpace(text),
			Source: source,
		})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s has no pages", ErrInvalidDocument, source)
	}
	return pages, nil
}
