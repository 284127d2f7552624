// Package ingest builds the article index from a legal code PDF: it
// extracts text, splits it into articles, embeds and upserts them, and later
// removes articles that were repealed.
package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DefaultStartPage skips the front matter of the code the tool was built
// for; the table of contents that follows is dropped by SplitArticles.
const DefaultStartPage = 37

// pageSource abstracts the PDF reader for tests.
type pageSource interface {
	NumPage() int
	PageText(n int) (string, error)
}

type pdfPages struct{ r *pdf.Reader }

func (p pdfPages) NumPage() int { return p.r.NumPage() }

func (p pdfPages) PageText(n int) (string, error) {
	page := p.r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// ExtractPDF returns the text of pages startPage..last (1-based). Each
// non-empty page is preceded by a "--- PAGE n ---" marker line.
func ExtractPDF(path string, startPage int) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()
	return joinPages(pdfPages{r}, startPage)
}

func joinPages(src pageSource, startPage int) (string, error) {
	startPage = max(startPage, 1)
	var sb strings.Builder
	for n := startPage; n <= src.NumPage(); n++ {
		text, err := src.PageText(n)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", n, err)
		}
		if text == "" {
			continue
		}
		sb.WriteString("\n--- PAGE " + strconv.Itoa(n) + " ---\n")
		sb.WriteString(text)
	}
	return sb.String(), nil
}
