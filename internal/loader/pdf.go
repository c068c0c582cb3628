package loader

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ReadPDFPages extracts the plain text of each page. Pages without a page
// object produce an empty string so page numbers stay aligned.
func ReadPDFPages(path string) (pages []string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i-1, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
