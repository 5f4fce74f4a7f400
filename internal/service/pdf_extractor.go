package service

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextExtractor pulls plain text out of an uploaded document.
type TextExtractor interface {
	Extract(data []byte) (string, error)
}

// PDFExtractor extracts text page by page with ledongthuc/pdf.
type PDFExtractor struct{}

// Extract returns the text of every page, each prefixed with a page marker.
// Pages that fail to decode are skipped; a document yielding no text at
// all is an error.
func (PDFExtractor) Extract(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrExtractionFailed, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n--- Page %d ---\n%s\n", i, content)
	}

	text = strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: no extractable text", ErrExtractionFailed)
	}
	return text, nil
}
