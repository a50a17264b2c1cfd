// Package pdftext extracts plain text from PDF bytes. Plansets only need the
// first page (the address block lives there); utility bills are read whole.
package pdftext

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/heliowatt/permit-intake/internal/core/domain"
)

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// ExtractText returns the plain text of every page.
func (e *Extractor) ExtractText(data []byte) (string, error) {
	reader, err := open(data)
	if err != nil {
		return "", err
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, "extract pdf text", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, "read pdf text", err)
	}
	return cleanText(string(raw)), nil
}

// ExtractFirstPage returns the plain text of page one only.
func (e *Extractor) ExtractFirstPage(data []byte) (string, error) {
	reader, err := open(data)
	if err != nil {
		return "", err
	}
	if reader.NumPage() < 1 {
		return "", domain.WrapError(domain.ErrExtraction, "extract first page", errors.New("pdf has no pages"))
	}

	page := reader.Page(1)
	if page.V.IsNull() {
		return "", domain.WrapError(domain.ErrExtraction, "extract first page", errors.New("first page unreadable"))
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, "extract first page", err)
	}
	return cleanText(text), nil
}

func open(data []byte) (*pdf.Reader, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtraction, "open pdf", err)
	}
	return reader, nil
}

// cleanText drops very short fragments the PDF text layer tends to emit for
// drawing artifacts, mirroring how planset sheets are noisy.
func cleanText(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) > 2 {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
