// Package extract turns uploaded PDF documents into plain text.
package extract

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractionError reports that a document could not be opened or parsed.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("extract: %v", e.Err)
	}
	return fmt.Sprintf("extract: %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PDFExtractor reads the text layer of PDF files. Pages are visited in
// order and their text is concatenated without separators; pages with no
// text layer contribute nothing.
type PDFExtractor struct{}

// NewPDFExtractor returns a ready-to-use extractor.
func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

// ExtractFile opens path and returns its text.
func (x *PDFExtractor) ExtractFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &ExtractionError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", &ExtractionError{Path: path, Err: err}
	}

	text, err := x.Extract(f, info.Size())
	if err != nil {
		if ee, ok := err.(*ExtractionError); ok {
			ee.Path = path
		}
		return "", err
	}
	return text, nil
}

// Extract reads a PDF of the given size from r.
func (x *PDFExtractor) Extract(r io.ReaderAt, size int64) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", &ExtractionError{Err: fmt.Errorf("malformed pdf: %v", rec)}
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", &ExtractionError{Err: err}
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", &ExtractionError{Err: fmt.Errorf("page %d: %w", i, err)}
		}
		b.WriteString(content)
	}
	return b.String(), nil
}
