package confirmation

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

// TextExtractor turns a confirmation artifact into plain text.
type TextExtractor interface {
	ExtractText(data []byte) (string, error)
}

// PDFExtractor reads the text layer of a PDF document.
type PDFExtractor struct{}

func (PDFExtractor) ExtractText(data []byte) (text string, err error) {
	// The reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, "open pdf")
	}
	rd, err := r.GetPlainText()
	if err != nil {
		return "", errors.Wrap(err, "extract pdf text")
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return "", errors.Wrap(err, "read pdf text")
	}
	return string(b), nil
}

// PlainText treats the artifact as UTF-8 text already.
type PlainText struct{}

func (PlainText) ExtractText(data []byte) (string, error) {
	return string(data), nil
}

// ParseArtifact extracts and parses an artifact. An extraction error is
// returned alongside a zero Document.
func ParseArtifact(ex TextExtractor, data []byte) (Document, error) {
	if len(data) == 0 {
		return Document{}, nil
	}
	text, err := ex.ExtractText(data)
	if err != nil {
		return Document{}, err
	}
	return Parse(text), nil
}
