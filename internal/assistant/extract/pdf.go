package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// pdfText extracts the plain-text content of a PDF.  The parser is known to
// panic on some malformed files, so the call is fenced with a recover.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract: malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract: open pdf: %w", err)
	}

	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract: read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return "", fmt.Errorf("extract: read pdf text: %w", err)
	}
	return buf.String(), nil
}
