// Package extract pulls plain text out of uploaded documents.
//
// Extraction is synchronous and runs before a job is queued: a file whose
// text cannot be read is rejected at upload time instead of failing later
// inside the analysis worker.  Failures are errors, never placeholder text
// smuggled into the extracted content.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a supported document format.
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatDocx  Format = "docx"
	FormatXlsx  Format = "xlsx"
	FormatImage Format = "image"
	FormatPlain Format = "plain"
)

// ErrUnsupportedFormat is returned for file types the extractor does not
// understand.
var ErrUnsupportedFormat = errors.New("extract: unsupported document format")

// ErrEmptyDocument is returned when extraction succeeds but yields no text.
var ErrEmptyDocument = errors.New("extract: document contains no text")

// DetectFormat maps a filename extension onto a Format.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDocx, nil
	case ".xlsx":
		return FormatXlsx, nil
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp":
		return FormatImage, nil
	case ".txt", ".md", ".csv":
		return FormatPlain, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// SniffFormat inspects the leading bytes of a document when the filename
// extension gives no answer.  Only unambiguous magic numbers are honored:
// %PDF for PDF, and the zip signature for docx/xlsx (told apart by the
// archive's well-known entry names).
func SniffFormat(data []byte) (Format, error) {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return FormatPDF, nil
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return "", fmt.Errorf("%w: unreadable zip container", ErrUnsupportedFormat)
		}
		for _, f := range zr.File {
			switch f.Name {
			case "word/document.xml":
				return FormatDocx, nil
			case "xl/workbook.xml":
				return FormatXlsx, nil
			}
		}
	}
	return "", fmt.Errorf("%w: unrecognized content", ErrUnsupportedFormat)
}

// Text extracts plain text from the document data, dispatching on the
// filename extension with a magic-number fallback.  Image formats shell out
// to the OCR engine and need a context for cancellation; the other formats
// decode in-process.
func Text(ctx context.Context, filename string, data []byte) (string, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		if format, err = SniffFormat(data); err != nil {
			return "", err
		}
	}

	var text string
	switch format {
	case FormatPDF:
		text, err = pdfText(data)
	case FormatDocx:
		text, err = docxText(data)
	case FormatXlsx:
		text, err = xlsxText(data)
	case FormatImage:
		text, err = ocrText(ctx, data)
	case FormatPlain:
		text = string(data)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}
