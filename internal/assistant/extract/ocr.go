package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// ocrLanguages are the tesseract language packs used for scanned documents:
// English plus Arabic, matching the languages the assistant accepts.
const ocrLanguages = "eng+ara"

// ocrText runs the tesseract CLI over an image and returns the recognized
// text.  Tesseract reads from a file, so the image is spooled to a temp file
// for the duration of the call.
func ocrText(ctx context.Context, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "assistant-ocr-*")
	if err != nil {
		return "", fmt.Errorf("extract: create temp image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("extract: write temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("extract: close temp image: %w", err)
	}

	cmd := exec.CommandContext(ctx, "tesseract", tmp.Name(), "stdout", "-l", ocrLanguages)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("extract: tesseract: %w (%s)", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return out.String(), nil
}
