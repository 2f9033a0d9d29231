package extract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// pdfText returns "" with a nil error when the PDF carries no text layer.
func pdfText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf failed: %w", err)
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}
	out, err := io.ReadAll(io.LimitReader(plainReader, maxUncompressedBytes+1))
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}
	if int64(len(out)) > maxUncompressedBytes {
		return "", fmt.Errorf("pdf text: %w", ErrContentTooLarge)
	}
	return string(out), nil
}
