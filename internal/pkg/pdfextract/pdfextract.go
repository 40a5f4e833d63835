package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrEmptyDocument = errors.New("pdf has no extractable text")
	ErrTooLarge      = errors.New("pdf exceeds the upload limit")
)

type Options struct {
	// MaxBytes bounds the upload; zero means 10 MiB.
	MaxBytes int64
	// MaxChars truncates the extracted text; zero keeps everything.
	MaxChars int
}

// ExtractText reads a PDF from r and returns its plain text with runs of
// whitespace collapsed.
func ExtractText(r io.Reader, opts Options) (string, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	b, err := io.ReadAll(io.LimitReader(r, opts.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read pdf failed: %w", err)
	}
	if int64(len(b)) > opts.MaxBytes {
		return "", ErrTooLarge
	}
	if len(b) == 0 {
		return "", ErrEmptyDocument
	}

	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("open pdf failed: %w", err)
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text failed: %w", err)
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", fmt.Errorf("extract pdf text failed: %w", err)
	}

	text := strings.Join(strings.Fields(string(out)), " ")
	if text == "" {
		return "", ErrEmptyDocument
	}
	if opts.MaxChars > 0 {
		if runes := []rune(text); len(runes) > opts.MaxChars {
			text = string(runes[:opts.MaxChars])
		}
	}
	return text, nil
}
