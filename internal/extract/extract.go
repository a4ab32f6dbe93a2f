// Package extract reads reference text from the documents a run is grounded on.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ErrExtractionFailed is returned when no text can be read from a reference document.
var ErrExtractionFailed = errors.New("reference extraction failed")

// Extractor reads plain text and PDF documents. PDFs are converted with the
// pdftotext utility from poppler-utils.
type Extractor struct {
	pdftotext string
	logger    *zap.Logger
	run       func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewExtractor creates a new Extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{
		pdftotext: "pdftotext",
		logger:    logger,
		run:       runCommand,
	}
}

// Extract returns the text of the document at path. Supported formats are
// .txt (UTF-8) and .pdf, whose pages are prefixed with "--- Pagina N ---".
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt":
		return e.extractText(path)
	case ".pdf":
		return e.extractPDF(ctx, path)
	default:
		return "", fmt.Errorf("%w: unsupported format %q, use .pdf or .txt", ErrExtractionFailed, ext)
	}
}

func (e *Extractor) extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrExtractionFailed, path)
	}

	e.logger.Debug("text extracted", zap.String("path", path), zap.Int("bytes", len(data)))

	return string(data), nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (string, error) {
	out, err := e.run(ctx, e.pdftotext, "-enc", "UTF-8", path, "-")
	if err != nil {
		return "", fmt.Errorf("%w: pdftotext: %w", ErrExtractionFailed, err)
	}

	// pdftotext separates pages with a form feed.
	pages := strings.Split(string(out), "\f")

	var sb strings.Builder
	for i, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "--- Pagina %d ---\n", i+1)
		sb.WriteString(page)
	}

	e.logger.Debug("pdf extracted", zap.String("path", path), zap.Int("pages", len(pages)))

	return sb.String(), nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}
