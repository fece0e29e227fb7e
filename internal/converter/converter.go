// Package converter turns source documents into plain text or markdown.
//
// Text formats are read directly. DOCX and PPTX are unpacked and their XML
// parts walked for text runs. PDF and the legacy binary Office formats are
// delegated to external tools (pdftotext, markitdown) through a CommandRunner
// so tests can substitute the process.
package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrConversion is returned when a supported file cannot be converted
var ErrConversion = errors.New("conversion failed")

// Format groups of supported extensions
var (
	TextExtensions   = []string{".txt", ".md", ".markdown"}
	OfficeExtensions = []string{".ppt", ".pptx", ".doc", ".docx"}
	PDFExtensions    = []string{".pdf"}
)

// Converter converts a file into text
type Converter interface {
	Convert(ctx context.Context, path string) (string, error)
}

// SupportedExtensions returns every extension the default converter handles
func SupportedExtensions() []string {
	exts := make([]string, 0, len(TextExtensions)+len(OfficeExtensions)+len(PDFExtensions))
	exts = append(exts, TextExtensions...)
	exts = append(exts, OfficeExtensions...)
	exts = append(exts, PDFExtensions...)
	return exts
}

// IsSupported reports whether path has a supported extension (case-insensitive)
func IsSupported(path string) bool {
	return slices.Contains(SupportedExtensions(), strings.ToLower(filepath.Ext(path)))
}

// Default dispatches on file extension
type Default struct {
	runner CommandRunner
}

// New creates the default converter. A nil runner executes real processes.
func New(runner CommandRunner) *Default {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Default{runner: runner}
}

// Convert returns the text of path. Unsupported extensions yield "" and no error.
func (d *Default) Convert(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		text string
		err  error
	)
	switch ext {
	case ".txt", ".md", ".markdown":
		text, err = readText(path)
	case ".docx":
		text, err = convertDOCX(path)
	case ".pptx":
		text, err = convertPPTX(path)
	case ".pdf":
		text, err = d.run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	case ".doc", ".ppt":
		text, err = d.run(ctx, "markitdown", path)
	default:
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return stripNUL(text), nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func (d *Default) run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := d.runner.Run(ctx, name, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrConversion, name, err)
	}
	return string(out), nil
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
