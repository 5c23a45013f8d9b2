// Package extract turns uploaded report payloads into plain text.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var pdfMagic = []byte("%PDF-")

// Extractor extracts plain text from report payloads.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether name has an extension the extractor understands.
func Supported(name string) bool {
	switch formatOf(name) {
	case ".pdf", ".xlsx", ".txt", ".md":
		return true
	}
	return false
}

// Extract reads r fully and returns its text, dispatching on the extension of name.
// Content under a name without a supported extension is sniffed for the PDF header.
// Failures are returned as *ExtractionError.
func (e *Extractor) Extract(r io.Reader, name string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", name, err)
	}
	return e.ExtractBytes(content, name)
}

// ExtractFile reads the file at path and returns its text content.
func (e *Extractor) ExtractFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Base(path))
}

// ExtractBytes extracts text from content based on the extension of name.
func (e *Extractor) ExtractBytes(content []byte, name string) (string, error) {
	format := formatOf(name)
	if !Supported(name) && bytes.HasPrefix(content, pdfMagic) {
		format = ".pdf"
	}
	switch format {
	case ".pdf":
		if len(content) == 0 {
			return "", corrupt(name, format, nil)
		}
		text, err := extractPDF(content)
		if err != nil {
			return "", corrupt(name, format, err)
		}
		return text, nil
	case ".xlsx":
		if len(content) == 0 {
			return "", corrupt(name, format, nil)
		}
		text, err := extractExcel(content)
		if err != nil {
			return "", corrupt(name, format, err)
		}
		return text, nil
	case ".txt", ".md":
		return extractPlain(content), nil
	default:
		return "", unsupported(name, format)
	}
}

func formatOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
