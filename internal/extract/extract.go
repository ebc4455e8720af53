// Package extract pulls plain text out of uploaded documents.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Sentinel errors for extraction.
var (
	// ErrUnsupportedType indicates a file format corpusd cannot extract.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrNoText indicates the document contained no extractable text.
	ErrNoText = errors.New("no extractable text")
)

// Extractor extracts plain text from document bytes. The ingestion pipeline
// treats it as an external collaborator: extraction failures are validation
// errors and never reach the stores.
type Extractor interface {
	Extract(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// Default handles plain text, Markdown, HTML, PDF, and DOCX, dispatching on
// content type first and filename extension second.
type Default struct{}

// New returns the default extractor.
func New() *Default {
	return &Default{}
}

// Extract returns the document's text content, trimmed. It fails with
// ErrUnsupportedType for unknown formats and ErrNoText when extraction
// succeeds but yields nothing to index.
func (e *Default) Extract(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text, err := e.extract(filename, contentType, data)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrNoText, filename)
	}
	return text, nil
}

func (e *Default) extract(filename, contentType string, data []byte) (string, error) {
	// Content type, when supplied, wins over the extension.
	switch baseContentType(contentType) {
	case "text/plain", "text/markdown", "text/csv":
		return extractPlain(data)
	case "text/html":
		return extractHTML(data)
	case "application/pdf":
		return extractPDF(data)
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return extractDOCX(data)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".markdown", ".csv", ".log", "":
		return extractPlain(data)
	case ".html", ".htm":
		return extractHTML(data)
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDOCX(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filename)
	}
}

// baseContentType strips parameters like "; charset=utf-8".
func baseContentType(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// extractPlain validates the bytes as UTF-8, dropping invalid sequences.
func extractPlain(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
