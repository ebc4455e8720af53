// Package chunk splits document text into overlapping windows for embedding.
package chunk

import (
	"fmt"
	"strings"
)

// Defaults tuned for embedding models with a few thousand tokens of context.
const (
	DefaultSize    = 3500
	DefaultOverlap = 600
)

// Splitter produces consecutive windows of at most Size characters, each
// window after the first sharing up to Overlap characters with its
// predecessor. Size and Overlap count code points, not bytes, so a window
// boundary never lands inside a multi-byte rune.
//
// Splitting is a pure function of the input: the same text always yields the
// same windows, which re-ingestion relies on for idempotent chunk ids.
type Splitter struct {
	Size    int
	Overlap int
}

// NewSplitter returns a Splitter after validating the window parameters.
// Overlap >= Size is rejected: the start clamp would still make progress, but
// it is a misconfiguration, not something to silently patch.
func NewSplitter(size, overlap int) (Splitter, error) {
	if size <= 0 {
		return Splitter{}, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return Splitter{}, fmt.Errorf("chunk overlap cannot be negative, got %d", overlap)
	}
	if overlap >= size {
		return Splitter{}, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size)
	}
	return Splitter{Size: size, Overlap: overlap}, nil
}

// Split returns the overlapping windows of text. Leading and trailing
// whitespace is trimmed first; empty or whitespace-only input yields nil.
// The final window may be shorter than Size.
func (s Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	n := len(runes)
	start := 0
	for start < n {
		end := start + s.Size
		if end > n {
			end = n
		}
		chunks = append(chunks, string(runes[start:end]))
		if end >= n {
			break
		}
		start = end - s.Overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}
