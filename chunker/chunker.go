// Package chunker splits extracted document text into overlapping windows.
package chunker

import (
	"fmt"
	"strings"

	"github.com/poiesic/policyrag/core"
)

// Default window parameters used by ingestion.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Validate checks that size and overlap describe a window that always advances.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrValidation, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", core.ErrValidation, size, overlap)
	}
	return nil
}

// Chunk splits text into trimmed, non-empty chunks of at most size runes.
//
// A window that does not reach the end of the text is cut after the last '.'
// or '\n' it contains, provided that breakpoint lies past the window's
// midpoint; otherwise the window is cut at its boundary. Consecutive chunks
// share overlap runes.
func Chunk(text string, size, overlap int) ([]string, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	var chunks []string
	start := 0
	for start < len(runes) {
		end := min(start+size, len(runes))
		if end == len(runes) {
			chunks = appendTrimmed(chunks, runes[start:end])
			break
		}

		cut := end
		next := end - overlap
		if bp := lastBreakpoint(runes[start:end]); bp >= 0 && start+bp > start+size/2 {
			cut = start + bp + 1
			next = cut - overlap
		}
		chunks = appendTrimmed(chunks, runes[start:cut])

		// A breakpoint close to the midpoint with a large overlap would not
		// advance. Such windows restart at the cut and share no runes.
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks, nil
}

func lastBreakpoint(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' || window[i] == '\n' {
			return i
		}
	}
	return -1
}

func appendTrimmed(chunks []string, span []rune) []string {
	if s := strings.TrimSpace(string(span)); s != "" {
		return append(chunks, s)
	}
	return chunks
}
