// Package splitter turns extracted document text into ordered, overlapping
// chunks bounded by a configured maximum size.
//
// The splitter operates on runes, not bytes, so multi-byte text is never cut
// mid-character. Consecutive chunks share exactly Overlap runes so context
// survives chunk boundaries; concatenating each chunk's non-overlapping
// prefix reconstructs the original text losslessly.
package splitter

import (
	"fmt"
	"strings"
)

// Splitter produces overlapping text chunks with bounded size.
// Safe for concurrent use; it holds no mutable state.
type Splitter struct {
	size    int // Maximum chunk length in runes
	overlap int // Runes shared between consecutive chunks
}

// New creates a Splitter. size must be positive and overlap must be in
// [0, size); otherwise an error is returned since a non-advancing window
// would loop forever.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap %d must be in [0, %d)", overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split returns the ordered chunk sequence for text.
// Empty or all-whitespace input produces an empty sequence, not an error.
// Every chunk's length is <= the configured size; each chunk after the
// first starts overlap runes before the previous chunk's end.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= s.size {
		return []string{text}
	}

	step := s.size - s.overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Size returns the configured maximum chunk length in runes.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured overlap in runes.
func (s *Splitter) Overlap() int { return s.overlap }
