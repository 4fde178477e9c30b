package splitter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docrag/docrag/internal/rag"
)

// Extractor converts a stored document into plain text. Binary formats
// (PDF and friends) plug in here; the splitter itself only ever sees text.
type Extractor interface {
	// Extract returns the plain-text content of the file at path.
	// fileType is the lowercase extension including the dot, e.g. ".pdf".
	Extract(ctx context.Context, path, fileType string) (string, error)

	// Supports reports whether this extractor handles the given file type.
	Supports(fileType string) bool
}

// PlainTextExtractor reads UTF-8 text formats directly from disk.
type PlainTextExtractor struct{}

var plainTextTypes = map[string]bool{
	".txt": true,
	".md":  true,
}

// Supports reports whether fileType is a plain-text format.
func (PlainTextExtractor) Supports(fileType string) bool {
	return plainTextTypes[strings.ToLower(fileType)]
}

// Extract reads the file contents as-is.
func (PlainTextExtractor) Extract(_ context.Context, path, fileType string) (string, error) {
	if !plainTextTypes[strings.ToLower(fileType)] {
		return "", fmt.Errorf("%w: %s", rag.ErrUnsupportedFormat, fileType)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return string(content), nil
}

// ExtractText dispatches to the first extractor supporting the file type.
// An unrecognized type yields rag.ErrUnsupportedFormat, never a panic.
func ExtractText(ctx context.Context, extractors []Extractor, path, fileType string) (string, error) {
	fileType = strings.ToLower(fileType)
	for _, e := range extractors {
		if e.Supports(fileType) {
			return e.Extract(ctx, path, fileType)
		}
	}
	return "", fmt.Errorf("%w: %s", rag.ErrUnsupportedFormat, fileType)
}
