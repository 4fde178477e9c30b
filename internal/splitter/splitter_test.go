package splitter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docrag/docrag/internal/rag"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 100, 20, false},
		{"zero overlap", 100, 0, false},
		{"zero size", 0, 0, true},
		{"negative overlap", 100, -1, true},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 150, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d, %d) error = %v, wantErr %v", tt.size, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestSplit_Empty(t *testing.T) {
	s, _ := New(100, 20)

	for _, input := range []string{"", "   ", "\n\t\n"} {
		if got := s.Split(input); len(got) != 0 {
			t.Errorf("Split(%q) = %d chunks, want 0", input, len(got))
		}
	}
}

func TestSplit_ShortInputSingleChunk(t *testing.T) {
	s, _ := New(100, 20)

	chunks := s.Split("short text")
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Errorf("Split() = %v, want single unmodified chunk", chunks)
	}
}

func TestSplit_BoundedSize(t *testing.T) {
	s, _ := New(50, 10)
	text := strings.Repeat("abcdefghij", 30) // 300 runes

	for i, c := range s.Split(text) {
		if n := len([]rune(c)); n > 50 {
			t.Errorf("chunk %d has %d runes, want <= 50", i, n)
		}
	}
}

// Consecutive chunks must overlap by exactly the configured amount; the
// last chunk may be shorter.
func TestSplit_ExactOverlap(t *testing.T) {
	s, _ := New(50, 10)
	text := strings.Repeat("0123456789", 23) // 230 runes

	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])

		tail := string(prev[len(prev)-10:])
		n := 10
		if len(cur) < n {
			n = len(cur)
		}
		head := string(cur[:n])
		if !strings.HasPrefix(tail, head) && tail != head {
			t.Errorf("chunks %d/%d do not share a 10-rune overlap: %q vs %q", i-1, i, tail, head)
		}
	}
}

// Concatenating each chunk minus its overlap prefix must reproduce the input.
func TestSplit_LosslessReconstruction(t *testing.T) {
	s, _ := New(40, 15)
	text := "The quick brown fox jumps over the lazy dog. " +
		"Pack my box with five dozen liquor jugs. " +
		"How vexingly quick daft zebras jump!"

	chunks := s.Split(text)

	var rebuilt strings.Builder
	for i, c := range chunks {
		runes := []rune(c)
		if i == 0 {
			rebuilt.WriteString(c)
			continue
		}
		rebuilt.WriteString(string(runes[15:]))
	}

	if rebuilt.String() != text {
		t.Errorf("reconstruction mismatch:\ngot  %q\nwant %q", rebuilt.String(), text)
	}
}

func TestSplit_MultiByteSafe(t *testing.T) {
	s, _ := New(10, 3)
	text := strings.Repeat("héllo wörld ", 10)

	for i, c := range s.Split(text) {
		if !strings.Contains(text, c) {
			t.Errorf("chunk %d %q is not a substring of the input (broken rune?)", i, c)
		}
	}
}

func TestExtractText_PlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello extraction"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := ExtractText(context.Background(), []Extractor{PlainTextExtractor{}}, path, ".txt")
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if got != "hello extraction" {
		t.Errorf("ExtractText() = %q", got)
	}
}

func TestExtractText_UnsupportedFormat(t *testing.T) {
	_, err := ExtractText(context.Background(), []Extractor{PlainTextExtractor{}}, "/tmp/x.xlsx", ".xlsx")
	if !errors.Is(err, rag.ErrUnsupportedFormat) {
		t.Errorf("ExtractText() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtractText_CaseInsensitiveType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "README.MD")
	if err := os.WriteFile(path, []byte("# heading"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := ExtractText(context.Background(), []Extractor{PlainTextExtractor{}}, path, ".MD")
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if got != "# heading" {
		t.Errorf("ExtractText() = %q", got)
	}
}
