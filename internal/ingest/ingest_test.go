package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/docrag/docrag/internal/indexer"
	"github.com/docrag/docrag/internal/rag"
	"github.com/docrag/docrag/internal/splitter"
	"github.com/docrag/docrag/internal/testutil"
)

type fakeCatalog struct {
	assets  []rag.Asset
	chunks  map[uuid.UUID][]rag.Chunk // keyed by asset
	deletes int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{chunks: make(map[uuid.UUID][]rag.Chunk)}
}

func (f *fakeCatalog) CreateAsset(_ context.Context, asset rag.Asset) (rag.Asset, error) {
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	f.assets = append(f.assets, asset)
	return asset, nil
}

func (f *fakeCatalog) DeleteChunksByAsset(_ context.Context, assetID uuid.UUID) (int64, error) {
	n := int64(len(f.chunks[assetID]))
	delete(f.chunks, assetID)
	f.deletes++
	return n, nil
}

func (f *fakeCatalog) InsertChunks(_ context.Context, chunks []rag.Chunk) (int64, error) {
	f.chunks[chunks[0].AssetID] = append([]rag.Chunk(nil), chunks...)
	return int64(len(chunks)), nil
}

type fakeIndexer struct {
	indexed []rag.Chunk
	vectors map[uuid.UUID]uuid.UUID // vector ID -> asset ID
	err     error
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{vectors: make(map[uuid.UUID]uuid.UUID)}
}

func (f *fakeIndexer) IndexChunks(_ context.Context, _ rag.KnowledgeBase, chunks []rag.Chunk, _ indexer.Options) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.indexed = append(f.indexed, chunks...)
	for _, c := range chunks {
		f.vectors[c.ID] = c.AssetID
	}
	return len(chunks), nil
}

func (f *fakeIndexer) PruneAssetVectors(_ context.Context, _, assetID uuid.UUID, keep []uuid.UUID) (int64, error) {
	keepSet := make(map[uuid.UUID]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}
	var removed int64
	for id, owner := range f.vectors {
		if owner == assetID && !keepSet[id] {
			delete(f.vectors, id)
			removed++
		}
	}
	return removed, nil
}

func newService(t *testing.T, catalog Catalog, ix ChunkIndexer) *Service {
	t.Helper()
	split, err := splitter.New(50, 10)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := New(catalog, ix, split, t.TempDir(), testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestSaveUpload(t *testing.T) {
	catalog := newFakeCatalog()
	svc := newService(t, catalog, newFakeIndexer())
	kb := rag.KnowledgeBase{ID: uuid.New(), Name: "docs"}

	asset, err := svc.SaveUpload(context.Background(), kb, "notes.txt", strings.NewReader("file body"))
	if err != nil {
		t.Fatalf("SaveUpload() error = %v", err)
	}

	if asset.Name != "notes.txt" || asset.Type != ".txt" || asset.Size != int64(len("file body")) {
		t.Errorf("asset = %+v", asset)
	}
	content, err := os.ReadFile(asset.Path)
	if err != nil || string(content) != "file body" {
		t.Errorf("stored file = %q, %v", content, err)
	}
	if !strings.HasSuffix(filepath.Base(asset.Path), "_notes.txt") {
		t.Errorf("stored name %q lacks original suffix", asset.Path)
	}
	if filepath.Base(filepath.Dir(asset.Path)) != kb.ID.String() {
		t.Errorf("upload not under knowledge base directory: %s", asset.Path)
	}
}

func TestSaveUpload_UnsupportedFormat(t *testing.T) {
	svc := newService(t, newFakeCatalog(), newFakeIndexer())
	kb := rag.KnowledgeBase{ID: uuid.New()}

	_, err := svc.SaveUpload(context.Background(), kb, "report.pdf", strings.NewReader("%PDF"))
	if !errors.Is(err, rag.ErrUnsupportedFormat) {
		t.Errorf("SaveUpload(.pdf) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestSaveUpload_StripsDirectoryFromName(t *testing.T) {
	catalog := newFakeCatalog()
	svc := newService(t, catalog, newFakeIndexer())
	kb := rag.KnowledgeBase{ID: uuid.New()}

	asset, err := svc.SaveUpload(context.Background(), kb, "../../etc/passwd.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("SaveUpload() error = %v", err)
	}
	if asset.Name != "passwd.txt" {
		t.Errorf("asset name = %q, want path stripped", asset.Name)
	}
}

func TestProcessAsset(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog()
	ix := newFakeIndexer()
	svc := newService(t, catalog, ix)
	kb := rag.KnowledgeBase{ID: uuid.New()}

	text := strings.Repeat("all work and no play makes jack a dull boy. ", 10)
	asset, err := svc.SaveUpload(ctx, kb, "novel.txt", strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}

	chunkCount, indexed, err := svc.ProcessAsset(ctx, kb, asset, indexer.Options{})
	if err != nil {
		t.Fatalf("ProcessAsset() error = %v", err)
	}
	if chunkCount == 0 || indexed != chunkCount {
		t.Errorf("chunks = %d, indexed = %d", chunkCount, indexed)
	}

	stored := catalog.chunks[asset.ID]
	if len(stored) != chunkCount {
		t.Fatalf("stored %d chunks, want %d", len(stored), chunkCount)
	}
	for i, c := range stored {
		if c.Ordinal != int32(i+1) {
			t.Errorf("chunk %d ordinal = %d", i, c.Ordinal)
		}
		if want := rag.NewChunkID(asset.ID, c.Ordinal, c.Text); c.ID != want {
			t.Errorf("chunk %d has non-deterministic ID", i)
		}
		if c.Metadata["source"] != "novel.txt" {
			t.Errorf("chunk %d metadata = %v", i, c.Metadata)
		}
	}
}

func TestProcessAsset_ReplacesPreviousChunks(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog()
	svc := newService(t, catalog, newFakeIndexer())
	kb := rag.KnowledgeBase{ID: uuid.New()}

	asset, err := svc.SaveUpload(ctx, kb, "doc.txt", strings.NewReader(strings.Repeat("words ", 40)))
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.ProcessAsset(ctx, kb, asset, indexer.Options{}); err != nil {
		t.Fatal(err)
	}
	first := len(catalog.chunks[asset.ID])

	if _, _, err := svc.ProcessAsset(ctx, kb, asset, indexer.Options{SkipDuplicates: true}); err != nil {
		t.Fatal(err)
	}
	if got := len(catalog.chunks[asset.ID]); got != first {
		t.Errorf("chunks after reprocess = %d, want %d (replaced, not appended)", got, first)
	}
	if catalog.deletes != 2 {
		t.Errorf("deletes = %d, want 2", catalog.deletes)
	}
}

func TestProcessAsset_EmptyFileIsNoop(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog()
	ix := newFakeIndexer()
	svc := newService(t, catalog, ix)
	kb := rag.KnowledgeBase{ID: uuid.New()}

	asset, err := svc.SaveUpload(ctx, kb, "empty.txt", strings.NewReader("   \n"))
	if err != nil {
		t.Fatal(err)
	}

	chunkCount, indexed, err := svc.ProcessAsset(ctx, kb, asset, indexer.Options{})
	if err != nil || chunkCount != 0 || indexed != 0 {
		t.Errorf("ProcessAsset(empty) = %d, %d, %v, want 0, 0, nil", chunkCount, indexed, err)
	}
	if len(ix.indexed) != 0 {
		t.Errorf("indexer received %d chunks for empty file", len(ix.indexed))
	}
}

func TestIngestDirectory(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog()
	ix := newFakeIndexer()
	svc := newService(t, catalog, ix)
	kb := rag.KnowledgeBase{ID: uuid.New()}

	dir := t.TempDir()
	files := map[string]string{
		"readme.md":        "# Title\nSome markdown documentation body.",
		"guide.txt":        strings.Repeat("usage instructions ", 20),
		"binary.bin":       "\x00\x01\x02",
		"ignored/skip.txt": "should never be read",
		".gitignore":       "ignored/\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	result, err := svc.IngestDirectory(ctx, kb, dir, indexer.Options{})
	if err != nil {
		t.Fatalf("IngestDirectory() error = %v", err)
	}

	if result.FilesAdded != 2 {
		t.Errorf("FilesAdded = %d, want 2 (readme.md, guide.txt)", result.FilesAdded)
	}
	// binary.bin, .gitignore and the ignored/ subtree
	if result.FilesSkipped < 2 {
		t.Errorf("FilesSkipped = %d, want >= 2", result.FilesSkipped)
	}
	if result.FilesFailed != 0 {
		t.Errorf("FilesFailed = %d, want 0", result.FilesFailed)
	}
	if result.ChunksIndexed == 0 {
		t.Error("ChunksIndexed = 0, want > 0")
	}
	if len(catalog.assets) != 2 {
		t.Errorf("assets created = %d, want 2", len(catalog.assets))
	}
	for _, c := range ix.indexed {
		if strings.Contains(c.Text, "should never be read") {
			t.Error("gitignored file was indexed")
		}
	}
}

func TestProcessAsset_RejectsPathOutsideDataDir(t *testing.T) {
	catalog := newFakeCatalog()
	svc := newService(t, catalog, newFakeIndexer())
	kb := rag.KnowledgeBase{ID: uuid.New(), Name: "docs"}

	outside := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(outside, []byte("not yours"), 0o640); err != nil {
		t.Fatal(err)
	}
	asset := rag.Asset{
		ID:              uuid.New(),
		KnowledgeBaseID: kb.ID,
		Name:            "secret.txt",
		Type:            ".txt",
		Path:            outside,
	}

	_, _, err := svc.ProcessAsset(context.Background(), kb, asset, indexer.Options{})
	if !errors.Is(err, rag.ErrValidation) {
		t.Fatalf("ProcessAsset() error = %v, want ErrValidation", err)
	}
}

func TestProcessAsset_PrunesStaleVectorsOnContentChange(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog()
	ix := newFakeIndexer()
	svc := newService(t, catalog, ix)
	kb := rag.KnowledgeBase{ID: uuid.New()}

	asset, err := svc.SaveUpload(ctx, kb, "handbook.txt",
		strings.NewReader(strings.Repeat("original policy text ", 30)))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.ProcessAsset(ctx, kb, asset, indexer.Options{SkipDuplicates: true}); err != nil {
		t.Fatal(err)
	}

	// Rewrite the stored file and re-process: the index must end up holding
	// exactly the new split, not the union of both splits.
	if err := os.WriteFile(asset.Path, []byte(strings.Repeat("revised policy text ", 35)), 0o640); err != nil {
		t.Fatal(err)
	}
	chunkCount, _, err := svc.ProcessAsset(ctx, kb, asset, indexer.Options{SkipDuplicates: true})
	if err != nil {
		t.Fatal(err)
	}

	if len(catalog.chunks[asset.ID]) != chunkCount {
		t.Fatalf("stored %d chunks, want %d", len(catalog.chunks[asset.ID]), chunkCount)
	}
	if len(ix.vectors) != chunkCount {
		t.Errorf("vector count = %d, want %d (one per current chunk)", len(ix.vectors), chunkCount)
	}
	for _, c := range catalog.chunks[asset.ID] {
		if _, ok := ix.vectors[c.ID]; !ok {
			t.Errorf("chunk %s has no vector", c.ID)
		}
	}
}

func TestProcessAsset_UnchangedContentKeepsVectors(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog()
	ix := newFakeIndexer()
	svc := newService(t, catalog, ix)
	kb := rag.KnowledgeBase{ID: uuid.New()}

	asset, err := svc.SaveUpload(ctx, kb, "stable.txt",
		strings.NewReader(strings.Repeat("unchanging content ", 30)))
	if err != nil {
		t.Fatal(err)
	}
	chunkCount, _, err := svc.ProcessAsset(ctx, kb, asset, indexer.Options{SkipDuplicates: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.ProcessAsset(ctx, kb, asset, indexer.Options{SkipDuplicates: true}); err != nil {
		t.Fatal(err)
	}

	if len(ix.vectors) != chunkCount {
		t.Errorf("vector count after reprocess = %d, want %d", len(ix.vectors), chunkCount)
	}
}
