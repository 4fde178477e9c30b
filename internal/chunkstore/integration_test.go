package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/docrag/docrag/internal/rag"
	"github.com/docrag/docrag/internal/testutil"
)

// Exercises the store against real PostgreSQL: catalog CRUD, cascade
// deletes, bulk chunk insert and full-text search ranking.
func TestStore_Postgres(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := New(db.Pool, testutil.DiscardLogger())

	kb, err := store.CreateKnowledgeBase(ctx, "manuals", "/data/manuals")
	if err != nil {
		t.Fatalf("CreateKnowledgeBase() error = %v", err)
	}

	t.Run("duplicate knowledge base name", func(t *testing.T) {
		_, err := store.CreateKnowledgeBase(ctx, "manuals", "")
		if !errors.Is(err, rag.ErrValidation) {
			t.Errorf("duplicate name error = %v, want ErrValidation", err)
		}
	})

	t.Run("lookup by id and name", func(t *testing.T) {
		got, err := store.GetKnowledgeBase(ctx, kb.ID)
		if err != nil || got.Name != "manuals" {
			t.Errorf("GetKnowledgeBase() = %+v, %v", got, err)
		}
		got, err = store.GetKnowledgeBaseByName(ctx, "manuals")
		if err != nil || got.ID != kb.ID {
			t.Errorf("GetKnowledgeBaseByName() = %+v, %v", got, err)
		}
		_, err = store.GetKnowledgeBase(ctx, uuid.New())
		if !errors.Is(err, rag.ErrNotFound) {
			t.Errorf("missing knowledge base error = %v, want ErrNotFound", err)
		}
	})

	asset, err := store.CreateAsset(ctx, rag.Asset{
		KnowledgeBaseID: kb.ID,
		Name:            "pricing.txt",
		Type:            ".txt",
		Size:            128,
		Path:            "/data/manuals/pricing.txt",
	})
	if err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}

	t.Run("duplicate asset name in same knowledge base", func(t *testing.T) {
		_, err := store.CreateAsset(ctx, rag.Asset{
			KnowledgeBaseID: kb.ID,
			Name:            "pricing.txt",
			Type:            ".txt",
		})
		if !errors.Is(err, rag.ErrValidation) {
			t.Errorf("duplicate asset error = %v, want ErrValidation", err)
		}
	})

	texts := []string{
		"Our premium plan costs forty dollars per month and includes support.",
		"The installation guide covers Linux and macOS setup steps.",
		"Pricing for the enterprise tier is negotiated per contract.",
	}
	chunks := make([]rag.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = rag.Chunk{
			ID:              uuid.New(),
			AssetID:         asset.ID,
			KnowledgeBaseID: kb.ID,
			Ordinal:         int32(i + 1),
			Text:            text,
			Metadata:        map[string]string{"source": asset.Name},
		}
	}

	inserted, err := store.InsertChunks(ctx, chunks)
	if err != nil {
		t.Fatalf("InsertChunks() error = %v", err)
	}
	if inserted != int64(len(chunks)) {
		t.Fatalf("InsertChunks() = %d, want %d", inserted, len(chunks))
	}

	t.Run("list preserves ordinal order and metadata", func(t *testing.T) {
		got, err := store.ListChunksByAsset(ctx, asset.ID)
		if err != nil {
			t.Fatalf("ListChunksByAsset() error = %v", err)
		}
		if len(got) != len(chunks) {
			t.Fatalf("got %d chunks, want %d", len(got), len(chunks))
		}
		for i, c := range got {
			if c.Ordinal != int32(i+1) {
				t.Errorf("chunk %d ordinal = %d", i, c.Ordinal)
			}
			if c.Metadata["source"] != asset.Name {
				t.Errorf("chunk %d metadata = %v", i, c.Metadata)
			}
		}
	})

	t.Run("count matches inserts", func(t *testing.T) {
		count, err := store.CountChunks(ctx, kb.ID)
		if err != nil || count != int64(len(chunks)) {
			t.Errorf("CountChunks() = %d, %v", count, err)
		}
	})

	t.Run("text search ranks matching chunks", func(t *testing.T) {
		hits, err := store.SearchText(ctx, kb.ID, "pricing plan cost", 10)
		if err != nil {
			t.Fatalf("SearchText() error = %v", err)
		}
		if len(hits) == 0 {
			t.Fatal("SearchText() returned no hits")
		}
		for i := 1; i < len(hits); i++ {
			if hits[i].Score > hits[i-1].Score {
				t.Errorf("hits not sorted by score: %v > %v at %d", hits[i].Score, hits[i-1].Score, i)
			}
		}
		for _, h := range hits {
			if h.AssetID != asset.ID {
				t.Errorf("hit %s has asset %s, want %s", h.ChunkID, h.AssetID, asset.ID)
			}
		}
	})

	t.Run("text search is scoped to the knowledge base", func(t *testing.T) {
		other, err := store.CreateKnowledgeBase(ctx, "empty-kb", "")
		if err != nil {
			t.Fatalf("CreateKnowledgeBase() error = %v", err)
		}
		hits, err := store.SearchText(ctx, other.ID, "pricing", 10)
		if err != nil {
			t.Fatalf("SearchText() error = %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("search in empty knowledge base returned %d hits", len(hits))
		}
	})

	t.Run("no match returns empty, not error", func(t *testing.T) {
		hits, err := store.SearchText(ctx, kb.ID, "zxqvbn nonexistent", 10)
		if err != nil {
			t.Fatalf("SearchText() error = %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("got %d hits, want 0", len(hits))
		}
	})

	t.Run("deleting asset cascades to chunks", func(t *testing.T) {
		victim, err := store.CreateAsset(ctx, rag.Asset{
			KnowledgeBaseID: kb.ID, Name: "temp.txt", Type: ".txt",
		})
		if err != nil {
			t.Fatalf("CreateAsset() error = %v", err)
		}
		_, err = store.InsertChunks(ctx, []rag.Chunk{{
			ID: uuid.New(), AssetID: victim.ID, KnowledgeBaseID: kb.ID, Ordinal: 1, Text: "ephemeral",
		}})
		if err != nil {
			t.Fatalf("InsertChunks() error = %v", err)
		}

		if err := store.DeleteAsset(ctx, victim.ID); err != nil {
			t.Fatalf("DeleteAsset() error = %v", err)
		}
		remaining, err := store.ListChunksByAsset(ctx, victim.ID)
		if err != nil {
			t.Fatalf("ListChunksByAsset() error = %v", err)
		}
		if len(remaining) != 0 {
			t.Errorf("cascade left %d chunks", len(remaining))
		}
	})

	t.Run("insert many chunks in one copy", func(t *testing.T) {
		bulk, err := store.CreateAsset(ctx, rag.Asset{
			KnowledgeBaseID: kb.ID, Name: "bulk.txt", Type: ".txt",
		})
		if err != nil {
			t.Fatalf("CreateAsset() error = %v", err)
		}
		const n = 500
		many := make([]rag.Chunk, n)
		for i := range many {
			many[i] = rag.Chunk{
				ID:              uuid.New(),
				AssetID:         bulk.ID,
				KnowledgeBaseID: kb.ID,
				Ordinal:         int32(i + 1),
				Text:            fmt.Sprintf("bulk chunk number %d", i+1),
			}
		}
		inserted, err := store.InsertChunks(ctx, many)
		if err != nil || inserted != n {
			t.Fatalf("InsertChunks() = %d, %v", inserted, err)
		}
		if _, err := store.DeleteChunksByAsset(ctx, bulk.ID); err != nil {
			t.Fatalf("DeleteChunksByAsset() error = %v", err)
		}
	})

	t.Run("deleting knowledge base cascades everything", func(t *testing.T) {
		if err := store.DeleteKnowledgeBase(ctx, kb.ID); err != nil {
			t.Fatalf("DeleteKnowledgeBase() error = %v", err)
		}
		if _, err := store.GetAsset(ctx, asset.ID); !errors.Is(err, rag.ErrNotFound) {
			t.Errorf("asset survived cascade: %v", err)
		}
		count, err := store.CountChunks(ctx, kb.ID)
		if err != nil || count != 0 {
			t.Errorf("CountChunks() after cascade = %d, %v", count, err)
		}
		if err := store.DeleteKnowledgeBase(ctx, kb.ID); !errors.Is(err, rag.ErrNotFound) {
			t.Errorf("second delete error = %v, want ErrNotFound", err)
		}
	})
}
