package retriever

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/docrag/docrag/internal/rag"
	"github.com/docrag/docrag/internal/testutil"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return s.vector, s.err
}

type stubVectorSearcher struct {
	hits      []rag.RetrievedChunk
	err       error
	gotLimit  int
	collected string
}

func (s *stubVectorSearcher) Search(_ context.Context, collection string, _ []float32, limit int) ([]rag.RetrievedChunk, error) {
	s.collected = collection
	s.gotLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	if len(s.hits) > limit {
		return s.hits[:limit], nil
	}
	return s.hits, nil
}

type stubTextSearcher struct {
	hits     []rag.RetrievedChunk
	err      error
	gotLimit int
}

func (s *stubTextSearcher) SearchText(_ context.Context, _ uuid.UUID, _ string, limit int) ([]rag.RetrievedChunk, error) {
	s.gotLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	if len(s.hits) > limit {
		return s.hits[:limit], nil
	}
	return s.hits, nil
}

func hit(id uuid.UUID, text string, score float64) rag.RetrievedChunk {
	return rag.RetrievedChunk{ChunkID: id, AssetID: uuid.New(), Text: text, Score: score}
}

func newRetriever(t *testing.T, vectors VectorSearcher, texts TextSearcher, opts Options) *Retriever {
	t.Helper()
	r, err := New(&stubEmbedder{vector: []float32{1, 0}}, vectors, texts, opts, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func defaultOpts() Options {
	return Options{VectorWeight: 0.5, OverfetchFactor: 2}
}

func TestNew_Validation(t *testing.T) {
	embedder := &stubEmbedder{}
	tests := []struct {
		name string
		opts Options
	}{
		{"negative weight", Options{VectorWeight: -0.1, OverfetchFactor: 2}},
		{"weight above one", Options{VectorWeight: 1.1, OverfetchFactor: 2}},
		{"zero overfetch", Options{VectorWeight: 0.5, OverfetchFactor: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(embedder, &stubVectorSearcher{}, &stubTextSearcher{}, tt.opts, nil)
			if !errors.Is(err, rag.ErrValidation) {
				t.Errorf("New() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSearch_Validation(t *testing.T) {
	r := newRetriever(t, &stubVectorSearcher{}, &stubTextSearcher{}, defaultOpts())
	ctx := context.Background()

	if _, err := r.Search(ctx, uuid.New(), "", 5, false); !errors.Is(err, rag.ErrValidation) {
		t.Errorf("empty query error = %v, want ErrValidation", err)
	}
	if _, err := r.Search(ctx, uuid.New(), "   ", 5, false); !errors.Is(err, rag.ErrValidation) {
		t.Errorf("whitespace query error = %v, want ErrValidation", err)
	}
	for _, limit := range []int{0, -3} {
		if _, err := r.Search(ctx, uuid.New(), "q", limit, true); !errors.Is(err, rag.ErrValidation) {
			t.Errorf("limit %d error = %v, want ErrValidation", limit, err)
		}
	}
}

func TestSearch_VectorOnly(t *testing.T) {
	a, b := hit(uuid.New(), "a", 0.9), hit(uuid.New(), "b", 0.7)
	vectors := &stubVectorSearcher{hits: []rag.RetrievedChunk{a, b}}
	texts := &stubTextSearcher{hits: []rag.RetrievedChunk{hit(uuid.New(), "ignored", 5)}}
	r := newRetriever(t, vectors, texts, defaultOpts())

	kbID := uuid.New()
	res, err := r.Search(context.Background(), kbID, "query", 5, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Degraded || res.Advisory != "" {
		t.Errorf("vector-only result flagged degraded: %+v", res)
	}
	if len(res.Chunks) != 2 || res.Chunks[0].Score != 0.9 {
		t.Errorf("chunks = %+v, want raw cosine ordering", res.Chunks)
	}
	if vectors.gotLimit != 5 {
		t.Errorf("vector search limit = %d, want 5 (no overfetch)", vectors.gotLimit)
	}
	if texts.gotLimit != 0 {
		t.Error("text search ran in vector-only mode")
	}
	if want := rag.CollectionName(kbID); vectors.collected != want {
		t.Errorf("searched collection %q, want %q", vectors.collected, want)
	}
}

func TestSearch_NeverIndexedKnowledgeBaseIsEmpty(t *testing.T) {
	vectors := &stubVectorSearcher{err: fmt.Errorf("%w: collection missing", rag.ErrNotFound)}
	r := newRetriever(t, vectors, &stubTextSearcher{}, defaultOpts())

	res, err := r.Search(context.Background(), uuid.New(), "query", 5, true)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Chunks) != 0 || res.Degraded {
		t.Errorf("result = %+v, want empty non-degraded", res)
	}
}

func TestSearch_EmbeddingFailurePropagates(t *testing.T) {
	embedder := &stubEmbedder{err: fmt.Errorf("%w: quota exhausted", rag.ErrEmbedding)}
	r, err := New(embedder, &stubVectorSearcher{}, &stubTextSearcher{}, defaultOpts(), testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Search(context.Background(), uuid.New(), "query", 5, true); !errors.Is(err, rag.ErrEmbedding) {
		t.Errorf("Search() error = %v, want ErrEmbedding", err)
	}
}

func TestSearch_HybridOverfetchesBothSides(t *testing.T) {
	vectors := &stubVectorSearcher{}
	texts := &stubTextSearcher{}
	r := newRetriever(t, vectors, texts, Options{VectorWeight: 0.5, OverfetchFactor: 3})

	if _, err := r.Search(context.Background(), uuid.New(), "query", 4, true); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if vectors.gotLimit != 12 || texts.gotLimit != 12 {
		t.Errorf("overfetch limits = %d/%d, want 12/12", vectors.gotLimit, texts.gotLimit)
	}
}

// A chunk found by both sides outranks chunks found by only one, and the
// merged list is deduplicated.
func TestSearch_HybridMergeFavorsBothSides(t *testing.T) {
	shared := hit(uuid.New(), "pricing details for the premium plan", 0.9)
	vectorOnly := hit(uuid.New(), "unrelated but semantically close", 0.95)
	vectorWeak := hit(uuid.New(), "barely related", 0.5)
	textOnly := hit(uuid.New(), "keyword match only", 3.0)
	textWeak := hit(uuid.New(), "stray keyword", 1.0)

	sharedText := shared
	sharedText.Score = 2.5

	vectors := &stubVectorSearcher{hits: []rag.RetrievedChunk{vectorOnly, shared, vectorWeak}}
	texts := &stubTextSearcher{hits: []rag.RetrievedChunk{textOnly, sharedText, textWeak}}
	r := newRetriever(t, vectors, texts, defaultOpts())

	res, err := r.Search(context.Background(), uuid.New(), "premium pricing", 10, true)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Chunks) != 5 {
		t.Fatalf("got %d chunks, want 5 deduplicated", len(res.Chunks))
	}
	if res.Chunks[0].ChunkID != shared.ChunkID {
		t.Errorf("top chunk = %q, want the both-sides chunk first", res.Chunks[0].Text)
	}
	for i := 1; i < len(res.Chunks); i++ {
		if res.Chunks[i].Score > res.Chunks[i-1].Score {
			t.Errorf("chunks not sorted by combined score at %d", i)
		}
	}
	for _, c := range res.Chunks {
		if c.Score < 0 || c.Score > 1 {
			t.Errorf("combined score %v outside [0, 1]", c.Score)
		}
	}
}

func TestSearch_HybridTruncatesToLimit(t *testing.T) {
	var vhits, thits []rag.RetrievedChunk
	for i := range 8 {
		vhits = append(vhits, hit(uuid.New(), "v", 0.9-float64(i)*0.05))
		thits = append(thits, hit(uuid.New(), "t", 4.0-float64(i)*0.2))
	}
	r := newRetriever(t, &stubVectorSearcher{hits: vhits}, &stubTextSearcher{hits: thits}, defaultOpts())

	res, err := r.Search(context.Background(), uuid.New(), "query", 5, true)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Chunks) != 5 {
		t.Errorf("got %d chunks, want 5", len(res.Chunks))
	}
}

func TestSearch_DegradesToVectorOnlyWhenTextSearchFails(t *testing.T) {
	a, b := hit(uuid.New(), "a", 0.9), hit(uuid.New(), "b", 0.7)
	vectors := &stubVectorSearcher{hits: []rag.RetrievedChunk{a, b}}
	texts := &stubTextSearcher{err: fmt.Errorf("%w: connection refused", rag.ErrStoreUnavailable)}
	r := newRetriever(t, vectors, texts, defaultOpts())

	res, err := r.Search(context.Background(), uuid.New(), "query", 1, true)
	if err != nil {
		t.Fatalf("Search() error = %v, degraded mode must not fail", err)
	}
	if !res.Degraded || res.Advisory == "" {
		t.Errorf("result = %+v, want degraded with advisory", res)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].ChunkID != a.ChunkID {
		t.Errorf("chunks = %+v, want top vector hit only", res.Chunks)
	}
}

func TestSearch_VectorWeightSkewsRanking(t *testing.T) {
	vectorBest := hit(uuid.New(), "vector favorite", 0.99)
	vectorWorst := hit(uuid.New(), "vector runner-up", 0.5)
	textBest := vectorWorst
	textBest.Score = 5.0
	textWorst := vectorBest
	textWorst.Score = 1.0

	vectors := &stubVectorSearcher{hits: []rag.RetrievedChunk{vectorBest, vectorWorst}}
	texts := &stubTextSearcher{hits: []rag.RetrievedChunk{textBest, textWorst}}

	// All weight on the dense side: its favorite must win.
	r := newRetriever(t, vectors, texts, Options{VectorWeight: 1, OverfetchFactor: 2})
	res, err := r.Search(context.Background(), uuid.New(), "query", 2, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunks[0].ChunkID != vectorBest.ChunkID {
		t.Errorf("with weight 1, top = %q, want vector favorite", res.Chunks[0].Text)
	}

	// All weight on the keyword side: its favorite must win.
	r = newRetriever(t, vectors, texts, Options{VectorWeight: 0, OverfetchFactor: 2})
	res, err = r.Search(context.Background(), uuid.New(), "query", 2, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunks[0].ChunkID != textBest.ChunkID {
		t.Errorf("with weight 0, top = %q, want keyword favorite", res.Chunks[0].Text)
	}
}
