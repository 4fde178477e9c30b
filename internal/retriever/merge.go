package retriever

import (
	"sort"

	"github.com/google/uuid"

	"github.com/docrag/docrag/internal/rag"
)

// candidate accumulates a chunk's contribution from both search sides.
type candidate struct {
	chunk    rag.RetrievedChunk
	score    float64
	inVector bool
	inText   bool
}

// mergeHybrid combines the two ranked lists into one deduplicated ranking.
//
// Scores from each side live on different scales (cosine similarity versus
// ts_rank), so each list is min-max normalized to [0, 1] independently
// before weighting. A chunk appearing in both lists gets both weighted
// contributions; at equal combined scores, chunks found by both sides rank
// ahead of single-side hits, with chunk ID as the final deterministic
// tie-break.
func mergeHybrid(vectorHits, textHits []rag.RetrievedChunk, vectorWeight float64) []rag.RetrievedChunk {
	vectorNorm := normalize(vectorHits)
	textNorm := normalize(textHits)
	textWeight := 1 - vectorWeight

	merged := make(map[uuid.UUID]*candidate, len(vectorHits)+len(textHits))
	for i, h := range vectorHits {
		merged[h.ChunkID] = &candidate{
			chunk:    h,
			score:    vectorWeight * vectorNorm[i],
			inVector: true,
		}
	}
	for i, h := range textHits {
		if c, ok := merged[h.ChunkID]; ok {
			c.score += textWeight * textNorm[i]
			c.inText = true
			continue
		}
		merged[h.ChunkID] = &candidate{
			chunk:  h,
			score:  textWeight * textNorm[i],
			inText: true,
		}
	}

	candidates := make([]*candidate, 0, len(merged))
	for _, c := range merged {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		aBoth := a.inVector && a.inText
		bBoth := b.inVector && b.inText
		if aBoth != bBoth {
			return aBoth
		}
		return a.chunk.ChunkID.String() < b.chunk.ChunkID.String()
	})

	result := make([]rag.RetrievedChunk, len(candidates))
	for i, c := range candidates {
		result[i] = c.chunk
		result[i].Score = c.score
	}
	return result
}

// normalize min-max scales the hits' scores to [0, 1]. A constant list
// (including a single hit) maps to all ones: every element is the best the
// list has to offer.
func normalize(hits []rag.RetrievedChunk) []float64 {
	if len(hits) == 0 {
		return nil
	}

	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}

	norm := make([]float64, len(hits))
	if hi == lo {
		for i := range norm {
			norm[i] = 1
		}
		return norm
	}
	for i, h := range hits {
		norm[i] = (h.Score - lo) / (hi - lo)
	}
	return norm
}
