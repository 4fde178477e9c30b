// Package rag defines the shared domain model for the retrieval pipeline.
//
// The package holds the entities that flow between the chunk store, the
// vector index, the indexing pipeline and the hybrid retriever:
//
//   - KnowledgeBase: a named collection of documents owned by one user
//   - Asset: one uploaded source document
//   - Chunk: a bounded slice of an asset's extracted text, the unit of retrieval
//   - VectorRecord: the vector-index projection of a Chunk (1:1 by ID)
//   - RetrievedChunk: a search hit with its relevance score
//
// It also defines the error taxonomy used across the core. Errors are
// sentinel values checked with errors.Is, wrapped with fmt.Errorf("%w")
// at each layer so callers can classify failures without string matching.
//
// # Ownership
//
// A KnowledgeBase exclusively owns its Assets and Chunks; deleting it
// cascades to both. Chunk and VectorRecord are two projections of the same
// logical entity kept in two stores for different query capabilities
// (keyword vs. vector); the indexing pipeline keeps them consistent.
package rag
