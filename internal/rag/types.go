package rag

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// KnowledgeBase is a named collection of documents and their derived chunks,
// scoped to one owner.
type KnowledgeBase struct {
	ID        uuid.UUID
	Name      string
	DirPath   string // Directory holding the knowledge base's uploaded files
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Asset is one uploaded source document belonging to a knowledge base.
type Asset struct {
	ID              uuid.UUID
	KnowledgeBaseID uuid.UUID
	Name            string
	Type            string // File extension including the dot, e.g. ".txt"
	Size            int64
	Path            string
	CreatedAt       time.Time
}

// Chunk is a bounded slice of an asset's extracted text.
// Chunks are created in bulk by the indexing pipeline and never mutated
// after creation; re-indexing replaces them.
//
// Ordinal is the 1-based position within the source document. Ordinals are
// unique and contiguous within one asset.
type Chunk struct {
	ID              uuid.UUID
	AssetID         uuid.UUID
	KnowledgeBaseID uuid.UUID // Denormalized for scoped search
	Ordinal         int32
	Text            string
	Metadata        map[string]string
	CreatedAt       time.Time
}

// VectorPayload is the denormalized data stored alongside each embedding so
// a similarity hit can be turned back into a chunk without a second store
// lookup.
type VectorPayload struct {
	Text            string    `json:"text"`
	AssetID         uuid.UUID `json:"asset_id"`
	KnowledgeBaseID uuid.UUID `json:"knowledge_base_id"`
	Ordinal         int32     `json:"chunk_order"`
}

// VectorRecord is the vector-index projection of a Chunk. The ID matches the
// chunk's ID exactly (1:1).
type VectorRecord struct {
	ID      uuid.UUID
	Vector  []float32
	Payload VectorPayload
}

// Conversation roles for ChatMessage.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one prior turn of a conversation, passed along with a
// question so answers can build on what was already said.
type ChatMessage struct {
	Role string // RoleUser or RoleAssistant
	Text string
}

// RetrievedChunk is a single search hit. Score semantics depend on the
// search mode: raw cosine similarity for vector-only search, a combined
// normalized score in [0,1] for hybrid search.
type RetrievedChunk struct {
	ChunkID uuid.UUID
	AssetID uuid.UUID
	Text    string
	Score   float64
}

// CollectionName derives the vector-index collection name for a knowledge
// base. The mapping is deterministic so every component addressing the same
// knowledge base lands in the same collection.
func CollectionName(knowledgeBaseID uuid.UUID) string {
	return "kb_collection_" + knowledgeBaseID.String()
}

// Namespace for deterministic chunk IDs (UUIDv5).
var chunkNamespace = uuid.MustParse("8b5a9f0e-3c41-4a6e-9d2b-7f1c5e8a0d64")

// NewChunkID derives a chunk's identity from its asset, position and
// content. Re-splitting unchanged text yields the same IDs, which is what
// lets the indexing pipeline skip chunks that are already embedded.
func NewChunkID(assetID uuid.UUID, ordinal int32, text string) uuid.UUID {
	name := fmt.Sprintf("%s/%d/%s", assetID, ordinal, text)
	return uuid.NewSHA1(chunkNamespace, []byte(name))
}
