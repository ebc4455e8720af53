package vectorstore

// Chunk is one embedded window of a document. Chunks are owned by the vector
// store and are only ever written whole via Upsert, never mutated field by
// field.
type Chunk struct {
	// ID is globally unique and stable under re-upsert: the same document id
	// and chunk index always map to the same id (see ChunkID).
	ID string `json:"id"`

	// DocumentID is the owning document.
	DocumentID string `json:"documentId"`

	// Index is the zero-based position of this chunk within the document.
	Index int `json:"chunkIndex"`

	// Partition scopes search and deletion. Searches never cross partitions.
	Partition string `json:"partition"`

	// Text is the chunk's window of the document text.
	Text string `json:"text"`

	// Embedding is the dense vector for Text. An empty slice marks a chunk
	// whose text produced no embedding; such rows are excluded from search.
	Embedding []float32 `json:"embedding"`

	// CreatedAt is a Unix timestamp in seconds.
	CreatedAt int64 `json:"createdAt"`
}

// ScoredChunk pairs a chunk with its cosine similarity to a query vector.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}
