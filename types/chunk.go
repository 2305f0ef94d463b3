package types

// Chunk is the atomic unit of indexed text. A chunk is immutable once
// created: its ID, text and embedding never change after indexing.
type Chunk struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float64      `json:"embedding,omitempty"`
	DocID     string         `json:"doc_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Document groups an ordered sequence of chunks extracted from one source.
type Document struct {
	ID       string         `json:"id"`
	ChunkIDs []string       `json:"chunk_ids"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
