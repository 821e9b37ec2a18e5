package models

import "time"

// Chunk is a bounded text segment of a memory file, embedded and indexed
// for hybrid retrieval. A file exclusively owns its chunks: re-indexing a
// file removes all prior chunks for that FilePath before inserting new ones.
type Chunk struct {
	// ID is "{relativePath}:{index}".
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	FilePath   string    `json:"file_path"`
	Index      int       `json:"index"`
	TokenCount int       `json:"token_count"`
	Section    string    `json:"section,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScoredChunk is a Chunk annotated with a retrieval score. The meaning of
// Score depends on which search produced it: cosine similarity for vector
// search, a positive BM25-style score (higher is better) for lexical
// search, or a normalized weighted sum for hybrid search.
type ScoredChunk struct {
	Chunk
	Score       float64 `json:"score"`
	VectorScore float64 `json:"vector_score,omitempty"`
	LexicalScore float64 `json:"lexical_score,omitempty"`
}
