// Package memory implements the hybrid retrieval layer (§4.B, §4.C):
// markdown-aware chunking, a vector + lexical index backed by one SQLite
// file, and a workspace indexer that tracks what has already been
// embedded.
package memory

import (
	"context"
	"fmt"

	"github.com/dinh2350/lunar/internal/memory/backend/sqlitevec"
	"github.com/dinh2350/lunar/internal/memory/embeddings"
	"github.com/dinh2350/lunar/pkg/models"
)

// defaultVectorWeight/defaultLexicalWeight are the hybrid-search blend
// weights (§4.B) used when NewIndex is given a zero weight pair; vector
// similarity is the stronger default signal for prose-heavy workspace
// content, with lexical scoring as a secondary boost for exact terms.
const (
	defaultVectorWeight  = 0.7
	defaultLexicalWeight = 0.3
)

// Index is the embedding-aware façade over the sqlite-backed store: it
// owns the embedding provider so callers pass plain text, not vectors.
type Index struct {
	backend  *sqlitevec.Backend
	embedder embeddings.Provider
	vectorW  float64
	lexicalW float64
}

// NewIndex builds an Index from a backend and embedding provider. A zero
// vectorWeight/lexicalWeight pair falls back to the package defaults.
func NewIndex(backend *sqlitevec.Backend, embedder embeddings.Provider, vectorWeight, lexicalWeight float64) *Index {
	if vectorWeight == 0 && lexicalWeight == 0 {
		vectorWeight, lexicalWeight = defaultVectorWeight, defaultLexicalWeight
	}
	return &Index{backend: backend, embedder: embedder, vectorW: vectorWeight, lexicalW: lexicalWeight}
}

// InsertChunks embeds and stores chunks, replacing any existing chunks
// with the same IDs.
func (ix *Index) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embeddings, err := ix.embedBatched(ctx, texts)
	if err != nil {
		return fmt.Errorf("memory: embed chunks: %w", err)
	}
	return ix.backend.InsertChunks(ctx, chunks, embeddings)
}

// embedBatched respects the provider's MaxBatchSize, issuing as many
// EmbedBatch calls as needed.
func (ix *Index) embedBatched(ctx context.Context, texts []string) ([][]float32, error) {
	maxBatch := ix.embedder.MaxBatchSize()
	if maxBatch <= 0 {
		maxBatch = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := start + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := ix.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// DeleteByFilePath removes every chunk for a file, e.g. before re-indexing
// it or when it is deleted from the workspace.
func (ix *Index) DeleteByFilePath(ctx context.Context, filePath string) error {
	return ix.backend.DeleteByFilePath(ctx, filePath)
}

// SearchVector embeds queryText and ranks chunks by cosine similarity.
func (ix *Index) SearchVector(ctx context.Context, queryText string, limit int) ([]models.ScoredChunk, error) {
	vec, err := ix.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	return ix.backend.SearchVector(ctx, vec, limit)
}

// SearchLexical ranks chunks with BM25-style scoring over queryText.
func (ix *Index) SearchLexical(ctx context.Context, queryText string, limit int) ([]models.ScoredChunk, error) {
	return ix.backend.SearchLexical(ctx, queryText, limit)
}

// HybridSearch blends vector and lexical results for queryText.
func (ix *Index) HybridSearch(ctx context.Context, queryText string, limit int) ([]models.ScoredChunk, error) {
	vec, err := ix.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	return ix.backend.HybridSearch(ctx, vec, queryText, limit, ix.vectorW, ix.lexicalW)
}

// Count returns the number of indexed chunks.
func (ix *Index) Count(ctx context.Context) (int64, error) {
	return ix.backend.Count(ctx)
}
