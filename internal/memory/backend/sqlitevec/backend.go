// Package sqlitevec is the hybrid retrieval store: one SQLite file holding
// both the chunk/vector relation and the lexical term statistics used for
// BM25-style scoring, so the on-disk footprint stays a single opaque index
// database file.
package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dinh2350/lunar/pkg/models"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Backend is the sqlite-backed hybrid index: chunk content and metadata,
// a packed float32 embedding per chunk, and a lowercased token count used
// for lexical scoring.
type Backend struct {
	db        *sql.DB
	dimension int
}

// Config configures the backend.
type Config struct {
	Path      string // sqlite file path, ":memory:" for ephemeral/test use
	Dimension int    // embedding dimension, defaults to 768
}

// New opens (creating if needed) the index database file.
func New(cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 768
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: open database: %w", err)
	}

	b := &Backend{db: db, dimension: cfg.Dimension}
	if err := b.init(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) init() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			idx INTEGER NOT NULL,
			section TEXT,
			content TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			embedding BLOB,
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("sqlitevec: create chunks table: %w", err)
	}
	_, err = b.db.Exec(`CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path)`)
	if err != nil {
		return fmt.Errorf("sqlitevec: create file_path index: %w", err)
	}
	return nil
}

// InsertChunks upserts chunks with their embeddings, replacing any
// existing row of the same ID. One call is one transaction.
func (b *Backend) InsertChunks(ctx context.Context, chunks []models.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("sqlitevec: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitevec: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, file_path, idx, section, content, token_count, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlitevec: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := stmt.ExecContext(ctx, c.ID, c.FilePath, c.Index, c.Section, c.Content, c.TokenCount, encodeEmbedding(embeddings[i]), createdAt)
		if err != nil {
			return fmt.Errorf("sqlitevec: insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteByFilePath removes every chunk belonging to a file, used when a
// file is re-indexed or removed from the workspace.
func (b *Backend) DeleteByFilePath(ctx context.Context, filePath string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, filePath)
	if err != nil {
		return fmt.Errorf("sqlitevec: delete by file_path: %w", err)
	}
	return nil
}

// SearchVector ranks chunks by cosine similarity to queryEmbedding. This
// scans every row (brute force); acceptable at the workspace-index scale
// this component targets, and the sqlite-vec ANN extension is CGO-only and
// off the table for a pure-Go build.
func (b *Backend) SearchVector(ctx context.Context, queryEmbedding []float32, limit int) ([]models.ScoredChunk, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, file_path, idx, section, content, token_count, embedding, created_at FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: query chunks: %w", err)
	}
	defer rows.Close()

	var scored []models.ScoredChunk
	for rows.Next() {
		chunk, embedding, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		sim := cosineSimilarity(queryEmbedding, embedding)
		scored = append(scored, models.ScoredChunk{Chunk: chunk, VectorScore: float64(sim), Score: float64(sim)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// SearchLexical ranks chunks with a BM25-style score over queryText,
// tokenized the same way as indexing (strings.Fields, lowercased).
func (b *Backend) SearchLexical(ctx context.Context, queryText string, limit int) ([]models.ScoredChunk, error) {
	terms := tokenize(queryText)
	if len(terms) == 0 {
		return nil, nil
	}

	rows, err := b.db.QueryContext(ctx, `SELECT id, file_path, idx, section, content, token_count, embedding, created_at FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: query chunks: %w", err)
	}
	defer rows.Close()

	type doc struct {
		chunk models.Chunk
		freq  map[string]int
		len   int
	}
	var docs []doc
	var totalLen int
	for rows.Next() {
		chunk, _, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		tokens := tokenize(chunk.Content)
		freq := make(map[string]int, len(terms))
		for _, tok := range tokens {
			for _, term := range terms {
				if tok == term {
					freq[term]++
				}
			}
		}
		docs = append(docs, doc{chunk: chunk, freq: freq, len: len(tokens)})
		totalLen += len(tokens)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	avgLen := float64(totalLen) / float64(len(docs))

	df := make(map[string]int, len(terms))
	for _, d := range docs {
		for _, term := range terms {
			if d.freq[term] > 0 {
				df[term]++
			}
		}
	}

	const k1 = 1.5
	const b = 0.75
	n := float64(len(docs))

	var scored []models.ScoredChunk
	for _, d := range docs {
		var score float64
		for _, term := range terms {
			tf := float64(d.freq[term])
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[term])+0.5)/(float64(df[term])+0.5))
			denom := tf + k1*(1-b+b*float64(d.len)/avgLen)
			score += idf * (tf * (k1 + 1)) / denom
		}
		if score > 0 {
			scored = append(scored, models.ScoredChunk{Chunk: d.chunk, LexicalScore: score, Score: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// HybridSearch combines vector and lexical results by min-max normalizing
// each score set independently, then summing with the given weights.
// Ties (equal combined score) break by file path then chunk index, for a
// deterministic result order.
func (b *Backend) HybridSearch(ctx context.Context, queryEmbedding []float32, queryText string, limit int, vectorWeight, lexicalWeight float64) ([]models.ScoredChunk, error) {
	pool := limit * 4
	if pool < 20 {
		pool = 20
	}

	vectorResults, err := b.SearchVector(ctx, queryEmbedding, pool)
	if err != nil {
		return nil, err
	}
	lexicalResults, err := b.SearchLexical(ctx, queryText, pool)
	if err != nil {
		return nil, err
	}

	normalize(vectorResults, func(sc *models.ScoredChunk) *float64 { return &sc.VectorScore })
	normalize(lexicalResults, func(sc *models.ScoredChunk) *float64 { return &sc.LexicalScore })

	combined := make(map[string]*models.ScoredChunk, len(vectorResults)+len(lexicalResults))
	for i := range vectorResults {
		sc := vectorResults[i]
		combined[sc.ID] = &sc
	}
	for _, sc := range lexicalResults {
		if existing, ok := combined[sc.ID]; ok {
			existing.LexicalScore = sc.LexicalScore
		} else {
			c := sc
			combined[c.ID] = &c
		}
	}

	out := make([]models.ScoredChunk, 0, len(combined))
	for _, sc := range combined {
		sc.Score = vectorWeight*sc.VectorScore + lexicalWeight*sc.LexicalScore
		out = append(out, *sc)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		return out[i].Index < out[j].Index
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// normalize rescales the field selected by get to [0, 1] across results in
// place, min-max style. A degenerate range (a single result, or every
// result tied at the same value) normalizes to all-1 rather than all-0,
// since every result is equally the best match available.
func normalize(results []models.ScoredChunk, get func(*models.ScoredChunk) *float64) {
	if len(results) == 0 {
		return
	}
	min, max := *get(&results[0]), *get(&results[0])
	for i := range results {
		v := *get(&results[i])
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	span := max - min
	for i := range results {
		field := get(&results[i])
		if span == 0 {
			*field = 1
			continue
		}
		*field = (*field - min) / span
	}
}

// Count returns the number of indexed chunks.
func (b *Backend) Count(ctx context.Context) (int64, error) {
	var count int64
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close releases the underlying database handle.
func (b *Backend) Close() error {
	return b.db.Close()
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	return fields
}

func scanChunk(rows *sql.Rows) (models.Chunk, []byte, error) {
	var c models.Chunk
	var embedding []byte
	err := rows.Scan(&c.ID, &c.FilePath, &c.Index, &c.Section, &c.Content, &c.TokenCount, &embedding, &c.CreatedAt)
	if err != nil {
		return models.Chunk{}, nil, fmt.Errorf("sqlitevec: scan chunk: %w", err)
	}
	return c, embedding, nil
}

// encodeEmbedding packs a []float32 into bytes, 4 bytes per value, IEEE 754.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

// decodeEmbedding unpacks bytes produced by encodeEmbedding.
func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

// cosineSimilarity reports the cosine similarity between two vectors, 0
// when lengths mismatch or either vector is zero.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (sqrt32(normA) * sqrt32(normB))
}

func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 10; i++ {
		z = (z + x/z) / 2
	}
	return z
}
