package memory

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dinh2350/lunar/pkg/models"
)

// ChunkConfig controls the markdown-aware chunker (§4.C): files are first
// split on headings of depth <= 3, then any resulting section over
// WordBudget words is further split into overlapping sub-chunks of
// WordBudget words with OverlapWords of trailing context repeated at the
// start of the next sub-chunk.
type ChunkConfig struct {
	WordBudget   int
	OverlapWords int
}

// DefaultChunkConfig matches the 400-word budget / 80-word overlap named
// in spec.md §3.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{WordBudget: 400, OverlapWords: 80}
}

var headingPattern = regexp.MustCompile(`^(#{1,3})\s+(.*)$`)

type section struct {
	heading string
	body    string
}

// ChunkMarkdown splits a markdown document's content into chunks rooted
// at filePath. Content before the first heading (or the whole file, if it
// has none) is its own section titled "".
func ChunkMarkdown(filePath, content string, cfg ChunkConfig) []models.Chunk {
	sections := splitSections(content)

	var chunks []models.Chunk
	idx := 0
	for _, sec := range sections {
		words := strings.Fields(sec.body)
		if len(words) == 0 {
			continue
		}
		if len(words) <= cfg.WordBudget {
			chunks = append(chunks, newChunk(filePath, idx, sec.heading, sec.body))
			idx++
			continue
		}
		for _, sub := range splitWords(words, cfg.WordBudget, cfg.OverlapWords) {
			chunks = append(chunks, newChunk(filePath, idx, sec.heading, sub))
			idx++
		}
	}
	return chunks
}

func newChunk(filePath string, index int, section, content string) models.Chunk {
	return models.Chunk{
		ID:         fmt.Sprintf("%s:%d", filePath, index),
		FilePath:   filePath,
		Index:      index,
		Section:    section,
		Content:    strings.TrimSpace(content),
		TokenCount: len(strings.Fields(content)),
	}
}

// splitSections breaks content at headings of depth 1-3, attaching each
// heading line's text to the section that follows it.
func splitSections(content string) []section {
	lines := strings.Split(content, "\n")

	var sections []section
	current := section{}
	hasContent := false

	flush := func() {
		if hasContent {
			sections = append(sections, current)
		}
		current = section{}
		hasContent = false
	}

	for _, line := range lines {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flush()
			current.heading = strings.TrimSpace(m[2])
			current.body = line + "\n"
			hasContent = true
			continue
		}
		current.body += line + "\n"
		if strings.TrimSpace(line) != "" {
			hasContent = true
		}
	}
	flush()
	return sections
}

// splitWords breaks a word slice into budget-sized windows, each
// overlapping the previous window's trailing overlapWords words.
func splitWords(words []string, budget, overlapWords int) []string {
	if budget <= 0 {
		return []string{strings.Join(words, " ")}
	}
	if overlapWords >= budget {
		overlapWords = budget / 2
	}

	var out []string
	step := budget - overlapWords
	for start := 0; start < len(words); start += step {
		end := start + budget
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}
