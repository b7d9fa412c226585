package vectorstore

import (
	"sort"
	"strings"
	"sync"

	"github.com/jdkato/prose/v2"
)

type memoryChunk struct {
	source  string
	index   int
	content string
	tokens  map[string]struct{}
}

// MemoryIndex is the degraded fallback: a keyword-overlap ranking over
// previously seen chunks. No embeddings, no persistence.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks []memoryChunk
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{chunks: make([]memoryChunk, 0)}
}

// Add records one chunk.
func (m *MemoryIndex) Add(source string, index int, content string) {
	chunk := memoryChunk{
		source:  source,
		index:   index,
		content: content,
		tokens:  tokenize(content),
	}

	m.mu.Lock()
	m.chunks = append(m.chunks, chunk)
	m.mu.Unlock()
}

// Search ranks chunks by the number of query tokens they contain and
// returns the top k. Ties keep insertion order.
func (m *MemoryIndex) Search(query string, k int) []SearchResult {
	queryTokens := tokenize(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		chunk memoryChunk
		score int
	}

	candidates := make([]scored, 0, len(m.chunks))
	for _, chunk := range m.chunks {
		score := 0
		for token := range queryTokens {
			if _, ok := chunk.tokens[token]; ok {
				score++
			}
		}
		candidates = append(candidates, scored{chunk: chunk, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if k > len(candidates) {
		k = len(candidates)
	}

	results := make([]SearchResult, 0, k)
	for _, c := range candidates[:k] {
		results = append(results, SearchResult{
			Content:    c.chunk.content,
			Source:     c.chunk.source,
			ChunkIndex: c.chunk.index,
			Score:      float32(c.score),
		})
	}
	return results
}

// Clear empties the index.
func (m *MemoryIndex) Clear() {
	m.mu.Lock()
	m.chunks = m.chunks[:0]
	m.mu.Unlock()
}

// tokenize lower-cases and tokenizes text, falling back to whitespace
// splitting when the tokenizer rejects the input.
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})

	doc, err := prose.NewDocument(text, prose.WithTagging(false), prose.WithExtraction(false))
	if err != nil {
		for _, field := range strings.Fields(strings.ToLower(text)) {
			tokens[field] = struct{}{}
		}
		return tokens
	}

	for _, tok := range doc.Tokens() {
		tokens[strings.ToLower(tok.Text)] = struct{}{}
	}
	return tokens
}
