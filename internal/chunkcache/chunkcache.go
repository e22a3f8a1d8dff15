// Package chunkcache holds chunk text in memory, keyed by chunk ID and by
// dataset, so the composition root can answer two questions the storage
// ports don't: "what text grounds chunk X" (for the validator's prompt)
// and "what's the current document set for dataset Y" (for lexical
// retrieval, which has no store of its own).
package chunkcache

import (
	"sync"

	"github.com/cognipipe/cognipipe/internal/domain"
	"github.com/cognipipe/cognipipe/internal/retrieve"
)

// Cache is a process-wide, in-memory chunk text index. Safe for
// concurrent use.
type Cache struct {
	mu        sync.RWMutex
	chunks    map[string]domain.DocumentChunk
	byDataset map[string][]string
}

func New() *Cache {
	return &Cache{
		chunks:    make(map[string]domain.DocumentChunk),
		byDataset: make(map[string][]string),
	}
}

// Put indexes chunks under datasetID, replacing any prior entry with the
// same chunk ID in place.
func (c *Cache) Put(datasetID string, chunks []domain.DocumentChunk) {
	if len(chunks) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, chunk := range chunks {
		if _, exists := c.chunks[chunk.ID]; !exists {
			c.byDataset[datasetID] = append(c.byDataset[datasetID], chunk.ID)
		}
		c.chunks[chunk.ID] = chunk
	}
}

// Text returns the source text for a chunk ID.
func (c *Cache) Text(chunkID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chunk, ok := c.chunks[chunkID]
	return chunk.Text, ok
}

// Provenance returns the owning data ID and starting line for a chunk ID.
// It takes no context, so callers adapt it to answer.ChunkProvenance with a
// wrapper that ignores the ctx argument.
func (c *Cache) Provenance(chunkID string) (file string, line int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chunk, ok := c.chunks[chunkID]
	if !ok {
		return "", 0, false
	}
	return chunk.DataID, chunk.LineStart, true
}

// Documents returns every cached chunk for datasetID as a lexical
// retrieval corpus.
func (c *Cache) Documents(datasetID string) []retrieve.LexicalDoc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := c.byDataset[datasetID]
	docs := make([]retrieve.LexicalDoc, 0, len(ids))
	for _, id := range ids {
		if chunk, ok := c.chunks[id]; ok {
			docs = append(docs, retrieve.LexicalDoc{ID: chunk.ID, Content: chunk.Text})
		}
	}
	return docs
}
