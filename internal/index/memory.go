package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process Index kept entirely in maps. It exists for tests
// and single-shot tooling where spinning up Postgres would be overkill; it
// honors the same contract as the Postgres backend, including insertion-order
// tie-breaking on equal similarity.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]int               // name -> dimension
	entries     map[string][]memoryEntry     // collection -> entries
	seq         int64
}

type memoryEntry struct {
	sourceID   string
	chunkIndex int
	text       string
	vector     []float32
	seq        int64
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]int),
		entries:     make(map[string][]memoryEntry),
	}
}

// EnsureCollection implements Index.
func (m *Memory) EnsureCollection(_ context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dimension)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.collections[name]; ok {
		if existing != dimension {
			return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
				ErrDimensionMismatch, name, existing, dimension)
		}
		return nil
	}
	m.collections[name] = dimension
	return nil
}

// Upsert implements Index. Re-ingesting a source replaces its entries
// wholesale, so a shorter version leaves no stale tail behind.
func (m *Memory) Upsert(_ context.Context, collection, sourceID string, chunks []string, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dimension, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("collection %q does not exist", collection)
	}
	for i, vec := range vectors {
		if len(vec) != dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, collection %q has %d",
				ErrDimensionMismatch, i, len(vec), collection, dimension)
		}
	}

	kept := m.entries[collection][:0:0]
	for _, e := range m.entries[collection] {
		if e.sourceID != sourceID {
			kept = append(kept, e)
		}
	}
	for i := range chunks {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		m.seq++
		kept = append(kept, memoryEntry{
			sourceID:   sourceID,
			chunkIndex: i,
			text:       chunks[i],
			vector:     vec,
			seq:        m.seq,
		})
	}
	m.entries[collection] = kept
	return nil
}

// Search implements Index.
func (m *Memory) Search(_ context.Context, collection string, vector []float32, sourceIDs []string, topK int) ([]Match, error) {
	if len(sourceIDs) == 0 || topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	dimension, ok := m.collections[collection]
	if !ok {
		// A collection nobody has ingested into has nothing to retrieve.
		return nil, nil
	}
	if len(vector) != dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, collection %q has %d",
			ErrDimensionMismatch, len(vector), collection, dimension)
	}

	wanted := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		wanted[id] = true
	}

	type scored struct {
		entry      memoryEntry
		similarity float32
	}
	var candidates []scored
	for _, e := range m.entries[collection] {
		if !wanted[e.sourceID] {
			continue
		}
		candidates = append(candidates, scored{entry: e, similarity: cosineSimilarity(vector, e.vector)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].similarity != candidates[j].similarity {
			return candidates[i].similarity > candidates[j].similarity
		}
		return candidates[i].entry.seq < candidates[j].entry.seq
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, Match{
			ChunkID:    ChunkID(c.entry.sourceID, c.entry.chunkIndex),
			SourceID:   c.entry.sourceID,
			ChunkIndex: c.entry.chunkIndex,
			Text:       c.entry.text,
			Similarity: c.similarity,
		})
	}
	return matches, nil
}

// DeleteSource implements Index.
func (m *Memory) DeleteSource(_ context.Context, collection, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[collection][:0:0]
	for _, e := range m.entries[collection] {
		if e.sourceID != sourceID {
			kept = append(kept, e)
		}
	}
	m.entries[collection] = kept
	return nil
}

// Count implements Index.
func (m *Memory) Count(_ context.Context, collection, sourceID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.entries[collection] {
		if e.sourceID == sourceID {
			count++
		}
	}
	return count, nil
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
