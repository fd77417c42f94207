package grounding

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/tubepilot/backend/internal/models"
)

// Index stores metadata embeddings and answers nearest-neighbour queries.
type Index interface {
	Upsert(ctx context.Context, entry models.MetadataEmbedding) error
	Query(ctx context.Context, vector []float32, topK int) ([]models.MetadataMatch, error)
}

// MemoryIndex is a process-local cosine index for development and tests.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]models.MetadataEmbedding
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]models.MetadataEmbedding)}
}

func (m *MemoryIndex) Upsert(_ context.Context, entry models.MetadataEmbedding) error {
	m.mu.Lock()
	m.entries[entry.VideoID] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, vector []float32, topK int) ([]models.MetadataMatch, error) {
	if topK <= 0 || len(vector) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	matches := make([]models.MetadataMatch, 0, len(m.entries))
	for _, entry := range m.entries {
		if len(entry.Embedding) != len(vector) {
			continue
		}
		matches = append(matches, models.MetadataMatch{
			VideoID:  entry.VideoID,
			Metadata: entry.Metadata,
			Score:    cosine(vector, entry.Embedding),
		})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].VideoID < matches[j].VideoID
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
