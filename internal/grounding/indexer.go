package grounding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tubepilot/backend/internal/models"
)

// Indexer grounds metadata generation on previously published metadata.
type Indexer struct {
	embedder Embedder
	index    Index
	timeout  time.Duration
	now      func() time.Time
}

// NewIndexer wires an embedder to an index. Every call is bounded by timeout.
func NewIndexer(embedder Embedder, index Index, timeout time.Duration) *Indexer {
	return &Indexer{embedder: embedder, index: index, timeout: timeout, now: time.Now}
}

// Similar returns up to topK stored metadata records closest to text.
func (i *Indexer) Similar(ctx context.Context, text string, topK int) ([]models.MetadataMatch, error) {
	if strings.TrimSpace(text) == "" || topK <= 0 {
		return nil, nil
	}
	ctx, cancel := i.bound(ctx)
	defer cancel()

	vectors, err := i.embedder.Embed(ctx, []string{text}, KindQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: no vector returned")
	}
	matches, err := i.index.Query(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return matches, nil
}

// Remember adds the metadata generated for videoID to the grounding corpus.
func (i *Indexer) Remember(ctx context.Context, videoID string, meta models.GeneratedMetadata) error {
	ctx, cancel := i.bound(ctx)
	defer cancel()

	vectors, err := i.embedder.Embed(ctx, []string{DocumentText(meta)}, KindDocument)
	if err != nil {
		return fmt.Errorf("embed metadata: %w", err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("embed metadata: no vector returned")
	}
	err = i.index.Upsert(ctx, models.MetadataEmbedding{
		VideoID:   videoID,
		Embedding: vectors[0],
		Metadata:  meta,
		CreatedAt: i.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("upsert metadata: %w", err)
	}
	return nil
}

// DocumentText is the text embedded for a stored metadata record.
func DocumentText(meta models.GeneratedMetadata) string {
	parts := []string{meta.Title, meta.Description}
	if len(meta.Hashtags) > 0 {
		parts = append(parts, strings.Join(meta.Hashtags, " "))
	}
	if meta.Category != "" {
		parts = append(parts, meta.Category)
	}
	return strings.Join(parts, "\n")
}

func (i *Indexer) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, i.timeout)
}
