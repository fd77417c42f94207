package repositories

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tubepilot/backend/internal/db"
	"github.com/tubepilot/backend/internal/models"
)

// PostgresMetadataIndex stores metadata embeddings in a pgvector column and answers
// nearest-neighbour queries by cosine distance.
type PostgresMetadataIndex struct {
	pool db.Pool
}

// NewPostgresMetadataIndex constructs a pgvector-backed grounding index.
func NewPostgresMetadataIndex(pool db.Pool) *PostgresMetadataIndex {
	return &PostgresMetadataIndex{pool: pool}
}

// Upsert stores or replaces the embedding for a video.
func (i *PostgresMetadataIndex) Upsert(ctx context.Context, entry models.MetadataEmbedding) error {
	if len(entry.Embedding) == 0 {
		return fmt.Errorf("upsert metadata embedding: empty vector")
	}

	conn, err := i.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	hashtags := entry.Metadata.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO metadata_embeddings (video_id, embedding, title, description, hashtags, category, created_at)
        VALUES ($1, $2::vector, $3, $4, $5, $6, $7)
        ON CONFLICT (video_id) DO UPDATE SET
            embedding = EXCLUDED.embedding,
            title = EXCLUDED.title,
            description = EXCLUDED.description,
            hashtags = EXCLUDED.hashtags,
            category = EXCLUDED.category
    `, entry.VideoID, vectorLiteral(entry.Embedding), entry.Metadata.Title, entry.Metadata.Description,
		hashtags, entry.Metadata.Category, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert metadata embedding: %w", err)
	}
	return nil
}

// Query returns up to topK entries closest to the vector, most similar first.
func (i *PostgresMetadataIndex) Query(ctx context.Context, vector []float32, topK int) ([]models.MetadataMatch, error) {
	if len(vector) == 0 || topK <= 0 {
		return nil, nil
	}

	conn, err := i.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT video_id, title, description, hashtags, category, 1 - (embedding <=> $1::vector) AS score
        FROM metadata_embeddings
        ORDER BY embedding <=> $1::vector
        LIMIT $2
    `, vectorLiteral(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("query metadata embeddings: %w", err)
	}
	defer rows.Close()

	var matches []models.MetadataMatch
	for rows.Next() {
		var match models.MetadataMatch
		if err := rows.Scan(&match.VideoID, &match.Metadata.Title, &match.Metadata.Description,
			&match.Metadata.Hashtags, &match.Metadata.Category, &match.Score); err != nil {
			return nil, fmt.Errorf("scan metadata embedding: %w", err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata embeddings: %w", err)
	}
	return matches, nil
}

// vectorLiteral renders a vector in pgvector's text input format, e.g. [0.1,0.2].
func vectorLiteral(vector []float32) string {
	var b strings.Builder
	b.Grow(len(vector) * 10)
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
