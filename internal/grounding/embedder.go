package grounding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

// InputKind distinguishes texts embedded for lookup from texts embedded for storage.
type InputKind string

const (
	KindQuery    InputKind = "query"
	KindDocument InputKind = "document"
)

// Embedder turns texts into vectors, one per input.
type Embedder interface {
	Embed(ctx context.Context, texts []string, kind InputKind) ([][]float32, error)
}

// CohereEmbedder calls the Cohere v2 embed API.
type CohereEmbedder struct {
	client *cohereclient.Client
	model  string
}

// NewCohereEmbedder builds an embedder for the given API key and model.
func NewCohereEmbedder(apiKey, model string, timeout time.Duration) (*CohereEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("grounding: cohere api key is required")
	}
	if model == "" {
		model = "embed-english-v3.0"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	return &CohereEmbedder{client: client, model: model}, nil
}

// Model reports the embedding model name.
func (c *CohereEmbedder) Model() string { return c.model }

// Embed returns float embeddings in input order.
func (c *CohereEmbedder) Embed(ctx context.Context, texts []string, kind InputKind) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	inputType := cohere.EmbedInputTypeSearchDocument
	if kind == KindQuery {
		inputType = cohere.EmbedInputTypeSearchQuery
	}

	resp, err := c.client.V2.Embed(ctx, &cohere.V2EmbedRequest{
		Texts:          texts,
		Model:          c.model,
		InputType:      inputType,
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return nil, fmt.Errorf("cohere embed: %w", err)
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, errors.New("cohere embed returned no float embeddings")
	}
	if len(resp.Embeddings.Float) != len(texts) {
		return nil, fmt.Errorf("cohere embed: expected %d embeddings, got %d", len(texts), len(resp.Embeddings.Float))
	}

	out := make([][]float32, len(resp.Embeddings.Float))
	for i, vec := range resp.Embeddings.Float {
		fv := make([]float32, len(vec))
		for j, v := range vec {
			fv[j] = float32(v)
		}
		out[i] = fv
	}
	return out, nil
}
