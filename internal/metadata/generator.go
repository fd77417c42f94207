package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tubepilot/backend/internal/logging"
	"github.com/tubepilot/backend/internal/metrics"
	"github.com/tubepilot/backend/internal/models"
)

// Completer turns a prompt into free text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Grounder retrieves previously generated metadata similar to the given context.
type Grounder interface {
	Similar(ctx context.Context, text string, topK int) ([]models.MetadataMatch, error)
}

// Options tunes retry and grounding behaviour.
type Options struct {
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
	TopK     int
}

// Generator drafts video metadata with an LLM, retrying malformed or transient results.
type Generator struct {
	completer Completer
	grounder  Grounder
	opts      Options
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewGenerator constructs a generator. grounder may be nil.
func NewGenerator(completer Completer, grounder Grounder, opts Options) *Generator {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	return &Generator{completer: completer, grounder: grounder, opts: opts, sleep: sleepContext}
}

// Generate drafts metadata for the free-text context. Every returned value satisfies Validate.
func (g *Generator) Generate(ctx context.Context, contextText string) (models.GeneratedMetadata, error) {
	logger := logging.FromContext(ctx)
	prompt := BuildPrompt(contextText, g.similar(ctx, contextText))

	var lastErr error
	for attempt := 1; attempt <= g.opts.Attempts; attempt++ {
		meta, err := g.attempt(ctx, prompt)
		if err == nil {
			metrics.RecordLLMAttempt("success")
			return meta, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.RecordLLMAttempt("cancelled")
			return models.GeneratedMetadata{}, fmt.Errorf("%w: %w", ErrGeneration, ctxErr)
		}
		if !retryable(err) {
			metrics.RecordLLMAttempt("fatal")
			return models.GeneratedMetadata{}, fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		metrics.RecordLLMAttempt("retry")
		logger.Warn("metadata attempt failed", slog.Int("attempt", attempt), slog.Any("error", err))

		if attempt < g.opts.Attempts {
			if err := g.sleep(ctx, time.Duration(attempt)*g.opts.Backoff); err != nil {
				return models.GeneratedMetadata{}, fmt.Errorf("%w: %w", ErrGeneration, err)
			}
		}
	}

	return models.GeneratedMetadata{}, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, g.opts.Attempts, lastErr)
}

func (g *Generator) attempt(ctx context.Context, prompt string) (models.GeneratedMetadata, error) {
	callCtx := ctx
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	raw, err := g.completer.Complete(callCtx, prompt)
	if err != nil {
		return models.GeneratedMetadata{}, err
	}
	return Parse(raw)
}

func (g *Generator) similar(ctx context.Context, text string) []models.MetadataMatch {
	if g.grounder == nil {
		return nil
	}
	matches, err := g.grounder.Similar(ctx, text, g.opts.TopK)
	if err != nil {
		logging.FromContext(ctx).Warn("grounding lookup failed", slog.Any("error", err))
		return nil
	}
	return matches
}

const promptTemplate = `INSTRUCTIONS: Based on the provided context and retrieved metadata, generate a YouTube video title, description, hashtags, and category.
Context: %s
Retrieved Metadata: %s
- Generate a catchy, SEO-friendly title (max 100 characters).
- Generate a description (max 500 characters) with keywords and a call-to-action.
- Generate 3-5 relevant hashtags.
- "category": One word or phrase indicating the video category (e.g., "Travel", "Technology", "Education").
Output format:
{
  "title": "<title>",
  "description": "<description>",
  "hashtags": ["#tag1", "#tag2", "#tag3"],
  "category": "<category>"
}`

// BuildPrompt renders the generation prompt with up to len(matches) grounding examples.
func BuildPrompt(contextText string, matches []models.MetadataMatch) string {
	retrieved := "No similar metadata found."
	if len(matches) > 0 {
		lines := make([]string, 0, len(matches))
		for _, m := range matches {
			lines = append(lines, fmt.Sprintf("Title: %s, Description: %s, Hashtags: %s, Category: %s",
				m.Metadata.Title, m.Metadata.Description, strings.Join(m.Metadata.Hashtags, ", "), m.Metadata.Category))
		}
		retrieved = strings.Join(lines, "\n")
	}
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(contextText), retrieved)
}

// retryable reports whether another attempt could succeed: malformed output, rate
// limiting, server errors, transport failures and per-call timeouts.
func retryable(err error) bool {
	if errors.Is(err, ErrParse) || errors.Is(err, ErrSchema) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if status, ok := statusCode(err); ok {
		return status == 429 || status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Unclassified transport failures are treated as transient.
	return !errors.Is(err, context.Canceled)
}

func statusCode(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
