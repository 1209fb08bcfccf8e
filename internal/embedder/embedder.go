// Package embedder wraps a Genkit embedder behind the small surface the
// ingestion and query paths need: single and batched embedding with typed
// failures and outbound rate limiting.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
)

// ErrService indicates the external embedding call failed or timed out.
// Callers decide whether to retry the whole operation or abort; the client
// itself never retries.
var ErrService = errors.New("embedding service error")

// Config for the embedding client.
type Config struct {
	// Dimension is the vector size the model produces. Recorded per
	// collection and enforced by the index on upsert.
	Dimension int

	// RequestsPerSecond bounds outbound embedding calls. Zero or negative
	// disables limiting.
	RequestsPerSecond float64
}

// Client embeds text via a Genkit ai.Embedder.
//
// The client is stateless apart from the rate limiter and safe for
// concurrent use.
type Client struct {
	embedder ai.Embedder
	limiter  *rate.Limiter
	cfg      Config
	logger   *slog.Logger
}

// New creates a Client. The embedder is injected so tests can supply a
// deterministic double.
func New(e ai.Embedder, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		embedder: e,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Dimension returns the configured vector dimensionality.
func (c *Client) Dimension() int {
	return c.cfg.Dimension
}

// Embed maps one text to its vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch maps texts to vectors, preserving input order, with a single
// outbound call. An empty input returns nil without calling the service.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrService, err)
		}
	}

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrService, err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrService, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", ErrService, i)
		}
		vectors[i] = emb.Embedding
	}

	c.logger.Debug("embedded batch", "count", len(texts))
	return vectors, nil
}
