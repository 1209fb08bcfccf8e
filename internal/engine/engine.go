// Package engine ties the chunker, embedder, and vector index together into
// the two core operations: ingesting a source and answering a question over
// previously ingested sources.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/inkbase/inkbase/internal/chunker"
	"github.com/inkbase/inkbase/internal/embedder"
	"github.com/inkbase/inkbase/internal/index"
)

// Config controls the engine. Zero values fall back to the documented
// defaults, so tests can set only what they exercise.
type Config struct {
	// Collection is the index collection all sources land in.
	Collection string

	// ModelName is the generation model in provider/name form.
	ModelName string

	// TopK is how many entries retrieval asks the index for.
	TopK int

	// ContextRunes bounds the total size of retrieved text placed in the
	// generation prompt.
	ContextRunes int

	// Chunking configures source segmentation.
	Chunking chunker.Config

	// LockDir, when set, holds flock files so concurrent processes cannot
	// ingest the same source at once. Empty disables file locking.
	LockDir string
}

// Answer is the result of AnswerQuestion.
type Answer struct {
	// Text is the composed answer.
	Text string

	// Grounded reports whether the answer was generated from retrieved
	// excerpts. False means retrieval found nothing and Text is the
	// standing insufficient-context reply.
	Grounded bool

	// Matches are the retrieved excerpts the answer was grounded on,
	// best first. Empty when Grounded is false.
	Matches []index.Match
}

// Engine implements ingestion and question answering. Safe for concurrent
// use; per-source ingestion is serialized internally.
type Engine struct {
	g        *genkit.Genkit
	embedder *embedder.Client
	index    index.Index
	chunker  *chunker.Chunker
	cfg      Config
	locks    *sourceLocks
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates an Engine. All dependencies are required except the logger,
// which defaults to slog.Default.
func New(g *genkit.Genkit, emb *embedder.Client, idx index.Index, cfg Config, logger *slog.Logger) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if idx == nil {
		return nil, fmt.Errorf("index is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "sources"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 6
	}
	if cfg.ContextRunes <= 0 {
		cfg.ContextRunes = 6000
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		g:        g,
		embedder: emb,
		index:    idx,
		chunker:  chunker.New(cfg.Chunking),
		cfg:      cfg,
		locks:    newSourceLocks(cfg.LockDir),
		logger:   logger,
		tracer:   otel.Tracer("inkbase/engine"),
	}, nil
}

// Ingest chunks, embeds, and indexes text under sourceID, replacing any
// previous version of the source. Empty or whitespace-only text removes the
// source from the index. Returns the number of indexed chunks.
//
// Concurrent Ingest calls for the same sourceID are serialized; last writer
// wins, never an interleaving of two versions.
func (e *Engine) Ingest(ctx context.Context, sourceID, text string) (int, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Ingest",
		trace.WithAttributes(attribute.String("source_id", sourceID)))
	defer span.End()

	if sourceID == "" {
		return 0, fmt.Errorf("source ID must not be empty")
	}

	release, err := e.locks.acquire(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	defer release()

	if err := e.index.EnsureCollection(ctx, e.cfg.Collection, e.embedder.Dimension()); err != nil {
		return 0, fmt.Errorf("ensuring collection: %w", err)
	}

	chunks := e.chunker.Split(text)
	if len(chunks) == 0 {
		if err := e.index.DeleteSource(ctx, e.cfg.Collection, sourceID); err != nil {
			return 0, fmt.Errorf("removing emptied source: %w", err)
		}
		e.logger.Info("source emptied, removed from index", "source_id", sourceID)
		return 0, nil
	}

	vectors, err := e.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding source %q: %w", sourceID, err)
	}

	if err := e.index.Upsert(ctx, e.cfg.Collection, sourceID, chunks, vectors); err != nil {
		return 0, fmt.Errorf("indexing source %q: %w", sourceID, err)
	}

	e.logger.Info("source ingested", "source_id", sourceID, "chunks", len(chunks))
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// AnswerQuestion retrieves the most relevant excerpts from the given sources
// and composes an answer from them with a single model call.
//
// When sourceIDs is empty or retrieval returns nothing, the standing
// insufficient-context answer comes back with Grounded false and no model
// call is made.
func (e *Engine) AnswerQuestion(ctx context.Context, question string, sourceIDs []string) (*Answer, error) {
	ctx, span := e.tracer.Start(ctx, "engine.AnswerQuestion",
		trace.WithAttributes(attribute.Int("sources", len(sourceIDs))))
	defer span.End()

	if question == "" {
		return nil, fmt.Errorf("question must not be empty")
	}
	if len(sourceIDs) == 0 {
		return &Answer{Text: InsufficientContextAnswer}, nil
	}

	queryVector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	matches, err := e.index.Search(ctx, e.cfg.Collection, queryVector, sourceIDs, e.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	if len(matches) == 0 {
		e.logger.Debug("no matches retrieved", "sources", len(sourceIDs))
		return &Answer{Text: InsufficientContextAnswer}, nil
	}

	contextBlock := buildContext(matches, e.cfg.ContextRunes)
	resp, err := genkit.Generate(ctx, e.g,
		ai.WithModelName(e.cfg.ModelName),
		ai.WithSystem(answerSystemPrompt),
		ai.WithPrompt(buildUserPrompt(question, contextBlock)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnswerGeneration, err)
	}

	span.SetAttributes(attribute.Int("matches", len(matches)))
	return &Answer{
		Text:     strings.TrimSpace(resp.Text()),
		Grounded: true,
		Matches:  matches,
	}, nil
}

// DeleteSource removes every indexed entry of sourceID. Deleting a source
// that was never ingested is a no-op.
func (e *Engine) DeleteSource(ctx context.Context, sourceID string) error {
	release, err := e.locks.acquire(ctx, sourceID)
	if err != nil {
		return err
	}
	defer release()

	if err := e.index.DeleteSource(ctx, e.cfg.Collection, sourceID); err != nil {
		return fmt.Errorf("deleting source %q: %w", sourceID, err)
	}
	e.logger.Info("source deleted", "source_id", sourceID)
	return nil
}

// ChunkCount reports how many entries sourceID currently has in the index.
func (e *Engine) ChunkCount(ctx context.Context, sourceID string) (int, error) {
	return e.index.Count(ctx, e.cfg.Collection, sourceID)
}
