package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout caps a single similarity query so a slow store cannot block
// the answer path indefinitely.
const searchTimeout = 10 * time.Second

// Postgres is the pgvector-backed Index. Collections live in the
// collections table, which records each collection's dimensionality;
// entries live in source_chunks with a vector column.
//
// Safe for concurrent use; concurrency control is the database's.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Postgres index on an existing pool. The pool must
// have pgvector type support registered (see database.NewPool).
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// EnsureCollection implements Index.
func (p *Postgres) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dimension)
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO collections (name, dimension) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING`,
		name, dimension)
	if err != nil {
		return fmt.Errorf("creating collection %q: %w: %w", name, ErrUnavailable, err)
	}

	existing, err := p.collectionDimension(ctx, name)
	if err != nil {
		return err
	}
	if existing != dimension {
		return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
			ErrDimensionMismatch, name, existing, dimension)
	}
	return nil
}

// Upsert implements Index. All writes and the stale-tail delete run in one
// transaction, so a failed ingestion leaves the previous version of the
// source intact rather than a partial mix of old and new entries.
func (p *Postgres) Upsert(ctx context.Context, collection, sourceID string, chunks []string, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	dimension, err := p.collectionDimension(ctx, collection)
	if err != nil {
		return err
	}
	for i, vec := range vectors {
		if len(vec) != dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, collection %q has %d",
				ErrDimensionMismatch, i, len(vec), collection, dimension)
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning upsert: %w: %w", ErrUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for i := range chunks {
		vec := pgvector.NewVector(vectors[i])
		_, err = tx.Exec(ctx,
			`INSERT INTO source_chunks (chunk_id, collection, source_id, chunk_index, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (collection, source_id, chunk_index)
			 DO UPDATE SET chunk_id = EXCLUDED.chunk_id,
			               content = EXCLUDED.content,
			               embedding = EXCLUDED.embedding,
			               created_at = now()`,
			ChunkID(sourceID, i), collection, sourceID, i, chunks[i], vec)
		if err != nil {
			return fmt.Errorf("upserting chunk %d of %q: %w: %w", i, sourceID, ErrUnavailable, err)
		}
	}

	// A shorter re-ingestion must not leave the old tail retrievable.
	_, err = tx.Exec(ctx,
		`DELETE FROM source_chunks
		 WHERE collection = $1 AND source_id = $2 AND chunk_index >= $3`,
		collection, sourceID, len(chunks))
	if err != nil {
		return fmt.Errorf("trimming stale chunks of %q: %w: %w", sourceID, ErrUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing upsert of %q: %w: %w", sourceID, ErrUnavailable, err)
	}

	p.logger.Debug("upserted source", "source_id", sourceID, "chunks", len(chunks))
	return nil
}

// Search implements Index. Transient failures get one immediate retry; a
// second failure surfaces as ErrUnavailable.
func (p *Postgres) Search(ctx context.Context, collection string, vector []float32, sourceIDs []string, topK int) ([]Match, error) {
	if len(sourceIDs) == 0 || topK <= 0 {
		return nil, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	matches, err := p.search(queryCtx, collection, vector, sourceIDs, topK)
	if err != nil && queryCtx.Err() == nil {
		p.logger.Warn("search failed, retrying once", "error", err)
		matches, err = p.search(queryCtx, collection, vector, sourceIDs, topK)
	}
	if err != nil {
		return nil, fmt.Errorf("searching collection %q: %w: %w", collection, ErrUnavailable, err)
	}
	return matches, nil
}

func (p *Postgres) search(ctx context.Context, collection string, vector []float32, sourceIDs []string, topK int) ([]Match, error) {
	vec := pgvector.NewVector(vector)

	// <=> is cosine distance; similarity = 1 - distance. Ties are broken
	// by insertion order (created_at, then chunk position).
	rows, err := p.pool.Query(ctx,
		`SELECT chunk_id, source_id, chunk_index, content,
		        1 - (embedding <=> $3) AS similarity
		 FROM source_chunks
		 WHERE collection = $1 AND source_id = ANY($2)
		 ORDER BY embedding <=> $3, created_at, source_id, chunk_index
		 LIMIT $4`,
		collection, sourceIDs, vec, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var similarity float64
		if err := rows.Scan(&m.ChunkID, &m.SourceID, &m.ChunkIndex, &m.Text, &similarity); err != nil {
			return nil, err
		}
		m.Similarity = float32(similarity)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteSource implements Index.
func (p *Postgres) DeleteSource(ctx context.Context, collection, sourceID string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM source_chunks WHERE collection = $1 AND source_id = $2`,
		collection, sourceID)
	if err != nil {
		return fmt.Errorf("deleting source %q: %w: %w", sourceID, ErrUnavailable, err)
	}
	p.logger.Debug("deleted source entries", "source_id", sourceID)
	return nil
}

// Count implements Index.
func (p *Postgres) Count(ctx context.Context, collection, sourceID string) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM source_chunks WHERE collection = $1 AND source_id = $2`,
		collection, sourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting source %q: %w: %w", sourceID, ErrUnavailable, err)
	}
	return count, nil
}

func (p *Postgres) collectionDimension(ctx context.Context, name string) (int, error) {
	var dimension int
	err := p.pool.QueryRow(ctx,
		`SELECT dimension FROM collections WHERE name = $1`, name).Scan(&dimension)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("collection %q does not exist", name)
	}
	if err != nil {
		return 0, fmt.Errorf("reading collection %q: %w: %w", name, ErrUnavailable, err)
	}
	return dimension, nil
}
