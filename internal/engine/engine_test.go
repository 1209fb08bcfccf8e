package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/inkbase/inkbase/internal/chunker"
	"github.com/inkbase/inkbase/internal/embedder"
	"github.com/inkbase/inkbase/internal/index"
	"github.com/inkbase/inkbase/internal/log"
	"github.com/inkbase/inkbase/internal/testutil"
)

// goleakOptions filters goroutines that outlive individual tests by design.
func goleakOptions() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		// genkit.Init installs a process-lifetime signal handler and
		// discards the stop function, so its goroutine never exits.
		goleak.IgnoreTopFunction("os/signal.NotifyContext.func1"),
		goleak.IgnoreTopFunction("net/http.(*http2clientConnReadLoop).run"),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	}
}

type testFixture struct {
	engine   *Engine
	model    *testutil.MockModel
	embedder *testutil.HashEmbedder
	index    *index.Memory
}

func newTestFixture(t *testing.T, cfg Config) *testFixture {
	t.Helper()

	g := genkit.Init(context.Background())

	model := testutil.NewMockModel("no rule matched")
	model.Register(g)

	hash := testutil.NewHashEmbedder(8)
	emb := embedder.New(hash, embedder.Config{Dimension: 8, RequestsPerSecond: 1000}, log.NewNop())

	idx := index.NewMemory()

	if cfg.ModelName == "" {
		cfg.ModelName = testutil.ModelName
	}
	eng, err := New(g, emb, idx, cfg, log.NewNop())
	require.NoError(t, err)

	return &testFixture{engine: eng, model: model, embedder: hash, index: idx}
}

func TestEngine_IngestAndAnswer(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	ctx := context.Background()
	f := newTestFixture(t, Config{})
	f.model.SetEcho(true)

	count, err := f.engine.Ingest(ctx, "notes/sky.md", "The sky is blue because of Rayleigh scattering.")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	answer, err := f.engine.AnswerQuestion(ctx, "Why is the sky blue?", []string{"notes/sky.md"})
	require.NoError(t, err)

	assert.True(t, answer.Grounded)
	require.Len(t, answer.Matches, 1)
	assert.Equal(t, "notes/sky.md", answer.Matches[0].SourceID)
	// Echo mode returns the full prompt, so the retrieved excerpt must be in it.
	assert.Contains(t, answer.Text, "Rayleigh scattering")
	assert.Contains(t, answer.Text, "Why is the sky blue?")
	assert.Equal(t, 1, f.model.CallCount())
}

func TestEngine_AnswerUsesMatchingRule(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture(t, Config{})
	f.model.AddResponse("capital of france", "Paris is the capital of France. [1]")

	_, err := f.engine.Ingest(ctx, "geo.md", "Paris is the capital of France and sits on the Seine.")
	require.NoError(t, err)

	answer, err := f.engine.AnswerQuestion(ctx, "What is the capital of France?", []string{"geo.md"})
	require.NoError(t, err)
	assert.True(t, answer.Grounded)
	assert.Contains(t, answer.Text, "Paris")
}

func TestEngine_AnswerTrimsModelOutput(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture(t, Config{})
	// Chat models commonly pad their output with trailing newlines.
	f.model.AddResponse("capital of france", "\n  Paris is the capital of France. [1]\n\n")

	_, err := f.engine.Ingest(ctx, "geo.md", "Paris is the capital of France and sits on the Seine.")
	require.NoError(t, err)

	answer, err := f.engine.AnswerQuestion(ctx, "What is the capital of France?", []string{"geo.md"})
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France. [1]", answer.Text)
}

func TestEngine_AnswerWithNoSources(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	ctx := context.Background()
	f := newTestFixture(t, Config{})

	answer, err := f.engine.AnswerQuestion(ctx, "Anything at all?", nil)
	require.NoError(t, err)

	assert.False(t, answer.Grounded)
	assert.Equal(t, InsufficientContextAnswer, answer.Text)
	assert.Empty(t, answer.Matches)
	assert.Zero(t, f.model.CallCount(), "no model call without retrieved context")
	assert.Zero(t, f.embedder.Calls(), "no embedding call without sources to search")
}

func TestEngine_AnswerWithUnknownSource(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture(t, Config{})

	_, err := f.engine.Ingest(ctx, "known.md", "Some indexed content here.")
	require.NoError(t, err)

	answer, err := f.engine.AnswerQuestion(ctx, "What does it say?", []string{"never-ingested.md"})
	require.NoError(t, err)

	assert.False(t, answer.Grounded)
	assert.Equal(t, InsufficientContextAnswer, answer.Text)
	assert.Zero(t, f.model.CallCount())
}

func TestEngine_AnswerFiltersBySource(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture(t, Config{})
	f.model.SetEcho(true)

	_, err := f.engine.Ingest(ctx, "doc-a.md", "Alpha document talks about mountains.")
	require.NoError(t, err)
	_, err = f.engine.Ingest(ctx, "doc-b.md", "Beta document talks about rivers.")
	require.NoError(t, err)

	answer, err := f.engine.AnswerQuestion(ctx, "What is discussed?", []string{"doc-b.md"})
	require.NoError(t, err)

	require.True(t, answer.Grounded)
	for _, m := range answer.Matches {
		assert.Equal(t, "doc-b.md", m.SourceID)
	}
}

func TestEngine_IngestEmptyTextRemovesSource(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture(t, Config{})

	_, err := f.engine.Ingest(ctx, "doc.md", "Original content worth indexing.")
	require.NoError(t, err)

	count, err := f.engine.ChunkCount(ctx, "doc.md")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	n, err := f.engine.Ingest(ctx, "doc.md", "   \n\t  ")
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err = f.engine.ChunkCount(ctx, "doc.md")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEngine_ReingestShrinksIndex(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture(t, Config{
		Chunking: chunker.Config{MaxRunes: 40, OverlapRunes: 5},
	})

	long := strings.Repeat("Many sentences fill this document. ", 10)
	countLong, err := f.engine.Ingest(ctx, "doc.md", long)
	require.NoError(t, err)
	require.Greater(t, countLong, 1)

	countShort, err := f.engine.Ingest(ctx, "doc.md", "One line now.")
	require.NoError(t, err)
	assert.Equal(t, 1, countShort)

	indexed, err := f.engine.ChunkCount(ctx, "doc.md")
	require.NoError(t, err)
	assert.Equal(t, 1, indexed)
}

func TestEngine_IngestDeterministic(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture(t, Config{})

	text := "Stable content that never changes between runs."
	_, err := f.engine.Ingest(ctx, "doc.md", text)
	require.NoError(t, err)

	first, err := f.index.Search(ctx, "sources", mustEmbed(t, text), []string{"doc.md"}, 10)
	require.NoError(t, err)

	_, err = f.engine.Ingest(ctx, "doc.md", text)
	require.NoError(t, err)

	second, err := f.index.Search(ctx, "sources", mustEmbed(t, text), []string{"doc.md"}, 10)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestEngine_EmbeddingFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture(t, Config{})
	f.embedder.FailWith(errors.New("quota exhausted"))

	_, err := f.engine.Ingest(ctx, "doc.md", "Content that will never be embedded.")
	require.ErrorIs(t, err, embedder.ErrService)

	count, err := f.engine.ChunkCount(ctx, "doc.md")
	require.NoError(t, err)
	assert.Zero(t, count, "failed ingestion must not leave partial entries")
}

func TestEngine_GenerationFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture(t, Config{})

	_, err := f.engine.Ingest(ctx, "doc.md", "Indexed content to retrieve.")
	require.NoError(t, err)

	f.model.FailWith(errors.New("model overloaded"))

	_, err = f.engine.AnswerQuestion(ctx, "What is indexed?", []string{"doc.md"})
	require.ErrorIs(t, err, ErrAnswerGeneration)
}

func TestEngine_DeleteSource(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture(t, Config{})

	_, err := f.engine.Ingest(ctx, "doc.md", "Content that will be deleted.")
	require.NoError(t, err)

	require.NoError(t, f.engine.DeleteSource(ctx, "doc.md"))

	count, err := f.engine.ChunkCount(ctx, "doc.md")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Deleting again is a no-op.
	require.NoError(t, f.engine.DeleteSource(ctx, "doc.md"))
}

func TestEngine_ConcurrentIngestSameSource(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	ctx := context.Background()
	f := newTestFixture(t, Config{
		Chunking: chunker.Config{MaxRunes: 40, OverlapRunes: 5},
	})

	short := "Tiny version."
	long := strings.Repeat("A much longer version with several sentences. ", 8)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		text := short
		if i%2 == 0 {
			text = long
		}
		go func() {
			defer wg.Done()
			_, err := f.engine.Ingest(ctx, "doc.md", text)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Whichever write landed last, the index must hold exactly one complete
	// version, never an interleaving of the two.
	shortChunks := chunker.New(chunker.Config{MaxRunes: 40, OverlapRunes: 5}).Split(short)
	longChunks := chunker.New(chunker.Config{MaxRunes: 40, OverlapRunes: 5}).Split(long)

	count, err := f.engine.ChunkCount(ctx, "doc.md")
	require.NoError(t, err)
	assert.Contains(t, []int{len(shortChunks), len(longChunks)}, count)
}

func TestEngine_ValidatesInput(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture(t, Config{})

	_, err := f.engine.Ingest(ctx, "", "text")
	require.Error(t, err)

	_, err = f.engine.AnswerQuestion(ctx, "", []string{"doc.md"})
	require.Error(t, err)
}

func mustEmbed(t *testing.T, text string) []float32 {
	t.Helper()
	vecs, err := embedder.New(testutil.NewHashEmbedder(8),
		embedder.Config{Dimension: 8, RequestsPerSecond: 1000}, log.NewNop()).
		EmbedBatch(context.Background(), []string{text})
	require.NoError(t, err)
	return vecs[0]
}
