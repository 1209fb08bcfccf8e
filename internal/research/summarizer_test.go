package research

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkbase/inkbase/internal/log"
	"github.com/inkbase/inkbase/internal/testutil"
)

func newTestSummarizer(t *testing.T) (*Summarizer, *testutil.MockModel) {
	t.Helper()

	g := genkit.Init(context.Background())
	model := testutil.NewMockModel("fallback briefing")
	model.Register(g)

	return NewSummarizer(g, testutil.ModelName, log.NewNop()), model
}

func TestSummarizer_Summarize(t *testing.T) {
	s, model := newTestSummarizer(t)
	model.AddResponse("photosynthesis", "Photosynthesis converts light into chemical energy.\nIt happens in chloroplasts.")

	summary, err := s.Summarize(context.Background(), "photosynthesis")
	require.NoError(t, err)

	assert.Contains(t, summary, "chloroplasts")
	require.Len(t, model.Calls(), 1)
	assert.Contains(t, model.Calls()[0].Prompt, "photosynthesis")
}

func TestSummarizer_EmptyTopic(t *testing.T) {
	s, model := newTestSummarizer(t)

	_, err := s.Summarize(context.Background(), "   ")
	require.ErrorIs(t, err, ErrSummarize)
	assert.Zero(t, model.CallCount())
}

func TestSummarizer_ModelFailure(t *testing.T) {
	s, model := newTestSummarizer(t)
	model.FailWith(errors.New("provider down"))

	_, err := s.Summarize(context.Background(), "volcanoes")
	require.ErrorIs(t, err, ErrSummarize)
}
