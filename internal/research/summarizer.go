package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ErrSummarize reports a failed summary generation.
var ErrSummarize = errors.New("topic summary failed")

const summarizerSystemPrompt = `You write compact factual briefings for a writer's research notes.
Stick to well-established facts. No speculation, no filler, no preamble.`

// Summarizer produces short factual briefings on a topic, suitable for
// ingesting as a source when no better material exists.
type Summarizer struct {
	g         *genkit.Genkit
	modelName string
	logger    *slog.Logger
}

// NewSummarizer creates a Summarizer using the given generation model.
func NewSummarizer(g *genkit.Genkit, modelName string, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{g: g, modelName: modelName, logger: logger}
}

// Summarize returns a 5-6 line factual briefing on topic.
func (s *Summarizer) Summarize(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("%w: empty topic", ErrSummarize)
	}

	resp, err := genkit.Generate(ctx, s.g,
		ai.WithModelName(s.modelName),
		ai.WithSystem(summarizerSystemPrompt),
		ai.WithPrompt("Explain the following topic clearly in 5-6 short factual lines:\n\n"+topic),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSummarize, err)
	}

	summary := strings.TrimSpace(resp.Text())
	if summary == "" {
		return "", fmt.Errorf("%w: model returned empty summary for %q", ErrSummarize, topic)
	}

	s.logger.Debug("summarized topic", "topic", topic, "runes", len([]rune(summary)))
	return summary, nil
}
