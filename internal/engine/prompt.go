package engine

import (
	"fmt"
	"strings"

	"github.com/inkbase/inkbase/internal/index"
)

const answerSystemPrompt = `You are a research assistant answering questions about a writer's source material.

Answer using ONLY the numbered excerpts provided. Do not use outside knowledge.
If the excerpts do not contain the answer, say so plainly instead of guessing.
Keep answers concise and cite excerpt numbers like [1] where relevant.`

// InsufficientContextAnswer is returned verbatim when retrieval finds
// nothing to ground an answer on. No model call is made in that case.
const InsufficientContextAnswer = "I don't have enough indexed material to answer that question."

// buildContext renders retrieved excerpts into the prompt block, best match
// first, within a rune budget. When the budget runs out, whole excerpts are
// dropped from the bottom of the ranking; the excerpt on the boundary is cut
// rather than dropped if a useful amount of it still fits.
func buildContext(matches []index.Match, budgetRunes int) string {
	var b strings.Builder
	remaining := budgetRunes

	for i, m := range matches {
		header := fmt.Sprintf("[%d] (source: %s)\n", i+1, m.SourceID)
		cost := len([]rune(header)) + len([]rune(m.Text)) + 2

		if cost <= remaining {
			b.WriteString(header)
			b.WriteString(m.Text)
			b.WriteString("\n\n")
			remaining -= cost
			continue
		}

		room := remaining - len([]rune(header)) - 2
		if room >= 200 {
			runes := []rune(m.Text)
			b.WriteString(header)
			b.WriteString(string(runes[:room]))
			b.WriteString("\n\n")
		}
		break
	}

	return strings.TrimRight(b.String(), "\n")
}

func buildUserPrompt(question, contextBlock string) string {
	var b strings.Builder
	b.WriteString("Excerpts from the indexed sources:\n\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
