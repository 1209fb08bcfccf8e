// Package chunker splits raw source text into retrieval-sized segments.
//
// Splitting is a pure function of the input: the same text always produces
// the same chunk sequence. Chunk identifiers are positional, so this
// determinism is what lets re-ingestion overwrite instead of duplicate.
//
// Sizes are measured in runes, not tokens. An exact tokenizer would tie the
// chunker to one embedding model; rune counts are a model-independent
// approximation that errs on the small side for Latin text.
package chunker

import (
	"strings"
)

// Config controls segmentation.
type Config struct {
	// MaxRunes is the maximum chunk length. Text longer than this is split.
	MaxRunes int

	// OverlapRunes is how many trailing runes of a chunk are repeated at
	// the start of the next one, preserving context across boundaries.
	// Must be smaller than MaxRunes.
	OverlapRunes int
}

// Default returns the standard configuration: 1200-rune chunks with a
// 200-rune overlap.
func Default() Config {
	return Config{MaxRunes: 1200, OverlapRunes: 200}
}

// Chunker segments text according to its Config.
type Chunker struct {
	cfg Config
}

// New creates a Chunker. Zero or negative config fields fall back to Default.
func New(cfg Config) *Chunker {
	def := Default()
	if cfg.MaxRunes <= 0 {
		cfg.MaxRunes = def.MaxRunes
	}
	if cfg.OverlapRunes < 0 || cfg.OverlapRunes >= cfg.MaxRunes {
		cfg.OverlapRunes = def.OverlapRunes
		if cfg.OverlapRunes >= cfg.MaxRunes {
			cfg.OverlapRunes = cfg.MaxRunes / 4
		}
	}
	return &Chunker{cfg: cfg}
}

// Split segments text into ordered chunks.
//
// Whitespace-only input yields nil. Input no longer than MaxRunes yields a
// single chunk equal to the trimmed input. Longer input is cut into windows
// of at most MaxRunes runes, preferring to break at a paragraph boundary,
// then at a sentence end, falling back to a hard cut. Each chunk after the
// first starts with the last OverlapRunes runes of the previous window.
func (c *Chunker) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= c.cfg.MaxRunes {
		return []string{trimmed}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.cfg.MaxRunes
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(runes) {
			break
		}

		// Next window begins OverlapRunes before the cut, but always
		// makes forward progress.
		next := end - c.cfg.OverlapRunes
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// breakPoint picks the cut position for the window runes[start:limit],
// scanning backward from the limit for a semantic boundary. The boundary
// must fall in the second half of the window so pathological text (no
// boundaries at all) still produces full-sized chunks.
func breakPoint(runes []rune, start, limit int) int {
	floor := start + (limit-start)/2

	// Paragraph boundary: blank line.
	for i := limit - 1; i > floor; i-- {
		if runes[i] == '\n' && i > 0 && runes[i-1] == '\n' {
			return i + 1
		}
	}

	// Sentence end followed by whitespace.
	for i := limit - 1; i > floor; i-- {
		if isSentenceEnd(runes[i]) && i+1 < limit && isSpace(runes[i+1]) {
			return i + 1
		}
	}

	// Any whitespace.
	for i := limit - 1; i > floor; i-- {
		if isSpace(runes[i]) {
			return i + 1
		}
	}

	return limit
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
