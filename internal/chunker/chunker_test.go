package chunker

import (
	"strings"
	"testing"
)

func TestSplit_Empty(t *testing.T) {
	c := New(Default())

	for _, input := range []string{"", "   ", "\n\n\t"} {
		if got := c.Split(input); len(got) != 0 {
			t.Errorf("Split(%q) = %d chunks, want 0", input, len(got))
		}
	}
}

func TestSplit_ShortTextIsSingleChunk(t *testing.T) {
	c := New(Default())

	text := "The sky is blue. Grass is green."
	chunks := c.Split(text)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("chunk = %q, want %q", chunks[0], text)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c := New(Config{MaxRunes: 120, OverlapRunes: 20})

	text := strings.Repeat("A sentence that fills space. Another one follows it. ", 40)

	first := c.Split(text)
	for i := 0; i < 5; i++ {
		again := c.Split(text)
		if len(again) != len(first) {
			t.Fatalf("run %d: %d chunks, first run had %d", i, len(again), len(first))
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("run %d chunk %d differs:\n%q\n%q", i, j, again[j], first[j])
			}
		}
	}
}

func TestSplit_RespectsMaxSize(t *testing.T) {
	cfg := Config{MaxRunes: 100, OverlapRunes: 10}
	c := New(cfg)

	text := strings.Repeat("word after word keeps flowing onward. ", 50)
	for i, chunk := range c.Split(text) {
		if n := len([]rune(chunk)); n > cfg.MaxRunes {
			t.Errorf("chunk %d has %d runes, max is %d", i, n, cfg.MaxRunes)
		}
	}
}

func TestSplit_PrefersSentenceBoundary(t *testing.T) {
	c := New(Config{MaxRunes: 60, OverlapRunes: 0})

	text := "First sentence sits here. Second one is right here. Third sentence closes it out now."
	chunks := c.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], ".") {
		t.Errorf("first chunk should end at a sentence boundary, got %q", chunks[0])
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	c := New(Config{MaxRunes: 120, OverlapRunes: 0})

	para := strings.Repeat("x", 80)
	text := para + "\n\n" + para

	chunks := c.Split(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != para || chunks[1] != para {
		t.Errorf("chunks should split at the blank line, got %q", chunks)
	}
}

// TestSplit_CoversSource verifies that every part of the input text appears in
// some chunk: walking the chunks in order, each one is found in the source at
// or before the end of the previous match (the overlap), with no gaps.
func TestSplit_CoversSource(t *testing.T) {
	cfg := Config{MaxRunes: 150, OverlapRunes: 30}
	c := New(cfg)

	text := strings.TrimSpace(strings.Repeat("Coverage of the original text matters for retrieval. ", 30))
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	covered := 0 // source is covered up to this rune offset
	src := []rune(text)
	for i, chunk := range chunks {
		// The true chunk start is at most OverlapRunes before the end of
		// covered text; starting the search there avoids false matches in
		// the repetitive input.
		idx := indexFrom(src, []rune(chunk), covered-cfg.OverlapRunes-5)
		if idx < 0 {
			t.Fatalf("chunk %d not found in source: %q", i, chunk)
		}
		if idx > covered {
			t.Fatalf("gap before chunk %d: coverage ended at %d, chunk starts at %d", i, covered, idx)
		}
		if end := idx + len([]rune(chunk)); end > covered {
			covered = end
		}
	}
	if covered < len(src) {
		t.Errorf("chunks cover %d of %d runes", covered, len(src))
	}
}

// indexFrom finds needle in haystack at or after the given offset (clamped to
// zero), returning the rune index or -1.
func indexFrom(haystack, needle []rune, from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func TestSplit_OverlapCarriesTail(t *testing.T) {
	cfg := Config{MaxRunes: 100, OverlapRunes: 30}
	c := New(cfg)

	text := strings.Repeat("alpha beta gamma delta epsilon zeta eta theta. ", 20)
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// The head of each later chunk must occur near the tail of its
	// predecessor: that shared text is the overlap.
	for i := 1; i < len(chunks); i++ {
		head := []rune(chunks[i])
		if len(head) > 10 {
			head = head[:10]
		}
		if !strings.Contains(chunks[i-1], string(head)) {
			t.Errorf("chunk %d head %q not found in chunk %d (no overlap)", i, string(head), i-1)
		}
	}
}

func TestNew_ZeroConfigFallsBack(t *testing.T) {
	c := New(Config{})
	if c.cfg.MaxRunes != Default().MaxRunes {
		t.Errorf("MaxRunes = %d, want default %d", c.cfg.MaxRunes, Default().MaxRunes)
	}
	if c.cfg.OverlapRunes >= c.cfg.MaxRunes {
		t.Errorf("overlap %d must be below max %d", c.cfg.OverlapRunes, c.cfg.MaxRunes)
	}
}
