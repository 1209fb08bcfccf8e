package config

import "fmt"

// Validate checks configuration values against their allowed ranges.
// Returns the first violation found, wrapped around a sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: %q (must be gemini, ollama, or openai)", ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	if c.EmbedderDimension < 1 || c.EmbedderDimension > 8192 {
		return fmt.Errorf("%w: %d (must be 1-8192)", ErrInvalidDimension, c.EmbedderDimension)
	}

	if c.ChunkRunes < 100 || c.ChunkRunes > 100_000 {
		return fmt.Errorf("%w: chunk_runes %d (must be 100-100000)", ErrInvalidChunking, c.ChunkRunes)
	}
	if c.OverlapRunes < 0 || c.OverlapRunes >= c.ChunkRunes {
		return fmt.Errorf("%w: overlap_runes %d (must be 0..chunk_runes-1)", ErrInvalidChunking, c.OverlapRunes)
	}
	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: %d (must be 1-100)", ErrInvalidTopK, c.TopK)
	}
	if c.ContextRunes < c.ChunkRunes {
		return fmt.Errorf("%w: context_runes %d smaller than chunk_runes %d", ErrInvalidContextBudget, c.ContextRunes, c.ChunkRunes)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	return nil
}
