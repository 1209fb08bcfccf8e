// Package testutil provides shared test infrastructure: a deterministic
// embedder, a pattern-matching generative model, and a pgvector-enabled
// postgres container, all usable across package tests.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// HashEmbedder is a deterministic ai.Embedder for tests: the vector for a
// text is derived from its SHA-256 hash, so identical text always embeds to
// the identical unit vector and no network is involved.
//
// Thread-safe for concurrent use.
type HashEmbedder struct {
	mu        sync.Mutex
	dimension int
	err       error
	calls     int
	inputs    []string
}

// NewHashEmbedder creates an embedder producing vectors of the given size.
func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dimension: dimension}
}

// FailWith makes every subsequent Embed call return err (nil restores
// normal operation).
func (e *HashEmbedder) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Calls returns the number of Embed invocations so far.
func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Inputs returns a copy of every text embedded so far, in call order.
func (e *HashEmbedder) Inputs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]string, len(e.inputs))
	copy(cp, e.inputs)
	return cp
}

// Name implements ai.Embedder.
func (e *HashEmbedder) Name() string { return "test/hash-embedder" }

// Register implements ai.Embedder. No-op for testing.
func (e *HashEmbedder) Register(r api.Registry) {}

// Embed implements ai.Embedder.
func (e *HashEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	if e.err != nil {
		return nil, e.err
	}

	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		var text string
		if len(doc.Content) > 0 {
			text = doc.Content[0].Text
		}
		e.inputs = append(e.inputs, text)
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{
			Embedding: hashVector(text, e.dimension),
		})
	}
	return resp, nil
}

// hashVector expands the SHA-256 of text into a normalized vector.
func hashVector(text string, dimension int) []float32 {
	vec := make([]float32, dimension)

	// Stretch the digest into enough bytes by hash chaining.
	need := dimension * 4
	buf := make([]byte, 0, need+sha256.Size)
	block := sha256.Sum256([]byte(text))
	for len(buf) < need {
		buf = append(buf, block[:]...)
		block = sha256.Sum256(block[:])
	}

	var norm float64
	for i := 0; i < dimension; i++ {
		bits := binary.BigEndian.Uint32(buf[i*4:])
		v := float64(int32(bits)) / math.MaxInt32
		vec[i] = float32(v)
		norm += v * v
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
