package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockModel provides deterministic generative responses for tests. It
// matches the user prompt against registered patterns and returns the
// corresponding response, or the fallback when nothing matches. In echo
// mode it returns the full prompt text instead, which lets tests assert
// that retrieved context reached the model.
//
// Thread-safe for concurrent use.
type MockModel struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	echo     bool
	calls    []ModelCall
	err      error
}

type mockRule struct {
	pattern  string // substring match, case-insensitive
	response string
}

// ModelCall records a single generate invocation.
type ModelCall struct {
	Prompt   string // full user prompt text
	System   string // system instruction, if any
	Response string
}

// NewMockModel creates a mock with the given fallback response.
func NewMockModel(fallback string) *MockModel {
	return &MockModel{fallback: fallback}
}

// AddResponse registers a pattern-response pair. Patterns are checked in
// registration order; first match wins.
func (m *MockModel) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), response: response})
}

// SetEcho makes the model return the entire user prompt verbatim.
func (m *MockModel) SetEcho(echo bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.echo = echo
}

// FailWith makes every subsequent generate call return err.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns a copy of all recorded calls.
func (m *MockModel) Calls() []ModelCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]ModelCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// CallCount returns how many generate calls the model has served.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// ModelName is the name mock models register under.
const ModelName = "mock/test-model"

// Register defines the mock as a Genkit model named ModelName.
func (m *MockModel) Register(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, ModelName, &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *MockModel) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText, systemText string
	for _, msg := range req.Messages {
		switch msg.Role {
		case ai.RoleUser:
			userText = msg.Text()
		case ai.RoleSystem:
			systemText = msg.Text()
		}
	}

	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return nil, err
	}

	responseText := m.fallback
	if m.echo {
		responseText = userText
	} else {
		lower := strings.ToLower(userText)
		for _, r := range m.rules {
			if strings.Contains(lower, r.pattern) {
				responseText = r.response
				break
			}
		}
	}

	m.calls = append(m.calls, ModelCall{
		Prompt:   userText,
		System:   systemText,
		Response: responseText,
	})
	m.mu.Unlock()

	if cb != nil {
		_ = cb(ctx, &ai.ModelResponseChunk{
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		})
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		},
		FinishReason: ai.FinishReasonStop,
	}, nil
}
