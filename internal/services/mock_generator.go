package services

import (
	"context"
	"sync"

	"github.com/fablegate/fable/pkg/prompts"
	"github.com/fablegate/fable/pkg/story"
)

// MockGenerator is a mock implementation of Generator for testing.
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, prompt prompts.Prompt, opts GenerateOptions) (*story.NodeDraft, error)

	// Track calls for testing
	GenerateCalls []prompts.Prompt

	mu sync.Mutex // protects fields above
}

// Ensure MockGenerator implements Generator
var _ Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		GenerateCalls: make([]prompts.Prompt, 0),
	}
}

// Generate records the call and delegates to GenerateFunc. With no
// GenerateFunc set it returns a minimal valid draft.
func (m *MockGenerator) Generate(ctx context.Context, prompt prompts.Prompt, opts GenerateOptions) (*story.NodeDraft, error) {
	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, prompt)
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, opts)
	}
	return &story.NodeDraft{
		Title:   "Mock Scene",
		Content: "Mock content.",
		Choices: []story.Choice{{ID: "choice1", Text: "continue"}},
	}, nil
}

// CallCount returns how many Generate calls were made.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.GenerateCalls)
}
