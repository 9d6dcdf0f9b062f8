package mock

import (
	"context"
	"sync"

	"github.com/poiesic/policyrag/ai"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// CompleteFunc is called by Complete if set.
	// If nil, Complete returns Response.
	CompleteFunc func(ctx context.Context, messages []ai.ChatMessage, opts ai.GenerateOptions) (string, error)

	// Response is the default completion text.
	Response string

	mu        sync.Mutex
	callCount int
	calls     [][]ai.ChatMessage
}

// NewMockGenerator creates a mock generator that answers with a fixed text.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{Response: "mock response"}
}

// Complete records the messages and returns the injected or default completion.
func (m *MockGenerator) Complete(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.calls = append(m.calls, append([]ai.ChatMessage(nil), messages...))
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages, ai.ApplyGenerateOptions(opts...))
	}
	return m.Response, nil
}

// CallCount returns the number of Complete calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Calls returns the messages of every Complete call in order.
func (m *MockGenerator) Calls() [][]ai.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]ai.ChatMessage(nil), m.calls...)
}

// Reset clears recorded calls and injected behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.calls = nil
	m.CompleteFunc = nil
	m.Response = "mock response"
}
