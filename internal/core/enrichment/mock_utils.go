package enrichment

import (
	"context"
	"strings"
	"sync"
)

type MockLLMClient struct {
	Response string
	Err      error
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// MockProvider upper-cases text unless the section has a scripted error.
// A section listed in Block waits for the context to end.
type MockProvider struct {
	Errors map[string]error
	Block  map[string]bool

	mu    sync.Mutex
	Calls []string
}

func (m *MockProvider) Polish(ctx context.Context, text string, src SourceContext) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, src.Section)
	m.mu.Unlock()

	if m.Block[src.Section] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := m.Errors[src.Section]; err != nil {
		return "", err
	}
	return strings.ToUpper(text), nil
}
