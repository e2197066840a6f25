package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockAdapter returns deterministic responses for local runs and tests.
// Responses can be keyed by prompt substring or queued in order.
type MockAdapter struct {
	mu              sync.Mutex
	rules           []mockRule
	queue           []string
	defaultResponse string
	err             error
	prompts         []string
}

type mockRule struct {
	contains string
	content  string
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{defaultResponse: "mock response"}
}

// Respond registers a canned response for prompts containing the substring.
func (a *MockAdapter) Respond(contains, content string) *MockAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, mockRule{contains: contains, content: content})
	return a
}

// Enqueue appends responses returned in order before substring rules apply.
func (a *MockAdapter) Enqueue(contents ...string) *MockAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = append(a.queue, contents...)
	return a
}

// Fail makes every Generate call return err.
func (a *MockAdapter) Fail(err error) *MockAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
	return a
}

// Prompts returns all prompts seen so far.
func (a *MockAdapter) Prompts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.prompts))
	copy(out, a.prompts)
	return out
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Generate returns a deterministic completion for the prompt.
func (a *MockAdapter) Generate(_ context.Context, model string, prompt string) (*Completion, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompts = append(a.prompts, prompt)

	if a.err != nil {
		return nil, a.err
	}
	if model == "" {
		model = "mock-1"
	}
	if len(a.queue) > 0 {
		content := a.queue[0]
		a.queue = a.queue[1:]
		return &Completion{Content: content, Model: model}, nil
	}
	for _, rule := range a.rules {
		if rule.contains != "" && strings.Contains(prompt, rule.contains) {
			return &Completion{Content: rule.content, Model: model}, nil
		}
	}
	content := fmt.Sprintf("%s\n%s", a.defaultResponse, prompt)
	return &Completion{Content: content, Model: model}, nil
}
