package testutils

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrMockCompletion is returned by MockCompleter when told to fail.
var ErrMockCompletion = errors.New("mock completion failure")

// MockCompleter returns canned completions. Responses are matched by the
// first key contained in the prompt, falling back to Default.
type MockCompleter struct {
	mu sync.Mutex

	Responses map[string]string
	Default   string

	// Fail causes every call to return ErrMockCompletion.
	Fail bool

	// Block makes calls wait for ctx to end.
	Block bool

	prompts []string
}

func NewMockCompleter(def string) *MockCompleter {
	return &MockCompleter{
		Responses: make(map[string]string),
		Default:   def,
	}
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	fail, block := m.Fail, m.Block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if fail {
		return "", ErrMockCompletion
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, resp := range m.Responses {
		if strings.Contains(prompt, key) {
			return resp, nil
		}
	}
	return m.Default, nil
}

// SetFail toggles failure mode safely while calls may be in flight.
func (m *MockCompleter) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail = fail
}

// Prompts returns the prompts received so far.
func (m *MockCompleter) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
