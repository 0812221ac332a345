package synthesis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MockSynthesizer is a local backend used in tests and when no ElevenLabs key
// is configured.
type MockSynthesizer struct {
	calls atomic.Int64

	mu   sync.Mutex
	fail map[string]error
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{fail: make(map[string]error)}
}

// FailWith makes synthesis of text return err.
func (m *MockSynthesizer) FailWith(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[text] = err
}

func (m *MockSynthesizer) Calls() int64 { return m.calls.Load() }

func (m *MockSynthesizer) Synthesize(_ context.Context, text, voiceID string) ([]byte, error) {
	m.calls.Add(1)
	m.mu.Lock()
	err := m.fail[text]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("mock-audio:%s:%s", voiceID, text)), nil
}
