package kv

import "sync"

// Memory is an in-memory KV used in tests and as the degraded-mode store
// when no durable collaborator is available.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte

	// FailWrites forces Set to return an error; tests use this to exercise
	// degraded persistence paths.
	FailWrites error
}

// NewMemory creates an empty in-memory KV.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get returns the stored value for key, or ok=false if absent.
func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set writes value under key.
func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}
