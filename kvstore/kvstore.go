// Package kvstore provides the durable key-value storage used to remember
// build fingerprints across invocations.
package kvstore

import (
	"sync"

	"github.com/goccy/go-json"
)

// Store is a JSON value store keyed by string.
type Store interface {
	// Get decodes the value stored under key into v. It reports false when
	// the key is absent, leaving v untouched.
	Get(key string, v any) (bool, error)
	// Update stores v under key, replacing any previous value.
	Update(key string, v any) error
}

// Memory is an in-process Store. Values are kept encoded so callers never
// share state with the store.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Get(key string, v any) (bool, error) {
	m.mu.Lock()
	data, ok := m.values[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func (m *Memory) Update(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.values[key] = data
	m.mu.Unlock()
	return nil
}
