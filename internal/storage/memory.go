// internal/storage/memory.go
package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-process KV used by tests and dry runs
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]string
	writes int

	getErr    error
	setErr    error
	removeErr error
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value
	s.writes++
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.data, key)
	return nil
}

// Writes reports how many successful Set calls the store has seen
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Keys returns a snapshot of stored keys
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// FailReads makes every Get return err until called again with nil
func (s *MemoryStore) FailReads(err error) {
	s.mu.Lock()
	s.getErr = err
	s.mu.Unlock()
}

// FailWrites makes every Set return err until called again with nil
func (s *MemoryStore) FailWrites(err error) {
	s.mu.Lock()
	s.setErr = err
	s.mu.Unlock()
}

// FailRemoves makes every Remove return err until called again with nil
func (s *MemoryStore) FailRemoves(err error) {
	s.mu.Lock()
	s.removeErr = err
	s.mu.Unlock()
}
