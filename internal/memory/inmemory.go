package memory

import (
	"context"
	"strings"
	"sync"
)

// InMemoryStore is a simple in-process transcript store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*strings.Builder
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*strings.Builder)}
}

func (s *InMemoryStore) Read(_ context.Context, id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.records[id]
	if !ok {
		return "", nil
	}
	return b.String(), nil
}

func (s *InMemoryStore) Append(_ context.Context, id, text string) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.records[id]
	if !ok {
		b = &strings.Builder{}
		s.records[id] = b
	}
	b.WriteString(text)
	return nil
}

func (s *InMemoryStore) Reset(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
