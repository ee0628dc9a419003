package memory

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/pkg/answers"
	"github.com/aretw0/arbor/pkg/ports"
)

// Store implements ports.UserDataStore in memory.
// Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates a new in-memory user data store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Save persists the answer store under its user key. The store is
// serialized on write so later mutations of the argument do not leak in.
func (s *Store) Save(ctx context.Context, data *answers.Store) error {
	encoded, err := data.Export()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[data.Key] = encoded
	return nil
}

// Load retrieves and rebuilds the answer store for a user key.
func (s *Store) Load(ctx context.Context, userKey string) (*answers.Store, error) {
	s.mu.RLock()
	encoded, ok := s.data[userKey]
	s.mu.RUnlock()
	if !ok {
		return nil, ports.ErrUserDataNotFound
	}
	return answers.Import(encoded)
}

// Delete removes the record for a user key.
func (s *Store) Delete(ctx context.Context, userKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, userKey)
	return nil
}
