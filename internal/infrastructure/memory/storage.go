package memory

import (
	"context"
	"maps"
	"sync"
)

// Storage is a process-local key-value store. It survives store re-creation within the
// same process, which is what tests and STORAGE=memory need.
type Storage struct {
	mu     sync.RWMutex
	values map[string]string
	writes int
}

func NewStorage() *Storage {
	return &Storage{
		values: make(map[string]string),
	}
}

// NewStorageWith seeds the store, e.g. with a previously serialized cart.
func NewStorageWith(seed map[string]string) *Storage {
	s := NewStorage()
	maps.Copy(s.values, seed)
	return s
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Storage) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	s.writes++
	return nil
}

// Writes reports how many successful Set calls happened.
func (s *Storage) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
