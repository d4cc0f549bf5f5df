package history

import (
	"context"
	"sync"
)

// MemoryStore keeps rings in process memory; history is lost on restart
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	rings    map[string][]string
}

func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{capacity: capacity, rings: make(map[string][]string)}
}

func (s *MemoryStore) Load(ctx context.Context, key string) (*Ring, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := NewRing(s.capacity)
	for _, entry := range s.rings[key] {
		ring.Push(entry)
	}
	return ring, nil
}

func (s *MemoryStore) Save(ctx context.Context, key string, ring *Ring) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rings[key] = ring.Entries()
	return nil
}
