package infra

import (
	"context"
	"sync"

	"admission-gateway/middleware/admission/domain"
)

// MemoryBlockStore guarda a blocklist em um map protegido por mutex.
// A expiração é avaliada na leitura (quem decide é a camada application).
type MemoryBlockStore struct {
	mu      sync.Mutex
	entries map[string]domain.BlockEntry
}

func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{entries: make(map[string]domain.BlockEntry)}
}

func (s *MemoryBlockStore) Get(_ context.Context, identity string) (*domain.BlockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[identity]
	if !ok {
		return nil, nil
	}
	out := entry
	return &out, nil
}

func (s *MemoryBlockStore) Put(_ context.Context, entry domain.BlockEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Identity] = entry
	return nil
}

func (s *MemoryBlockStore) Delete(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identity)
	return nil
}
