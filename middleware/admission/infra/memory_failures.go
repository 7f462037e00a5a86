package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
)

var _ domain.FailureStore = (*MemoryFailureStore)(nil)

// MemoryFailureStore conta falhas por (identidade, evento) em memória.
// A janela rolante reinicia quando vence ou em Reset.
type MemoryFailureStore struct {
	mu      sync.Mutex
	records map[string]*failureRecord
	now     func() time.Time
}

type failureRecord struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

type MemoryFailureOption func(*MemoryFailureStore)

func WithFailureClock(now func() time.Time) MemoryFailureOption {
	return func(s *MemoryFailureStore) { s.now = now }
}

func NewMemoryFailureStore(opts ...MemoryFailureOption) *MemoryFailureStore {
	s := &MemoryFailureStore{
		records: make(map[string]*failureRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func failureKey(identity, event string) string { return identity + "\x00" + event }

func (s *MemoryFailureStore) Incr(_ context.Context, identity, event string, window time.Duration) (int, error) {
	now := s.now()
	key := failureKey(identity, event)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[key]
	if rec == nil || now.Sub(rec.windowStart) > rec.window {
		rec = &failureRecord{windowStart: now, window: window}
		s.records[key] = rec
	}
	rec.count++
	return rec.count, nil
}

func (s *MemoryFailureStore) Reset(_ context.Context, identity, event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, failureKey(identity, event))
	return nil
}
