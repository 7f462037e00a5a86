package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
)

var _ domain.TokenStore = (*MemoryTokenStore)(nil)

// MemoryTokenStore guarda o token CSRF ativo por dono, com TTL avaliado na
// leitura.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]storedToken
	now    func() time.Time
}

type storedToken struct {
	token     domain.Token
	expiresAt time.Time
}

type MemoryTokenOption func(*MemoryTokenStore)

func WithTokenClock(now func() time.Time) MemoryTokenOption {
	return func(s *MemoryTokenStore) { s.now = now }
}

func NewMemoryTokenStore(opts ...MemoryTokenOption) *MemoryTokenStore {
	s := &MemoryTokenStore{
		tokens: make(map[string]storedToken),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryTokenStore) Get(_ context.Context, owner string) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tokens[owner]
	if !ok {
		return nil, nil
	}
	if !st.expiresAt.IsZero() && !s.now().Before(st.expiresAt) {
		delete(s.tokens, owner)
		return nil, nil
	}
	out := st.token
	return &out, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, token domain.Token, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := storedToken{token: token}
	if ttl > 0 {
		st.expiresAt = s.now().Add(ttl)
	}
	s.tokens[token.Owner] = st
	return nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, owner)
	return nil
}
