package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// MemoryCounter é a janela deslizante em memória: um slice ordenado de
// instantes por chave, protegido por mutex (a seção crítica cobre poda +
// checagem + registro, garantindo a mesma atomicidade por chave da versão
// Redis).
//
// Estado local ao processo: usar em testes e desenvolvimento.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[domain.Key]*counterEntry
	now     func() time.Time
}

type counterEntry struct {
	stamps    []time.Time
	expiresAt time.Time
}

type MemoryCounterOption func(*MemoryCounter)

// WithCounterClock injeta o relógio (testes de expiração de janela).
func WithCounterClock(now func() time.Time) MemoryCounterOption {
	return func(c *MemoryCounter) { c.now = now }
}

func NewMemoryCounter(opts ...MemoryCounterOption) *MemoryCounter {
	c := &MemoryCounter{
		entries: make(map[domain.Key]*counterEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Take implementa domain.CounterStore.
func (c *MemoryCounter) Take(_ context.Context, key domain.Key, window time.Duration, max int) (domain.CounterResult, error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entries[key]
	if entry == nil || !entry.expiresAt.After(now) {
		// Ausência (ou TTL vencido) equivale a janela vazia.
		entry = &counterEntry{}
		c.entries[key] = entry
	}

	entry.stamps = prune(entry.stamps, now.Add(-window))

	if len(entry.stamps) >= max {
		// Negado: não registra o instante — requisição negada não consome cota.
		retry := window - now.Sub(entry.stamps[0])
		if retry < time.Second {
			retry = time.Second
		}
		return domain.CounterResult{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}

	entry.stamps = append(entry.stamps, now)
	entry.expiresAt = now.Add(window)
	return domain.CounterResult{Allowed: true, Remaining: max - len(entry.stamps)}, nil
}

// Count implementa domain.CounterStore (leitura pura).
func (c *MemoryCounter) Count(_ context.Context, key domain.Key, window time.Duration) (int, error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entries[key]
	if entry == nil || !entry.expiresAt.After(now) {
		return 0, nil
	}
	cutoff := now.Add(-window)
	n := 0
	for _, ts := range entry.stamps {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

// prune descarta instantes anteriores ao corte (limite inferior inclusivo).
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && stamps[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}
