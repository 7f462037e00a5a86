package infra

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"admission-gateway/middleware/admission/domain"
)

// LocalPrefilter é um token-bucket por chave, local ao processo, usado como
// camada de descarte barata na frente do store compartilhado: rajadas óbvias
// de uma mesma identidade caem aqui sem gastar round-trip de rede.
//
// Ele não substitui a janela deslizante distribuída — cada réplica enxerga só
// o próprio tráfego — e por isso deve ser mais frouxo que a política real.
type LocalPrefilter struct {
	mu           sync.Mutex
	entries      map[string]*prefilterEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type prefilterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type PrefilterOption func(*LocalPrefilter)

func WithIdleTTL(d time.Duration) PrefilterOption {
	return func(p *LocalPrefilter) { p.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) PrefilterOption {
	return func(p *LocalPrefilter) { p.cleanupEvery = d }
}

func NewLocalPrefilter(rps float64, burst int, opts ...PrefilterOption) *LocalPrefilter {
	p := &LocalPrefilter{
		entries:      make(map[string]*prefilterEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *LocalPrefilter) RPS() float64 { return float64(p.rps) }
func (p *LocalPrefilter) Burst() int   { return p.burst }

// Get implementa domain.LimiterStore.
func (p *LocalPrefilter) Get(key domain.Key) domain.Limiter {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if ent, ok := p.entries[string(key)]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(p.rps, p.burst)
	p.entries[string(key)] = &prefilterEntry{lim: lim, lastSeen: now}
	return lim
}

func (p *LocalPrefilter) Cleanup() {
	cutoff := time.Now().Add(-p.idleTTL)

	p.mu.Lock()
	defer p.mu.Unlock()

	for k, ent := range p.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(p.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (p *LocalPrefilter) StartJanitor(ctx DoneContext) {
	if p.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(p.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				p.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
