package domain

// Contratos de persistência do estado mutável de admissão.
//
// Todo estado mutável (contadores, blocklist, falhas, tokens) vive em um store
// compartilhado acessível pela rede, para que workers em máquinas diferentes
// enxerguem a mesma visão. As interfaces aqui são o único ponto de acesso a
// esse store — é onde a exigência de atomicidade por chave é imposta.

import (
	"context"
	"time"
)

// CounterResult é a resposta de uma tomada de vaga na janela deslizante.
type CounterResult struct {
	Allowed   bool
	Remaining int
	// RetryAfter é preenchido apenas quando negado (mínimo de 1s).
	RetryAfter time.Duration
}

// CounterStore mantém contadores de janela deslizante baseados em log de
// instantes (não em buckets fixos, para evitar rajadas na borda da janela).
//
// Take executa poda + checagem + registro de forma efetivamente atômica por
// chave: duas requisições concorrentes não podem ambas enxergar "há vaga"
// quando só resta uma. Uma tentativa negada não consome cota.
type CounterStore interface {
	Take(ctx context.Context, key Key, window time.Duration, max int) (CounterResult, error)
	// Count é leitura pura (inspeção administrativa), sem consumir cota.
	Count(ctx context.Context, key Key, window time.Duration) (int, error)
}

// BlockEntry é uma entrada da blocklist. ExpiresAt zero = permanente
// (exclusivo do caminho administrativo, nunca da escalação automática).
type BlockEntry struct {
	Identity   string    `json:"identity"`
	Reason     string    `json:"reason"`
	InsertedAt time.Time `json:"inserted_at"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
}

// Expired informa se a entrada já venceu no instante dado.
func (e BlockEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// BlockStore persiste a blocklist de identidades.
// Get retorna (nil, nil) quando não há entrada.
type BlockStore interface {
	Get(ctx context.Context, identity string) (*BlockEntry, error)
	Put(ctx context.Context, entry BlockEntry) error
	Delete(ctx context.Context, identity string) error
}

// FailureStore conta falhas por (identidade, tipo de evento) dentro de uma
// janela rolante. Incr deve ser atômico (duas falhas concorrentes contam duas).
type FailureStore interface {
	Incr(ctx context.Context, identity, event string, window time.Duration) (int, error)
	Reset(ctx context.Context, identity, event string) error
}

// Token é o token anti-forgery de um dono (sessão ou usuário).
type Token struct {
	Value     string    `json:"value"`
	Owner     string    `json:"owner"`
	IssuedAt  time.Time `json:"issued_at"`
	RotatesAt time.Time `json:"rotates_at"`
}

// TokenStore persiste o token CSRF ativo por dono.
// Get retorna (nil, nil) quando não há token.
type TokenStore interface {
	Get(ctx context.Context, owner string) (*Token, error)
	Save(ctx context.Context, token Token, ttl time.Duration) error
	Delete(ctx context.Context, owner string) error
}

// Event representa uma decisão de admissão já tomada, para contabilização.
//
// Observação: cuidado com cardinalidade (salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type Event struct {
	Key    Key
	Action Action
	Reason Reason

	Method string
	Path   string

	At time.Time
}

// EventStore é a estratégia de persistência para eventos de decisão.
//
// Implementações podem armazenar em Redis, memória, Prometheus, etc.
// O middleware deve tratar erro como best-effort (não derrubar request).
type EventStore interface {
	Record(ctx context.Context, ev Event) error
}
