package domain

// Limiter representa algo que pode decidir, localmente e sem I/O, se uma ação
// é permitida agora. Usado como pré-filtro de processo antes de qualquer
// round-trip ao store compartilhado.
//
// Observação: a implementação pode ser token-bucket, leaky-bucket, etc.
// A camada de infra pode usar libs como golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter local por chave (ex: IP, usuário).
// A implementação pode manter cache, TTL, etc.
type LimiterStore interface {
	Get(Key) Limiter
}
