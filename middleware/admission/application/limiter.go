package application

import (
	"context"
	"log/slog"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// Limiter aplica a janela deslizante de uma política sobre o CounterStore,
// com timeout curto por round-trip e a política de fail-open/fail-closed
// declarada pela própria Policy.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Limiter struct {
	Store domain.CounterStore
	// Timeout limita cada round-trip ao store; 0 usa 150ms. Um store pendurado
	// nunca pode travar requisições além desse limite.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Check decide se a chave ainda tem cota na janela da política.
// O bool retornado indica indisponibilidade do store: nesse caso o
// CounterResult já reflete o FailMode da política (allow ou deny), e o
// chamador deve traduzir a negação como falha genérica, não como cota.
func (l Limiter) Check(ctx context.Context, key domain.Key, p domain.Policy) (domain.CounterResult, bool) {
	if l.Store == nil {
		return domain.CounterResult{Allowed: true, Remaining: -1}, false
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 150 * time.Millisecond
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := l.Store.Take(cctx, key, p.Window, p.MaxRequests)
	if err == nil {
		return res, false
	}

	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(ctx, "counter store unavailable",
		"key", string(key),
		"fail_mode", string(p.FailMode),
		"error", err,
	)

	if p.FailMode == domain.FailClosed {
		return domain.CounterResult{Allowed: false, Remaining: 0}, true
	}
	return domain.CounterResult{Allowed: true, Remaining: -1}, true
}

// Peek inspeciona o uso atual de uma chave sem consumir cota (uso administrativo).
func (l Limiter) Peek(ctx context.Context, key domain.Key, window time.Duration) (int, error) {
	if l.Store == nil {
		return 0, nil
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 150 * time.Millisecond
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return l.Store.Count(cctx, key, window)
}
