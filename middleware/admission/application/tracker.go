package application

import (
	"context"
	"log/slog"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// Tracker conta falhas por (identidade, tipo de evento) e escala para a
// blocklist quando o limiar é atingido dentro da janela rolante. Um sucesso
// do mesmo tipo zera o contador (perdão por sucesso).
//
// Lockout de conta e throttling de abuso CSRF são especializações deste
// mecanismo, variando apenas o tipo de evento.
//
// Política de falha do store: best-effort. Erros são logados e nunca afetam
// a decisão de admissão em voo.
type Tracker struct {
	Failures  domain.FailureStore
	Blocklist *Blocklist

	// Threshold de falhas dentro de Window que dispara o bloqueio por Lockout.
	// Zeros usam 5 falhas / 15 min / bloqueio de 30 min.
	Threshold int
	Window    time.Duration
	Lockout   time.Duration

	Logger *slog.Logger
}

func (t *Tracker) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func (t *Tracker) threshold() int {
	if t.Threshold > 0 {
		return t.Threshold
	}
	return 5
}

func (t *Tracker) window() time.Duration {
	if t.Window > 0 {
		return t.Window
	}
	return 15 * time.Minute
}

func (t *Tracker) lockout() time.Duration {
	if t.Lockout > 0 {
		return t.Lockout
	}
	return 30 * time.Minute
}

// RecordFailure registra uma falha e devolve (contagem, escalou-para-bloqueio).
func (t *Tracker) RecordFailure(ctx context.Context, identity, event string) (int, bool) {
	if t == nil || t.Failures == nil || identity == "" {
		return 0, false
	}

	count, err := t.Failures.Incr(ctx, identity, event, t.window())
	if err != nil {
		t.logger().ErrorContext(ctx, "failure store unavailable", "identity", identity, "event", event, "error", err)
		return 0, false
	}
	if count < t.threshold() {
		return count, false
	}

	// Limiar atingido: escala para a blocklist e zera o próprio contador.
	if t.Blocklist != nil {
		if err := t.Blocklist.Block(ctx, identity, event, t.lockout()); err != nil {
			t.logger().ErrorContext(ctx, "blocklist escalation failed", "identity", identity, "event", event, "error", err)
			return count, false
		}
		t.logger().WarnContext(ctx, "identity locked out",
			"identity", identity,
			"event", event,
			"failures", count,
			"lockout", t.lockout().String(),
		)
	}
	if err := t.Failures.Reset(ctx, identity, event); err != nil {
		t.logger().ErrorContext(ctx, "failure reset failed", "identity", identity, "event", event, "error", err)
	}
	return count, true
}

// RecordSuccess zera o contador de falhas do par (identidade, evento).
func (t *Tracker) RecordSuccess(ctx context.Context, identity, event string) {
	if t == nil || t.Failures == nil || identity == "" {
		return
	}
	if err := t.Failures.Reset(ctx, identity, event); err != nil {
		t.logger().ErrorContext(ctx, "failure reset failed", "identity", identity, "event", event, "error", err)
	}
}
