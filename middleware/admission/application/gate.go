package application

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"admission-gateway/middleware/admission/domain"
)

// Gate orquestra a decisão de admissão por requisição. É a única superfície
// que o resto da aplicação integra: Admit antes da lógica de negócio,
// Report depois.
//
// Composição explícita: blocklist, CSRF, registry, resolver, limiter e
// tracker são colaboradores, não ancestrais.
type Gate struct {
	Blocklist *Blocklist
	CSRF      *CSRF
	Registry  *Registry
	Keys      KeyResolver
	Limiter   Limiter
	Tracker   *Tracker
	Logger    *slog.Logger
}

func (g *Gate) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// SafeMethod informa se o método não muda estado (dispensa CSRF).
func SafeMethod(method string) bool {
	switch method {
	case "GET", "HEAD", "OPTIONS", "TRACE":
		return true
	}
	return false
}

// Admit decide a admissão na ordem fixa, cada etapa um curto-circuito:
//
//  1. blocklist (negação mais barata) → 403
//  2. CSRF para métodos não seguros → 403
//  3. política + chave + janela deslizante → 429 com retry-after
//
// Nunca retorna erro: indisponibilidade de store é resolvida pelo fail-mode
// de cada componente e vira parte do Result.
func (g *Gate) Admit(ctx context.Context, req domain.Request) domain.Result {
	if g.Blocklist.IsBlocked(ctx, req.Identity) {
		return domain.Result{
			Action:    domain.Deny,
			Status:    403,
			Reason:    domain.ReasonIdentityBlocked,
			Remaining: -1,
		}
	}

	if g.CSRF != nil && !SafeMethod(req.Method) {
		if reason := g.validateCSRF(ctx, req); reason != domain.ReasonNone {
			// Toda rejeição CSRF é observável: identidade, rota e referer
			// alimentam a análise de abuso.
			g.logger().WarnContext(ctx, "csrf rejected",
				"reason", string(reason),
				"identity", req.Identity,
				"method", req.Method,
				"path", req.Path,
				"referer", req.Referer,
			)
			g.Tracker.RecordFailure(ctx, req.Identity, "csrf")
			return domain.Result{
				Action:    domain.Deny,
				Status:    403,
				Reason:    reason,
				Remaining: -1,
			}
		}
	}

	dim := domain.DimensionIP
	if req.UserID != "" {
		dim = domain.DimensionUser
	}
	registry := g.Registry
	if registry == nil {
		registry = NewRegistry(nil)
	}
	policy := registry.Resolve(req.Endpoint, req.Tier, dim)
	key := g.Keys.Derive(policy.Scope, req.Identity, req.Endpoint)

	res, unavailable := g.Limiter.Check(ctx, key, policy)
	if !res.Allowed {
		if unavailable {
			// Fail-closed com store fora: falha genérica, nunca o erro cru.
			return domain.Result{
				Action:    domain.Deny,
				Status:    503,
				Reason:    domain.ReasonStoreUnavailable,
				Remaining: -1,
				Key:       key,
			}
		}
		return domain.Result{
			Action:     domain.Deny,
			Status:     429,
			Reason:     domain.ReasonRateLimitExceeded,
			RetryAfter: res.RetryAfter,
			Remaining:  0,
			Key:        key,
		}
	}

	return domain.Result{
		Action:    domain.Allow,
		Remaining: res.Remaining,
		Key:       key,
	}
}

// validateCSRF aplica o double-submit e, quando o dono é conhecido, também
// compara contra o token ativo no store (é isso que faz revogação e rotação
// invalidarem valores antigos). Store fora degrada para double-submit puro,
// com log — a validação em si nunca depende de rede para o caso comum.
func (g *Gate) validateCSRF(ctx context.Context, req domain.Request) domain.Reason {
	if reason := g.CSRF.Validate(req.CSRFCookie, req.CSRFHeader); reason != domain.ReasonNone {
		return reason
	}
	if req.CSRFOwner == "" {
		return domain.ReasonNone
	}
	active, err := g.CSRF.Active(ctx, req.CSRFOwner)
	if err != nil {
		g.logger().ErrorContext(ctx, "token store unavailable", "owner", req.CSRFOwner, "error", err)
		return domain.ReasonNone
	}
	if active == nil || subtle.ConstantTimeCompare([]byte(active.Value), []byte(req.CSRFCookie)) != 1 {
		return domain.ReasonCSRFTokenMismatch
	}
	return domain.ReasonNone
}

// Report é o contrato pós-resposta: a aplicação relata o desfecho de uma ação
// de autenticação/formulário para atualizar o estado de abuso e os gatilhos
// de rotação CSRF.
func (g *Gate) Report(ctx context.Context, o domain.Outcome) {
	if o.Success {
		g.Tracker.RecordSuccess(ctx, o.Identity, o.EventType)
	} else {
		g.Tracker.RecordFailure(ctx, o.Identity, o.EventType)
	}
	if o.SecurityEvent && o.Owner != "" && g.CSRF != nil {
		if err := g.CSRF.FlagSecurityEvent(ctx, o.Owner); err != nil {
			g.logger().ErrorContext(ctx, "security event flag failed", "owner", o.Owner, "error", err)
		}
	}
}
