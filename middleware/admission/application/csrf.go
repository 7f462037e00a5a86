package application

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// CSRF gerencia o ciclo de vida dos tokens anti-forgery (double-submit):
// emissão, validação, rotação e revogação.
//
// Validate é comparação pura cookie vs header (sem round-trip ao store), em
// tempo constante. Ausência ou divergência é sempre negação dura, nunca
// ignorada em silêncio.
type CSRF struct {
	Tokens domain.TokenStore

	// RotateEvery agenda a rotação periódica; 0 usa 1h.
	RotateEvery time.Duration
	// TokenTTL é o TTL de persistência do token no store; 0 usa 24h.
	TokenTTL time.Duration

	// Now permite injetar relógio em testes; nil usa time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

func (c *CSRF) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *CSRF) rotateEvery() time.Duration {
	if c.RotateEvery > 0 {
		return c.RotateEvery
	}
	return time.Hour
}

func (c *CSRF) tokenTTL() time.Duration {
	if c.TokenTTL > 0 {
		return c.TokenTTL
	}
	return 24 * time.Hour
}

func (c *CSRF) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func newTokenValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("csrf token generation: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Issue emite o token de uma nova sessão e o persiste por dono.
func (c *CSRF) Issue(ctx context.Context, owner string) (domain.Token, error) {
	if owner == "" {
		return domain.Token{}, ErrIdentityRequired
	}
	value, err := newTokenValue()
	if err != nil {
		return domain.Token{}, err
	}
	now := c.now()
	token := domain.Token{
		Value:     value,
		Owner:     owner,
		IssuedAt:  now,
		RotatesAt: now.Add(c.rotateEvery()),
	}
	if err := c.Tokens.Save(ctx, token, c.tokenTTL()); err != nil {
		return domain.Token{}, err
	}
	return token, nil
}

// Validate aplica o double-submit: cookie e header precisam estar presentes e
// iguais sob comparação em tempo constante. Retorna ReasonNone quando válido.
func (c *CSRF) Validate(cookieValue, headerValue string) domain.Reason {
	if cookieValue == "" || headerValue == "" {
		return domain.ReasonCSRFTokenMissing
	}
	if subtle.ConstantTimeCompare([]byte(cookieValue), []byte(headerValue)) != 1 {
		return domain.ReasonCSRFTokenMismatch
	}
	return domain.ReasonNone
}

// MaybeRotate rotaciona o token do dono quando o agendamento venceu (ou um
// evento de segurança foi sinalizado via FlagSecurityEvent, que antecipa o
// RotatesAt). Retorna nil quando o token atual permanece ativo.
//
// Dono sem token (sessão nova) recebe um via Issue.
func (c *CSRF) MaybeRotate(ctx context.Context, owner string) (*domain.Token, error) {
	if owner == "" {
		return nil, ErrIdentityRequired
	}
	current, err := c.Tokens.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if current == nil {
		token, err := c.Issue(ctx, owner)
		if err != nil {
			return nil, err
		}
		return &token, nil
	}
	if c.now().Before(current.RotatesAt) {
		return nil, nil
	}

	value, err := newTokenValue()
	if err != nil {
		return nil, err
	}
	now := c.now()
	token := domain.Token{
		Value:     value,
		Owner:     owner,
		IssuedAt:  now,
		RotatesAt: now.Add(c.rotateEvery()),
	}
	// Save sobrescreve o token anterior: o valor antigo deixa de validar.
	if err := c.Tokens.Save(ctx, token, c.tokenTTL()); err != nil {
		return nil, err
	}
	c.logger().InfoContext(ctx, "csrf token rotated", "owner", owner)
	return &token, nil
}

// FlagSecurityEvent antecipa a rotação do dono (troca de senha, mudança de
// permissão, atividade suspeita). O estado vive no store compartilhado, então
// qualquer worker observa o gatilho.
func (c *CSRF) FlagSecurityEvent(ctx context.Context, owner string) error {
	if owner == "" {
		return ErrIdentityRequired
	}
	current, err := c.Tokens.Get(ctx, owner)
	if err != nil || current == nil {
		return err
	}
	current.RotatesAt = c.now()
	return c.Tokens.Save(ctx, *current, c.tokenTTL())
}

// Revoke remove o token ativo (logout ou resposta explícita de segurança):
// qualquer valor apresentado depois falha a validação contra um token novo.
func (c *CSRF) Revoke(ctx context.Context, owner string) error {
	if owner == "" {
		return ErrIdentityRequired
	}
	return c.Tokens.Delete(ctx, owner)
}

// Active retorna o token vigente do dono (ou nil), sem efeitos colaterais.
func (c *CSRF) Active(ctx context.Context, owner string) (*domain.Token, error) {
	if owner == "" {
		return nil, ErrIdentityRequired
	}
	return c.Tokens.Get(ctx, owner)
}
