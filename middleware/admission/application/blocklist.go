package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"admission-gateway/middleware/admission/domain"
)

var (
	ErrIdentityRequired = errors.New("identity is required")
	// ErrTTLRequired: o caminho automático de escalação nunca bloqueia para
	// sempre; entradas permanentes são exclusivas do caminho administrativo.
	ErrTTLRequired = errors.New("ttl must be > 0 (use BlockPermanent for permanent entries)")
)

// Blocklist é a denylist de identidades (IP ou usuário) com expiração.
// Consultada antes de qualquer outra checagem porque é a negação mais barata.
//
// Política de falha do store: fail-open ("não sei" vira "não bloqueado"),
// com log de erro — a camada de contadores segue protegendo.
type Blocklist struct {
	Store  domain.BlockStore
	Logger *slog.Logger
	// Now permite injetar relógio em testes; nil usa time.Now.
	Now func() time.Time
}

func (b *Blocklist) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Blocklist) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// IsBlocked informa se a identidade tem entrada não expirada na blocklist.
func (b *Blocklist) IsBlocked(ctx context.Context, identity string) bool {
	if b == nil || b.Store == nil || identity == "" {
		return false
	}
	entry, err := b.Store.Get(ctx, identity)
	if err != nil {
		b.logger().ErrorContext(ctx, "blocklist store unavailable", "identity", identity, "error", err)
		return false
	}
	if entry == nil {
		return false
	}
	return !entry.Expired(b.now())
}

// Block insere a identidade com TTL (caminho de escalação automática).
func (b *Blocklist) Block(ctx context.Context, identity, reason string, ttl time.Duration) error {
	if identity == "" {
		return ErrIdentityRequired
	}
	if ttl <= 0 {
		return ErrTTLRequired
	}
	now := b.now()
	return b.Store.Put(ctx, domain.BlockEntry{
		Identity:   identity,
		Reason:     reason,
		InsertedAt: now,
		ExpiresAt:  now.Add(ttl),
	})
}

// BlockPermanent insere uma entrada sem expiração (ação administrativa explícita).
func (b *Blocklist) BlockPermanent(ctx context.Context, identity, reason string) error {
	if identity == "" {
		return ErrIdentityRequired
	}
	return b.Store.Put(ctx, domain.BlockEntry{
		Identity:   identity,
		Reason:     reason,
		InsertedAt: b.now(),
	})
}

func (b *Blocklist) Unblock(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrIdentityRequired
	}
	return b.Store.Delete(ctx, identity)
}

// Inspect retorna a entrada atual (ou nil), para a interface administrativa.
func (b *Blocklist) Inspect(ctx context.Context, identity string) (*domain.BlockEntry, error) {
	if identity == "" {
		return nil, ErrIdentityRequired
	}
	entry, err := b.Store.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if entry != nil && entry.Expired(b.now()) {
		return nil, nil
	}
	return entry, nil
}
