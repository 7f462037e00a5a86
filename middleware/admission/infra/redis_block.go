package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"admission-gateway/middleware/admission/domain"
)

// RedisBlockStore persiste a blocklist como uma chave JSON por identidade.
// Entradas com ExpiresAt ganham TTL equivalente no Redis (autolimpeza);
// entradas permanentes ficam sem TTL.
type RedisBlockStore struct {
	rdb    redis.UniversalClient
	prefix string
}

type RedisBlockOption func(*RedisBlockStore)

func WithBlockPrefix(prefix string) RedisBlockOption {
	return func(s *RedisBlockStore) { s.prefix = prefix }
}

func NewRedisBlockStore(rdb redis.UniversalClient, opts ...RedisBlockOption) *RedisBlockStore {
	s := &RedisBlockStore{
		rdb:    rdb,
		prefix: "admission:block:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisBlockStore) Get(ctx context.Context, identity string) (*domain.BlockEntry, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+identity).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blocklist get: %w", err)
	}
	var entry domain.BlockEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("blocklist decode: %w", err)
	}
	return &entry, nil
}

func (s *RedisBlockStore) Put(ctx context.Context, entry domain.BlockEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("blocklist encode: %w", err)
	}
	var ttl time.Duration
	if !entry.ExpiresAt.IsZero() {
		ttl = time.Until(entry.ExpiresAt)
		if ttl <= 0 {
			// Já vencida: não persiste.
			return nil
		}
	}
	if err := s.rdb.Set(ctx, s.prefix+entry.Identity, raw, ttl).Err(); err != nil {
		return fmt.Errorf("blocklist set: %w", err)
	}
	return nil
}

func (s *RedisBlockStore) Delete(ctx context.Context, identity string) error {
	if err := s.rdb.Del(ctx, s.prefix+identity).Err(); err != nil {
		return fmt.Errorf("blocklist del: %w", err)
	}
	return nil
}
