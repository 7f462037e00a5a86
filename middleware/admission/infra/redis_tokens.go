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

var _ domain.TokenStore = (*RedisTokenStore)(nil)

// RedisTokenStore persiste o token CSRF ativo como uma chave JSON por dono.
// Save sobrescreve o token anterior, então rotação e revogação valem para
// todos os workers imediatamente.
type RedisTokenStore struct {
	rdb    redis.UniversalClient
	prefix string
}

type RedisTokenOption func(*RedisTokenStore)

func WithTokenPrefix(prefix string) RedisTokenOption {
	return func(s *RedisTokenStore) { s.prefix = prefix }
}

func NewRedisTokenStore(rdb redis.UniversalClient, opts ...RedisTokenOption) *RedisTokenStore {
	s := &RedisTokenStore{
		rdb:    rdb,
		prefix: "admission:csrf:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisTokenStore) Get(ctx context.Context, owner string) (*domain.Token, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+owner).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("token get: %w", err)
	}
	var token domain.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("token decode: %w", err)
	}
	return &token, nil
}

func (s *RedisTokenStore) Save(ctx context.Context, token domain.Token, ttl time.Duration) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("token encode: %w", err)
	}
	if err := s.rdb.Set(ctx, s.prefix+token.Owner, raw, ttl).Err(); err != nil {
		return fmt.Errorf("token set: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, owner string) error {
	if err := s.rdb.Del(ctx, s.prefix+owner).Err(); err != nil {
		return fmt.Errorf("token del: %w", err)
	}
	return nil
}
