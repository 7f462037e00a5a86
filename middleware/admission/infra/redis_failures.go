package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"admission-gateway/middleware/admission/domain"
)

var _ domain.FailureStore = (*RedisFailureStore)(nil)

// RedisFailureStore conta falhas com INCR + EXPIRE NX em pipeline transacional:
// o incremento é atômico e o TTL é fixado na primeira falha da janela — falhas
// seguintes não empurram o vencimento. A janela é ancorada no início (mesma
// semântica do store em memória): vencida a janela a chave morre e a contagem
// recomeça do zero, por mais que as falhas continuem chegando.
type RedisFailureStore struct {
	rdb    redis.UniversalClient
	prefix string
}

type RedisFailureOption func(*RedisFailureStore)

func WithFailurePrefix(prefix string) RedisFailureOption {
	return func(s *RedisFailureStore) { s.prefix = prefix }
}

func NewRedisFailureStore(rdb redis.UniversalClient, opts ...RedisFailureOption) *RedisFailureStore {
	s := &RedisFailureStore{
		rdb:    rdb,
		prefix: "admission:fail:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisFailureStore) key(identity, event string) string {
	return s.prefix + identity + ":" + event
}

func (s *RedisFailureStore) Incr(ctx context.Context, identity, event string, window time.Duration) (int, error) {
	pipe := s.rdb.TxPipeline()
	counter := pipe.Incr(ctx, s.key(identity, event))
	// NX: só aplica TTL quando a chave ainda não tem um, senão cada falha
	// deslizaria a janela para frente e a contagem nunca se renovaria.
	pipe.ExpireNX(ctx, s.key(identity, event), window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failure incr: %w", err)
	}
	return int(counter.Val()), nil
}

func (s *RedisFailureStore) Reset(ctx context.Context, identity, event string) error {
	if err := s.rdb.Del(ctx, s.key(identity, event)).Err(); err != nil {
		return fmt.Errorf("failure reset: %w", err)
	}
	return nil
}
