package infra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"admission-gateway/middleware/admission/domain"
)

// Script Lua: poda + checagem + registro em um único round-trip, atômico por
// chave no servidor. Ler e depois escrever do lado do cliente abriria a
// corrida clássica em que duas requisições concorrentes enxergam a mesma vaga.
//
// Retorna {allowed, remaining, retry_after_ms}. Negado não faz ZADD: a
// tentativa não consome cota. Tempos em milissegundos.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

local cutoff = now - window
redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. cutoff)

local count = redis.call('ZCARD', key)
if count >= max then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local retry = window - (now - tonumber(oldest[2]))
  if retry < 1000 then
    retry = 1000
  end
  return {0, 0, retry}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, max - count - 1, 0}
`)

// RedisCounter é a janela deslizante compartilhada entre workers: um ZSET por
// chave com score = instante da requisição. O TTL da chave acompanha a janela,
// então chaves abandonadas se limpam sozinhas.
type RedisCounter struct {
	rdb    redis.UniversalClient
	prefix string
}

type RedisCounterOption func(*RedisCounter)

func WithCounterPrefix(prefix string) RedisCounterOption {
	return func(c *RedisCounter) { c.prefix = prefix }
}

func NewRedisCounter(rdb redis.UniversalClient, opts ...RedisCounterOption) *RedisCounter {
	c := &RedisCounter{
		rdb:    rdb,
		prefix: "admission:window:",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Take implementa domain.CounterStore.
func (c *RedisCounter) Take(ctx context.Context, key domain.Key, window time.Duration, max int) (domain.CounterResult, error) {
	now := time.Now()
	// Membro único por tentativa: dois workers no mesmo milissegundo não
	// podem colidir no ZSET.
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	raw, err := slidingWindowScript.Run(ctx, c.rdb,
		[]string{c.prefix + string(key)},
		now.UnixMilli(),
		window.Milliseconds(),
		max,
		member,
	).Slice()
	if err != nil {
		return domain.CounterResult{}, fmt.Errorf("sliding window script: %w", err)
	}
	if len(raw) != 3 {
		return domain.CounterResult{}, fmt.Errorf("sliding window script: unexpected reply %v", raw)
	}

	allowed, _ := raw[0].(int64)
	remaining, _ := raw[1].(int64)
	retryMs, _ := raw[2].(int64)

	return domain.CounterResult{
		Allowed:    allowed == 1,
		Remaining:  int(remaining),
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}

// Count implementa domain.CounterStore (inspeção, sem consumir cota).
func (c *RedisCounter) Count(ctx context.Context, key domain.Key, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window).UnixMilli()
	n, err := c.rdb.ZCount(ctx, c.prefix+string(key), strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("sliding window count: %w", err)
	}
	return int(n), nil
}
