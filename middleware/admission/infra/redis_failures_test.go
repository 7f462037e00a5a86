package infra

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// recordingHook intercepta pipelines antes da rede: captura os comandos e
// devolve valores neutros, sem precisar de um servidor Redis.
type recordingHook struct {
	pipelines *[][]redis.Cmder
}

func (h recordingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, nil
	}
}

func (h recordingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error { return nil }
}

func (h recordingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		*h.pipelines = append(*h.pipelines, cmds)
		for _, cmd := range cmds {
			switch c := cmd.(type) {
			case *redis.IntCmd:
				c.SetVal(1)
			case *redis.BoolCmd:
				c.SetVal(true)
			}
		}
		return nil
	}
}

func TestRedisFailureStore_ExpiryAnchoredAtFirstFailure(t *testing.T) {
	var pipelines [][]redis.Cmder
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	rdb.AddHook(recordingHook{pipelines: &pipelines})

	s := NewRedisFailureStore(rdb)
	count, err := s.Incr(context.Background(), "1.2.3.4", "login", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	if len(pipelines) != 1 {
		t.Fatalf("expected a single pipeline round-trip, got %d", len(pipelines))
	}
	cmds := pipelines[0]
	if len(cmds) != 2 {
		t.Fatalf("expected incr + expire in the pipeline, got %d commands", len(cmds))
	}
	if cmds[0].Name() != "incr" {
		t.Fatalf("expected incr first, got %q", cmds[0].Name())
	}
	if cmds[1].Name() != "expire" {
		t.Fatalf("expected expire second, got %q", cmds[1].Name())
	}

	// o TTL só pode ser aplicado quando a chave ainda não tem um (NX):
	// um EXPIRE incondicional deslizaria a janela a cada falha e uma falha
	// periódica manteria a contagem viva para sempre.
	args := cmds[1].Args()
	mode, ok := args[len(args)-1].(string)
	if !ok || mode != "NX" {
		t.Fatalf("expire must run with NX so the window stays anchored at the first failure, got args %v", args)
	}
}
