package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/observability"
	"github.com/oriys/tasklet/internal/wire"
	"github.com/redis/go-redis/v9"
)

// RedisTransport pushes envelopes onto per-function Redis lists. A synchronous
// invoke then blocks on a reply list unique to the request.
type RedisTransport struct {
	client       redis.UniversalClient
	prefix       string
	replyTimeout time.Duration
}

// RedisOption configures a RedisTransport.
type RedisOption func(*RedisTransport)

// WithRedisPrefix namespaces every key.
func WithRedisPrefix(prefix string) RedisOption {
	return func(t *RedisTransport) {
		if prefix != "" {
			t.prefix = prefix
		}
	}
}

// WithReplyTimeout bounds the wait for a synchronous reply.
func WithReplyTimeout(d time.Duration) RedisOption {
	return func(t *RedisTransport) {
		if d > 0 {
			t.replyTimeout = d
		}
	}
}

// NewRedisTransport uses client for every request.
func NewRedisTransport(client redis.UniversalClient, opts ...RedisOption) *RedisTransport {
	t := &RedisTransport{
		client:       client,
		prefix:       wire.DefaultRedisPrefix,
		replyTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *RedisTransport) Name() string { return "redis" }

func (t *RedisTransport) Send(ctx context.Context, address string, req *wire.Request, mode domain.ExecutionMode) (*Reply, error) {
	id := uuid.New().String()
	tc := observability.ExtractTraceContext(ctx)
	msg := wire.RedisMessage{
		ID:             id,
		InvocationType: invocationType(mode),
		Request:        req,
		TraceParent:    tc.TraceParent,
		TraceState:     tc.TraceState,
	}
	async := mode == domain.ModeInvokeAsync
	if !async {
		msg.ReplyTo = wire.ReplyKey(t.prefix, id)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if err := t.client.LPush(ctx, wire.RequestKey(t.prefix, address), data).Err(); err != nil {
		return nil, fmt.Errorf("push request: %w", err)
	}
	if async {
		return &Reply{Status: wire.StatusAccepted}, nil
	}

	res, err := t.client.BRPop(ctx, t.replyTimeout, msg.ReplyTo).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("no response from %s within %s", address, t.replyTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("wait for reply: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}

	var reply wire.RedisReply
	if err := json.Unmarshal([]byte(res[1]), &reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return &Reply{
		Status:        reply.Status,
		FunctionError: reply.FunctionError,
		Body:          reply.Body,
	}, nil
}

func (t *RedisTransport) Close() error { return nil }
