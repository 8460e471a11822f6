package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/oriys/tasklet/internal/logging"
	"github.com/oriys/tasklet/internal/observability"
	"github.com/oriys/tasklet/internal/wire"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
)

// RedisWorker pops request envelopes from the Redis lists of every routed
// address and pushes replies for synchronous requests.
type RedisWorker struct {
	r           *Router
	client      redis.UniversalClient
	prefix      string
	pollTimeout time.Duration
	replyTTL    time.Duration
	sem         *semaphore.Weighted
	concurrency int64
}

// RedisWorkerOption configures a RedisWorker.
type RedisWorkerOption func(*RedisWorker)

// WithWorkerPrefix namespaces every key; it must match the dispatch side.
func WithWorkerPrefix(prefix string) RedisWorkerOption {
	return func(w *RedisWorker) {
		if prefix != "" {
			w.prefix = prefix
		}
	}
}

// WithWorkerConcurrency bounds the requests executing at once.
func WithWorkerConcurrency(n int) RedisWorkerOption {
	return func(w *RedisWorker) {
		if n > 0 {
			w.concurrency = int64(n)
		}
	}
}

// WithPollTimeout sets how long one BRPOP blocks before Run rechecks ctx.
func WithPollTimeout(d time.Duration) RedisWorkerOption {
	return func(w *RedisWorker) {
		if d > 0 {
			w.pollTimeout = d
		}
	}
}

// RedisWorker returns a worker serving this router from client.
func (r *Router) RedisWorker(client redis.UniversalClient, opts ...RedisWorkerOption) *RedisWorker {
	w := &RedisWorker{
		r:           r,
		client:      client,
		prefix:      wire.DefaultRedisPrefix,
		pollTimeout: time.Second,
		replyTTL:    time.Minute,
		concurrency: 16,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.sem = semaphore.NewWeighted(w.concurrency)
	return w
}

// Run serves requests until ctx is cancelled, then waits for the requests in
// flight.
func (w *RedisWorker) Run(ctx context.Context) error {
	addrs := w.r.Addresses()
	if len(addrs) == 0 {
		return errors.New("redis worker: no routed functions")
	}
	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = wire.RequestKey(w.prefix, a)
	}
	logging.Op().Info("redis worker started", "functions", len(keys), "prefix", w.prefix)

	defer w.sem.Acquire(context.Background(), w.concurrency)
	for {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		res, err := w.client.BRPop(ctx, w.pollTimeout, keys...).Result()
		if err != nil {
			w.sem.Release(1)
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			logging.Op().Warn("redis worker poll failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		key, payload := res[0], res[1]
		go func() {
			defer w.sem.Release(1)
			w.handle(ctx, key, payload)
		}()
	}
}

func (w *RedisWorker) handle(ctx context.Context, key, payload string) {
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			logging.Op().Error("recovered panic in redis request", "key", key, "panic", rec)
		}
	}()

	var msg wire.RedisMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		logging.Op().Warn("dropping malformed redis message", "key", key, "error", err)
		return
	}
	ctx = observability.InjectTraceContext(ctx, observability.TraceContext{
		TraceParent: msg.TraceParent,
		TraceState:  msg.TraceState,
	})
	c := call{
		surface:   "redis",
		address:   strings.TrimPrefix(key, wire.RequestKey(w.prefix, "")),
		requestID: msg.ID,
	}

	if msg.InvocationType == wire.InvocationEvent {
		if err := w.r.serveAsync(ctx, c, msg.Request); err != nil {
			logging.OpContext(ctx).Warn("async redis request rejected", "address", c.address, "error", err)
		}
		return
	}
	if msg.ReplyTo == "" {
		logging.Op().Warn("synchronous redis request without reply key", "address", c.address)
		return
	}

	w.reply(ctx, msg.ReplyTo, w.execute(ctx, c, msg.Request))
}

func (w *RedisWorker) execute(ctx context.Context, c call, req *wire.Request) wire.RedisReply {
	resp, err := w.r.serveInvoke(ctx, c, req)
	if err != nil {
		body, _ := json.Marshal(wire.ErrorBody{ErrorMessage: err.Error()})
		switch {
		case errors.Is(err, ErrUnknownFunction):
			return wire.RedisReply{Status: http.StatusNotFound, Body: body}
		case wire.ErrMalformed(err):
			return wire.RedisReply{Status: http.StatusBadRequest, Body: body}
		default:
			return wire.RedisReply{Status: wire.StatusOK, FunctionError: wire.FunctionErrorUnhandled, Body: body}
		}
	}
	body, _ := json.Marshal(resp)
	return wire.RedisReply{Status: wire.StatusOK, Body: body}
}

func (w *RedisWorker) reply(ctx context.Context, key string, reply wire.RedisReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		logging.Op().Error("encode redis reply", "error", err)
		return
	}
	pipe := w.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.Expire(ctx, key, w.replyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		logging.OpContext(ctx).Warn("push redis reply", "key", key, "error", err)
	}
}
