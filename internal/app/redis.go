package app

import (
	"context"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/config"
)

// NewRedisClient builds the shared Redis client behind the change feed, the
// eligible pool mirror and the idempotency cache. With New Relic enabled,
// every command is reported as a datastore segment.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, nrApp *newrelic.Application) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	if nrApp != nil {
		client.AddHook(redisSegmentHook{})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// redisSegmentHook records each Redis command against the transaction found
// in the command context. Commands issued outside a transaction (watcher
// subscriptions, the requeue sweep) are not traced.
type redisSegmentHook struct{}

func (redisSegmentHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (redisSegmentHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if txn := newrelic.FromContext(ctx); txn != nil {
			segment := newrelic.DatastoreSegment{
				StartTime: txn.StartSegmentNow(),
				Product:   newrelic.DatastoreRedis,
				Operation: cmd.Name(),
			}
			defer segment.End()
		}
		return next(ctx, cmd)
	}
}

func (redisSegmentHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if txn := newrelic.FromContext(ctx); txn != nil {
			segment := newrelic.DatastoreSegment{
				StartTime: txn.StartSegmentNow(),
				Product:   newrelic.DatastoreRedis,
				Operation: fmt.Sprintf("pipeline:%d", len(cmds)),
			}
			defer segment.End()
		}
		return next(ctx, cmds)
	}
}
