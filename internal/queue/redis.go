// Package queue holds the redis-backed work queue of active retirement
// record IDs. The queue only carries IDs; the durable truth about each
// retirement lives in postgres, so a lost queue entry is recoverable by
// the sweeper.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pavitrk/retirepipe/internal/config"
)

type Redis struct {
	Client *redis.Client
}

func NewRedis(cfg config.Config) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
		MinIdleConns: 2,
	})
	return &Redis{Client: rdb}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) Enqueue(ctx context.Context, queueName string, recordID string) error {
	return r.Client.LPush(ctx, queueName, recordID).Err()
}

// Dequeue blocks up to wait for the next record ID. The second return
// is false when the wait elapsed with nothing queued.
func (r *Redis) Dequeue(ctx context.Context, queueName string, wait time.Duration) (string, bool, error) {
	res, err := r.Client.BRPop(ctx, wait, queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

func (r *Redis) Depth(ctx context.Context, queueName string) (int64, error) {
	return r.Client.LLen(ctx, queueName).Result()
}
