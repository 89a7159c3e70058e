package collab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPartnerQueue pushes partner notices onto a redis list drained by
// the partner notification relay. Delivery is at-least-once: the
// ADDING_TO_PARTNER_QUEUE step may re-push the same notice on retry and
// consumers dedupe on userId.
type RedisPartnerQueue struct {
	client    *redis.Client
	queueName string
}

func NewRedisPartnerQueue(client *redis.Client, queueName string) *RedisPartnerQueue {
	return &RedisPartnerQueue{client: client, queueName: queueName}
}

func (q *RedisPartnerQueue) Notify(ctx context.Context, notice PartnerNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("encode partner notice: %w", err)
	}
	if err := q.client.LPush(ctx, q.queueName, payload).Err(); err != nil {
		return fmt.Errorf("push partner notice: %w", err)
	}
	return nil
}
