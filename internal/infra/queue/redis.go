package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-holiday-bot/internal/domain"
)

// RedisEngagementQueue реализует очередь событий вовлечённости на базе
// Redis lists. Используется как фолбэк, когда AMQP_URL не задан.
type RedisEngagementQueue struct {
	client *redis.Client
	key    string
}

var _ domain.EngagementQueue = (*RedisEngagementQueue)(nil)

// NewRedisEngagementQueue создаёт очередь по указанному ключу.
func NewRedisEngagementQueue(client *redis.Client, key string) *RedisEngagementQueue {
	return &RedisEngagementQueue{client: client, key: key}
}

// Enqueue публикует событие в очередь.
func (q *RedisEngagementQueue) Enqueue(ctx context.Context, event domain.EngagementEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("кодирование события: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("постановка события: %w", err)
	}
	return nil
}

// Pop блокирующе читает событие из очереди.
func (q *RedisEngagementQueue) Pop(ctx context.Context) (domain.EngagementEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.EngagementEvent{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.EngagementEvent{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.EngagementEvent{}, err
		}
		if len(res) != 2 {
			return domain.EngagementEvent{}, errors.New("redis queue: неожиданный ответ")
		}
		var event domain.EngagementEvent
		if err := json.Unmarshal([]byte(res[1]), &event); err != nil {
			return domain.EngagementEvent{}, fmt.Errorf("декодирование события: %w", err)
		}
		return event, nil
	}
}
