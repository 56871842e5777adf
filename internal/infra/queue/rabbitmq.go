package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-holiday-bot/internal/domain"
)

const consumePollInterval = time.Second

// RabbitEngagementQueue реализует очередь событий вовлечённости поверх
// AMQP. Очередь durable, сообщения персистентные: перезапуск брокера
// не теряет события.
type RabbitEngagementQueue struct {
	url   string
	queue string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

var _ domain.EngagementQueue = (*RabbitEngagementQueue)(nil)

// NewRabbitEngagementQueue подключается к брокеру и объявляет очередь.
func NewRabbitEngagementQueue(url, queue string) (*RabbitEngagementQueue, error) {
	if url == "" {
		return nil, errors.New("amqp url пуст")
	}
	if queue == "" {
		return nil, errors.New("имя очереди пусто")
	}
	q := &RabbitEngagementQueue{url: url, queue: queue}
	if err := q.connect(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *RabbitEngagementQueue) connect() error {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("подключение к rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("открытие канала: %w", err)
	}
	if _, err := channel.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return fmt.Errorf("объявление очереди %s: %w", q.queue, err)
	}
	q.conn = conn
	q.channel = channel
	return nil
}

func (q *RabbitEngagementQueue) liveChannel() (*amqp.Channel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.conn == nil || q.conn.IsClosed() {
		if err := q.connect(); err != nil {
			return nil, err
		}
	}
	return q.channel, nil
}

// Enqueue публикует событие в очередь.
func (q *RabbitEngagementQueue) Enqueue(ctx context.Context, event domain.EngagementEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("кодирование события: %w", err)
	}
	channel, err := q.liveChannel()
	if err != nil {
		return err
	}
	err = channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("публикация события: %w", err)
	}
	return nil
}

// Pop блокирующе читает событие из очереди. Сообщение подтверждается
// сразу после декодирования; нечитаемые сообщения отбрасываются.
func (q *RabbitEngagementQueue) Pop(ctx context.Context) (domain.EngagementEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.EngagementEvent{}, err
		}
		channel, err := q.liveChannel()
		if err != nil {
			return domain.EngagementEvent{}, err
		}
		delivery, ok, err := channel.Get(q.queue, false)
		if err != nil {
			return domain.EngagementEvent{}, fmt.Errorf("чтение очереди: %w", err)
		}
		if !ok {
			select {
			case <-ctx.Done():
				return domain.EngagementEvent{}, ctx.Err()
			case <-time.After(consumePollInterval):
				continue
			}
		}
		var event domain.EngagementEvent
		if err := json.Unmarshal(delivery.Body, &event); err != nil {
			_ = delivery.Nack(false, false)
			continue
		}
		if err := delivery.Ack(false); err != nil {
			return domain.EngagementEvent{}, fmt.Errorf("подтверждение сообщения: %w", err)
		}
		return event, nil
	}
}

// Close закрывает подключение к брокеру.
func (q *RabbitEngagementQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.channel != nil {
		_ = q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
