package domain

import (
	"context"
	"time"
)

// EngagementEvent описывает первую реакцию на пост дня в канале.
// DayKey заполняется гейтвеем по UTC и служит только грубой
// дедупликации в очереди; обработчик заново считает ключ дня в
// локальном поясе канала по OccurredAt.
type EngagementEvent struct {
	ID            string    `json:"job_id,omitempty"`
	TenantID      string    `json:"tenant_id"`
	DestinationID int64     `json:"destination_id"`
	ActorID       int64     `json:"actor_id"`
	DayKey        string    `json:"day_key"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// EngagementQueue описывает очередь событий вовлечённости.
type EngagementQueue interface {
	Enqueue(ctx context.Context, event EngagementEvent) error
	Pop(ctx context.Context) (EngagementEvent, error)
}
