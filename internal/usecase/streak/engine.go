package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-holiday-bot/internal/domain"
)

// rewardOnceTTL ограничивает повторные попытки выдачи роли.
const rewardOnceTTL = 30 * 24 * time.Hour

// Apply применяет первое событие вовлечённости дня к серии тенанта.
// Не больше одного инкремента на календарный день: повторные события
// того же дня — no-op. Пропущенный день сбрасывает счёт до 1.
// Возвращает true, если состояние изменилось.
func Apply(state *domain.StreakState, dayKey string) bool {
	if dayKey == "" || state.LastDayKey == dayKey {
		return false
	}
	if state.LastDayKey != "" && state.LastDayKey == domain.PrevDayKey(dayKey) {
		state.Count++
	} else {
		state.Count = 1
	}
	if state.Count > state.Best {
		state.Best = state.Count
	}
	state.LastDayKey = dayKey
	return true
}

// Engine выдаёт наградную роль по достижении цели серии.
type Engine struct {
	cache     domain.Cache
	deliverer domain.Deliverer
	log       zerolog.Logger
}

// NewEngine создаёт движок серий.
func NewEngine(cache domain.Cache, deliverer domain.Deliverer, log zerolog.Logger) *Engine {
	return &Engine{cache: cache, deliverer: deliverer, log: log}
}

// MaybeGrantReward выдаёт наградную роль, если тенант достиг цели серии
// и держит премиум-возможности. Повторная выдача подавляется кэшем и
// идемпотентностью платформы.
func (e *Engine) MaybeGrantReward(ctx context.Context, cfg domain.TenantConfig, actorID int64, tier domain.Tier) error {
	if cfg.StreakGoal <= 0 || cfg.StreakRoleID == "" {
		return nil
	}
	if !tier.Entitled() {
		return nil
	}
	if cfg.Streak.Count < cfg.StreakGoal {
		return nil
	}
	key := fmt.Sprintf("streak_reward:%s:%d", cfg.TenantID, actorID)
	err := e.cache.Once(key, rewardOnceTTL, func() error {
		return e.deliverer.GrantRole(ctx, cfg.TenantID, actorID, cfg.StreakRoleID)
	})
	if err != nil {
		return fmt.Errorf("выдача наградной роли: %w", err)
	}
	e.log.Info().Str("tenant", cfg.TenantID).Int64("actor", actorID).Int("streak", cfg.Streak.Count).Msg("streak: цель серии достигнута")
	return nil
}
