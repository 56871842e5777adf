package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-holiday-bot/internal/domain"
	"tg-holiday-bot/internal/infra/metrics"
)

// Deliverer отправляет пост дня в чат Telegram и классифицирует ошибки
// API: потеря доступа к чату терминальна, остальное — повод повторить
// в следующем цикле.
type Deliverer struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

var _ domain.Deliverer = (*Deliverer)(nil)

// NewDeliverer создаёт доставщика.
func NewDeliverer(bot *tgbotapi.BotAPI, log zerolog.Logger) *Deliverer {
	return &Deliverer{bot: bot, log: log}
}

// Deliver отправляет пост дня в канал доставки.
func (d *Deliverer) Deliver(ctx context.Context, dest domain.Destination, post domain.DailyPost) error {
	text := FormatDailyPost(post)
	for i, part := range SplitMessage(text) {
		msg := tgbotapi.NewMessage(dest.ID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		if post.Quiet || i > 0 {
			msg.DisableNotification = true
		}
		start := time.Now()
		_, err := d.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_daily_post", strconv.FormatInt(dest.ID, 10), start, err)
		if err != nil {
			return classifySendError(err)
		}
	}
	return nil
}

// GrantRole в Telegram сводится к назначению кастомного титула
// администратора; для обычных участников операция недоступна, поэтому
// ошибка прав считается успешным no-op.
func (d *Deliverer) GrantRole(ctx context.Context, tenantID string, actorID int64, roleID string) error {
	chatID, err := strconv.ParseInt(tenantID, 10, 64)
	if err != nil {
		return fmt.Errorf("идентификатор чата: %w", err)
	}
	cfg := tgbotapi.SetChatAdministratorCustomTitle{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: actorID},
		CustomTitle:      roleID,
	}
	start := time.Now()
	_, err = d.bot.Request(cfg)
	metrics.ObserveNetworkRequest("telegram_bot", "grant_role", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 400 {
			d.log.Debug().Int64("chat", chatID).Int64("actor", actorID).Msg("telegram: титул недоступен для участника")
			return nil
		}
		return classifySendError(err)
	}
	return nil
}

func classifySendError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 403:
			return fmt.Errorf("%w: %s", domain.ErrDeliveryPermission, apiErr.Message)
		case apiErr.Code == 429:
			return fmt.Errorf("%w: %s", domain.ErrDeliveryRateLimited, apiErr.Message)
		case apiErr.Code == 400 && (strings.Contains(apiErr.Message, "chat not found") || strings.Contains(apiErr.Message, "kicked") || strings.Contains(apiErr.Message, "deactivated")):
			return fmt.Errorf("%w: %s", domain.ErrDeliveryPermission, apiErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrDeliveryTransient, err)
}
