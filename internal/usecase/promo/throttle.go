package promo

import (
	"time"

	"tg-holiday-bot/internal/domain"
)

// Окна показа промо-подсказок: каждая независима, показ одной не
// сдвигает окно другой.
var windows = map[domain.PromptKind]time.Duration{
	domain.PromptVote:   7 * 24 * time.Hour,
	domain.PromptReview: 30 * 24 * time.Hour,
	domain.PromptUpsell: 7 * 24 * time.Hour,
	domain.PromptShare:  14 * 24 * time.Hour,
}

// CanShow сообщает, можно ли показать подсказку. Возвращает false для
// тенантов с выключенными промо и для неизвестных видов.
func CanShow(cfg domain.TenantConfig, kind domain.PromptKind, now time.Time) bool {
	if !cfg.PromotionsEnabled {
		return false
	}
	window, ok := windows[kind]
	if !ok {
		return false
	}
	last, shown := cfg.Promo.LastShown[kind]
	if !shown {
		return true
	}
	return now.Sub(last) >= window
}

// CanShowForced пропускает проверку окна для vote-подсказок на
// заметных доставках; глобальное отключение промо действует и здесь.
func CanShowForced(cfg domain.TenantConfig, kind domain.PromptKind) bool {
	if !cfg.PromotionsEnabled {
		return false
	}
	_, ok := windows[kind]
	return ok
}

// MarkShown фиксирует показ подсказки. Мутирует документ тенанта;
// вызывающий сохраняет его по общей write-through дисциплине.
func MarkShown(cfg *domain.TenantConfig, kind domain.PromptKind, now time.Time) {
	if cfg.Promo.LastShown == nil {
		cfg.Promo.LastShown = make(map[domain.PromptKind]time.Time, len(windows))
	}
	cfg.Promo.LastShown[kind] = now
}
