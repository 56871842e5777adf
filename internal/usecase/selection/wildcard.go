package selection

import (
	"time"

	"tg-holiday-bot/internal/domain"
	"tg-holiday-bot/internal/usecase/rules"
)

// EnsureWildcardDays дорисовывает сюрприз-дни для месяца, в который
// попадает now. Внутри одного месяца повторный вызов ничего не меняет.
// Возвращает true, если состояние изменилось и документ нужно сохранить.
func EnsureWildcardDays(state *domain.WildcardState, now time.Time, intn func(n int) int) bool {
	if !state.Enabled {
		return false
	}
	monthKey := domain.MonthKey(now)
	if state.MonthKey == monthKey && len(state.Days) > 0 {
		return false
	}
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()
	count := 1 + intn(2) // 1–2 дня
	drawn := make([]int, 0, count)
	for len(drawn) < count {
		day := 1 + intn(daysInMonth)
		if !containsInt(drawn, day) {
			drawn = append(drawn, day)
		}
	}
	state.MonthKey = monthKey
	state.Days = drawn
	return true
}

// IsWildcardDay сообщает, выпадает ли локальный день now на сюрприз-день.
func IsWildcardDay(state domain.WildcardState, now time.Time) bool {
	if !state.Enabled || state.MonthKey != domain.MonthKey(now) {
		return false
	}
	return containsInt(state.Days, now.Day())
}

// PickWildcard выбирает случайный «странный» праздник из отфильтрованного
// пула; если таких нет, берётся весь пул.
func PickWildcard(filtered []domain.Holiday, intn func(n int) int) (domain.Holiday, error) {
	if len(filtered) == 0 {
		return domain.Holiday{}, ErrEmptySelection
	}
	weird := make([]domain.Holiday, 0, len(filtered))
	for _, h := range filtered {
		if rules.IsWeird(h) {
			weird = append(weird, h)
		}
	}
	pool := weird
	if len(pool) == 0 {
		pool = filtered
	}
	return pool[intn(len(pool))], nil
}

func containsInt(values []int, v int) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
