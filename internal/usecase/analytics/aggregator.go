package analytics

import "tg-holiday-bot/internal/domain"

// historyLimit ограничивает кольцо истории доставок; старейшие записи
// вытесняются первыми.
const historyLimit = 200

// trendWindow — размер окна сравнения при расчёте тренда.
const trendWindow = 7

// RecordDelivery фиксирует доставку поста дня: запись истории с нулём
// реакций плюс счётчик постов канала. Мутирует документ тенанта.
func RecordDelivery(state *domain.AnalyticsState, destinationID int64, dayKey string, hour int, holidayID string) {
	state.History = append(state.History, domain.HistoryEntry{
		DayKey:        dayKey,
		DestinationID: destinationID,
		HolidayID:     holidayID,
		Hour:          hour,
	})
	if len(state.History) > historyLimit {
		state.History = state.History[len(state.History)-historyLimit:]
	}
	if state.PostsByDestination == nil {
		state.PostsByDestination = make(map[int64]int)
	}
	state.PostsByDestination[destinationID]++
}

// RecordEngagement фиксирует первую реакцию дня: счётчики канала и
// праздника плюс инкремент реакции у свежайшей подходящей записи
// истории. Реакция на вытесненную запись молча отбрасывается.
func RecordEngagement(state *domain.AnalyticsState, destinationID int64, dayKey string) {
	if state.ReactionsByDestination == nil {
		state.ReactionsByDestination = make(map[int64]int)
	}
	state.ReactionsByDestination[destinationID]++
	for i := len(state.History) - 1; i >= 0; i-- {
		entry := &state.History[i]
		if entry.DestinationID == destinationID && entry.DayKey == dayKey {
			entry.Reactions++
			if state.ReactionsByHoliday == nil {
				state.ReactionsByHoliday = make(map[string]int)
			}
			state.ReactionsByHoliday[entry.HolidayID]++
			return
		}
	}
}

// Trend сравнивает сумму реакций последних семи записей истории с
// предыдущей семёркой. ok == false, когда предыдущее окно пусто или
// его сумма равна нулю — тренд в этом случае не определён.
func Trend(state domain.AnalyticsState) (ratio float64, ok bool) {
	n := len(state.History)
	if n < 2*trendWindow {
		return 0, false
	}
	var recent, previous int
	for _, e := range state.History[n-trendWindow:] {
		recent += e.Reactions
	}
	for _, e := range state.History[n-2*trendWindow : n-trendWindow] {
		previous += e.Reactions
	}
	if previous == 0 {
		return 0, false
	}
	return float64(recent) / float64(previous), true
}
