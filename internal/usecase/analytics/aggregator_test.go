package analytics

import (
	"fmt"
	"testing"

	"tg-holiday-bot/internal/domain"
)

func TestRecordDeliveryAndEngagement(t *testing.T) {
	var state domain.AnalyticsState
	RecordDelivery(&state, 100, "2025-03-01", 9, "pizza")
	RecordEngagement(&state, 100, "2025-03-01")

	if len(state.History) != 1 {
		t.Fatalf("ожидали 1 запись истории, получили %d", len(state.History))
	}
	if state.History[0].Reactions != 1 {
		t.Fatalf("реакция должна попасть в запись истории")
	}
	if state.PostsByDestination[100] != 1 || state.ReactionsByDestination[100] != 1 {
		t.Fatalf("счётчики канала не сошлись: %+v", state)
	}
	if state.ReactionsByHoliday["pizza"] != 1 {
		t.Fatalf("счётчик праздника не сошёлся: %+v", state.ReactionsByHoliday)
	}
}

func TestRecordEngagementMatchesNewestEntry(t *testing.T) {
	var state domain.AnalyticsState
	RecordDelivery(&state, 100, "2025-03-01", 9, "first")
	RecordDelivery(&state, 100, "2025-03-01", 15, "second")
	RecordEngagement(&state, 100, "2025-03-01")

	if state.History[1].Reactions != 1 || state.History[0].Reactions != 0 {
		t.Fatalf("реакция должна достаться свежайшей записи: %+v", state.History)
	}
}

func TestRecordEngagementEvictedEntryDropped(t *testing.T) {
	var state domain.AnalyticsState
	RecordDelivery(&state, 1, "2025-01-01", 9, "old")
	for i := 0; i < historyLimit; i++ {
		RecordDelivery(&state, 2, fmt.Sprintf("2025-02-%02d", i%28+1), 9, "new")
	}
	RecordEngagement(&state, 1, "2025-01-01")

	for _, e := range state.History {
		if e.DestinationID == 1 {
			t.Fatalf("старейшая запись должна быть вытеснена")
		}
	}
	if state.ReactionsByHoliday["old"] != 0 {
		t.Fatalf("реакция на вытесненную запись отбрасывается молча")
	}
	if state.ReactionsByDestination[1] != 1 {
		t.Fatalf("счётчик канала инкрементируется независимо от истории")
	}
}

func TestHistoryRingBound(t *testing.T) {
	var state domain.AnalyticsState
	for i := 0; i < historyLimit+25; i++ {
		RecordDelivery(&state, 1, "2025-03-01", 9, "h")
	}
	if len(state.History) != historyLimit {
		t.Fatalf("кольцо истории должно быть ограничено %d, получили %d", historyLimit, len(state.History))
	}
}

func TestTrendUndefined(t *testing.T) {
	var state domain.AnalyticsState
	if _, ok := Trend(state); ok {
		t.Fatalf("тренд не определён на пустой истории")
	}
	for i := 0; i < 2*trendWindow; i++ {
		RecordDelivery(&state, 1, "2025-03-01", 9, "h")
	}
	// Предыдущее окно без реакций — тренд не определён, а не нулевой.
	for i := len(state.History) - trendWindow; i < len(state.History); i++ {
		state.History[i].Reactions = 3
	}
	if _, ok := Trend(state); ok {
		t.Fatalf("нулевая сумма предыдущего окна не должна давать тренд")
	}
}

func TestTrendRatio(t *testing.T) {
	var state domain.AnalyticsState
	for i := 0; i < 2*trendWindow; i++ {
		RecordDelivery(&state, 1, "2025-03-01", 9, "h")
	}
	for i := 0; i < trendWindow; i++ {
		state.History[i].Reactions = 1
	}
	for i := trendWindow; i < 2*trendWindow; i++ {
		state.History[i].Reactions = 2
	}
	ratio, ok := Trend(state)
	if !ok {
		t.Fatalf("ожидали определённый тренд")
	}
	if ratio != 2 {
		t.Fatalf("ожидали рост в 2 раза, получили %v", ratio)
	}
}
