package selection

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"tg-holiday-bot/internal/domain"
)

func TestPickByToneScoresKeywords(t *testing.T) {
	items := []domain.Holiday{
		{ID: "a", Name: "National Pizza Day", Description: "cheese"},
		{ID: "b", Name: "World History Day", Description: "historic heritage"},
	}
	got, err := PickByTone(items, ToneHistorical, 0)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.ID != "b" {
		t.Fatalf("ожидали исторический праздник, получили %s", got.ID)
	}
}

func TestPickByToneFallbackIndex(t *testing.T) {
	items := []domain.Holiday{
		{ID: "a", Name: "Alpha"},
		{ID: "b", Name: "Beta"},
		{ID: "c", Name: "Gamma"},
	}
	got, err := PickByTone(items, ToneNerdy, 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.ID != "b" {
		t.Fatalf("при нулевом счёте ожидали fallback-индекс, получили %s", got.ID)
	}
	got, _ = PickByTone(items, ToneNerdy, 99)
	if got.ID != "c" {
		t.Fatalf("fallback-индекс должен ограничиваться границами списка, получили %s", got.ID)
	}
	got, _ = PickByTone(items, ToneNerdy, -5)
	if got.ID != "a" {
		t.Fatalf("отрицательный индекс прижимается к нулю, получили %s", got.ID)
	}
}

func TestPickByToneTieBreaksByOrder(t *testing.T) {
	items := []domain.Holiday{
		{ID: "a", Name: "Science Day"},
		{ID: "b", Name: "Science Night"},
	}
	got, err := PickByTone(items, ToneNerdy, 0)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.ID != "a" {
		t.Fatalf("при равном счёте побеждает ранний элемент, получили %s", got.ID)
	}
}

func TestPickByToneEmpty(t *testing.T) {
	if _, err := PickByTone(nil, ToneSilly, 0); !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("ожидали ErrEmptySelection, получили %v", err)
	}
}

func TestEnsureWildcardDaysStableWithinMonth(t *testing.T) {
	state := domain.WildcardState{Enabled: true}
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	seq := []int{1, 4, 20} // count=2, дни 5 и 21
	idx := 0
	intn := func(n int) int {
		v := seq[idx%len(seq)] % n
		idx++
		return v
	}

	if !EnsureWildcardDays(&state, now, intn) {
		t.Fatalf("первый вызов должен дорисовать дни")
	}
	first := append([]int(nil), state.Days...)
	if len(first) < 1 || len(first) > 2 {
		t.Fatalf("ожидали 1–2 дня, получили %v", first)
	}
	if EnsureWildcardDays(&state, now, intn) {
		t.Fatalf("повторный вызов в том же месяце не должен перерисовывать")
	}
	if !reflect.DeepEqual(first, state.Days) {
		t.Fatalf("набор дней должен быть стабилен внутри месяца: %v != %v", first, state.Days)
	}

	next := now.AddDate(0, 1, 0)
	if !EnsureWildcardDays(&state, next, intn) {
		t.Fatalf("новый месяц должен вызывать перерисовку")
	}
}

func TestPickWildcardPrefersWeird(t *testing.T) {
	items := []domain.Holiday{
		{ID: "plain", Name: "Plain Day"},
		{ID: "weird", Name: "Absurdity Day", Categories: []string{"weird"}},
	}
	got, err := PickWildcard(items, func(n int) int { return 0 })
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.ID != "weird" {
		t.Fatalf("ожидали «странный» праздник, получили %s", got.ID)
	}
}

func TestSelectDailyErrors(t *testing.T) {
	svc := NewServiceWithRand(func(n int) int { return 0 })
	cfg := &domain.TenantConfig{Filters: domain.FilterRules{AllowedCategories: []string{"food"}}}
	dest := domain.Destination{}
	now := time.Date(2025, time.July, 4, 9, 0, 0, 0, time.UTC)

	if _, err := svc.SelectDaily(cfg, dest, nil, now, domain.TierPremium); !errors.Is(err, ErrNoHolidayForDay) {
		t.Fatalf("ожидали ErrNoHolidayForDay, получили %v", err)
	}

	items := []domain.Holiday{{ID: "a", Name: "Independence Day", Categories: []string{"seasonal"}}}
	if _, err := svc.SelectDaily(cfg, dest, items, now, domain.TierPremium); !errors.Is(err, ErrAllFilteredOut) {
		t.Fatalf("ожидали ErrAllFilteredOut, получили %v", err)
	}
}

func TestSelectDailyFreePrefix(t *testing.T) {
	svc := NewServiceWithRand(func(n int) int { return 1 })
	cfg := &domain.TenantConfig{
		Tone:     string(ToneNerdy),
		Wildcard: domain.WildcardState{Enabled: true},
	}
	dest := domain.Destination{ChoiceIndex: 1}
	items := []domain.Holiday{
		{ID: "first", Name: "Plain Day"},
		{ID: "second", Name: "Science Day"},
	}
	now := time.Date(2025, time.May, 2, 9, 0, 0, 0, time.UTC)

	res, err := svc.SelectDaily(cfg, dest, items, now, domain.TierFree)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if res.Holiday.ID != "first" {
		t.Fatalf("бесплатный тариф видит только первый элемент, получили %s", res.Holiday.ID)
	}
	if res.Wildcard || res.StateChanged {
		t.Fatalf("бесплатному тарифу недоступны сюрприз-дни")
	}
}

func TestSelectDailyWildcardOverridesTone(t *testing.T) {
	svc := NewServiceWithRand(func(n int) int { return 0 })
	now := time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)
	cfg := &domain.TenantConfig{
		Tone: string(ToneHistorical),
		Wildcard: domain.WildcardState{
			Enabled:  true,
			MonthKey: domain.MonthKey(now),
			Days:     []int{1},
		},
	}
	items := []domain.Holiday{
		{ID: "hist", Name: "History Day", Description: "historic"},
		{ID: "weird", Name: "Absurdity Day", Categories: []string{"weird"}},
	}
	res, err := svc.SelectDaily(cfg, domain.Destination{}, items, now, domain.TierPremium)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !res.Wildcard || res.Holiday.ID != "weird" {
		t.Fatalf("сюрприз-день должен переопределять тон: %+v", res)
	}
}
