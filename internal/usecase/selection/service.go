package selection

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"tg-holiday-bot/internal/domain"
	"tg-holiday-bot/internal/usecase/rules"
)

var (
	// ErrNoHolidayForDay возвращается, когда в каталоге нет праздника на дату.
	ErrNoHolidayForDay = errors.New("в каталоге нет праздника на этот день")

	// ErrAllFilteredOut возвращается, когда праздники на дату есть,
	// но правила тенанта отсеяли их все. Отличается от ErrNoHolidayForDay
	// текстом пользовательского сообщения.
	ErrAllFilteredOut = errors.New("все праздники дня отсеяны текущими фильтрами")
)

// Result описывает итог выбора праздника дня.
type Result struct {
	Holiday  domain.Holiday
	Wildcard bool
	// StateChanged сигнализирует о дорисованных сюрприз-днях:
	// вызывающий обязан сохранить документ тенанта.
	StateChanged bool
}

// Service реализует конвейер выбора праздника дня:
// каталог -> фильтры -> сюрприз-день либо тон.
type Service struct {
	mu   sync.Mutex
	intn func(n int) int
}

// NewService создаёт сервис выбора со стандартным источником случайности.
func NewService() *Service {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Service{intn: rnd.Intn}
}

// NewServiceWithRand создаёт сервис с внешним источником случайности.
func NewServiceWithRand(intn func(n int) int) *Service {
	return &Service{intn: intn}
}

func (s *Service) randInt(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intn(n)
}

// SelectDaily выбирает праздник дня для канала доставки из списка
// кандидатов каталога. Бесплатный тариф видит только фиксированный
// префикс отфильтрованного списка, без тона и сюрприз-дней.
func (s *Service) SelectDaily(cfg *domain.TenantConfig, dest domain.Destination, items []domain.Holiday, now time.Time, tier domain.Tier) (Result, error) {
	if len(items) == 0 {
		return Result{}, ErrNoHolidayForDay
	}

	filtered := rules.Apply(items, cfg.Filters)
	if len(filtered) == 0 {
		return Result{}, ErrAllFilteredOut
	}

	plan := domain.PlanForTier(tier)
	if plan.DailyPrefix > 0 {
		if len(filtered) > plan.DailyPrefix {
			filtered = filtered[:plan.DailyPrefix]
		}
		return Result{Holiday: filtered[0]}, nil
	}

	changed := EnsureWildcardDays(&cfg.Wildcard, now, s.randInt)
	if IsWildcardDay(cfg.Wildcard, now) {
		pick, err := PickWildcard(filtered, s.randInt)
		if err != nil {
			return Result{}, err
		}
		return Result{Holiday: pick, Wildcard: true, StateChanged: changed}, nil
	}

	tone := Tone(cfg.Tone)
	if dest.ToneOverride != "" {
		tone = Tone(dest.ToneOverride)
	}
	pick, err := PickByTone(filtered, tone, dest.ChoiceIndex)
	if err != nil {
		return Result{}, err
	}
	return Result{Holiday: pick, StateChanged: changed}, nil
}
