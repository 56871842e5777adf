package tenants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-holiday-bot/internal/domain"
	"tg-holiday-bot/internal/infra/metrics"
	"tg-holiday-bot/internal/usecase/analytics"
	"tg-holiday-bot/internal/usecase/catalog"
	"tg-holiday-bot/internal/usecase/entitlement"
	"tg-holiday-bot/internal/usecase/promo"
	"tg-holiday-bot/internal/usecase/rules"
	"tg-holiday-bot/internal/usecase/selection"
	"tg-holiday-bot/internal/usecase/streak"
)

var (
	// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidTime возвращается при часе или минуте вне допустимого диапазона.
	ErrInvalidTime = errors.New("invalid delivery time")

	// ErrPremiumRequired возвращается, когда опция доступна только на платном тарифе.
	ErrPremiumRequired = errors.New("premium required")

	// ErrDestinationLimit возвращается при превышении лимита каналов тарифа.
	ErrDestinationLimit = errors.New("destination limit reached")

	// ErrUnknownTone возвращается при неизвестном тоне подачи.
	ErrUnknownTone = errors.New("unknown tone")

	// ErrUnknownCategory возвращается при неизвестной категории фильтра.
	ErrUnknownCategory = errors.New("unknown category")
)

// Scheduler — часть реестра таймеров, нужная сервису тенантов.
type Scheduler interface {
	Arm(tenantID string, dest domain.Destination)
	Disarm(tenantID string, destID int64)
}

// Service выполняет команды тенанта над его персистентным документом.
// Каждая мутация — чтение документа, изменение и полная перезапись;
// мьютекс на тенанта упорядочивает конкурентные команды.
type Service struct {
	tenants     domain.TenantRepo
	catalog     *catalog.Service
	selector    *selection.Service
	entitlement *entitlement.Service
	streaks     *streak.Engine
	scheduler   Scheduler
	log         zerolog.Logger
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService создаёт сервис тенантов.
func NewService(tenants domain.TenantRepo, cat *catalog.Service, selector *selection.Service, ent *entitlement.Service, streaks *streak.Engine, scheduler Scheduler, log zerolog.Logger) *Service {
	return &Service{
		tenants:     tenants,
		catalog:     cat,
		selector:    selector,
		entitlement: ent,
		streaks:     streaks,
		scheduler:   scheduler,
		log:         log,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

// WithClock подменяет источник времени (для тестов).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) lockTenant(tenantID string) func() {
	s.mu.Lock()
	lock, ok := s.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[tenantID] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// SetupParams — аргументы команды настройки. Указательные поля
// необязательны; большинство из них доступно только на платном тарифе.
type SetupParams struct {
	DestinationID int64
	Hour          int
	Minute        int
	Timezone      string

	Tone              *string
	ChoiceIndex       *int
	SkipWeekends      *bool
	Branding          *bool
	Wildcard          *bool
	StreakRoleID      *string
	StreakGoal        *int
	RoleMentionID     *string
	Quiet             *bool
	PromotionsEnabled *bool

	NoFood            *bool
	NoReligious       *bool
	OnlyWeird         *bool
	OnlyInternational *bool
	SafeMode          *bool
	Blacklist         *[]string
}

// RunSetup настраивает канал доставки тенанта и взводит его таймер.
func (s *Service) RunSetup(ctx context.Context, tenantID string, p SetupParams) (domain.TenantConfig, error) {
	if p.Hour < 0 || p.Hour > 23 || p.Minute < 0 || p.Minute > 59 {
		return domain.TenantConfig{}, ErrInvalidTime
	}

	unlock := s.lockTenant(tenantID)
	defer unlock()

	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return domain.TenantConfig{}, fmt.Errorf("получение тенанта: %w", err)
	}
	tier, _, err := s.entitlement.TierFor(ctx, &cfg)
	if err != nil {
		return domain.TenantConfig{}, fmt.Errorf("вычисление тарифа: %w", err)
	}
	plan := domain.PlanForTier(tier)

	timezone := cfg.Timezone
	if p.Timezone != "" {
		timezone, err = normalizeTimezone(p.Timezone)
		if err != nil {
			return domain.TenantConfig{}, err
		}
	}
	if timezone == "" {
		timezone = "UTC"
	}

	dest, exists := cfg.Destination(p.DestinationID)
	if !exists {
		if len(cfg.Destinations) >= plan.MaxDestinations {
			return domain.TenantConfig{}, ErrDestinationLimit
		}
		dest = domain.Destination{ID: p.DestinationID, TenantID: tenantID}
	}
	dest.Hour = p.Hour
	dest.Minute = p.Minute
	dest.Timezone = timezone

	if err := s.applyPremiumOptions(&cfg, &dest, p, tier); err != nil {
		return domain.TenantConfig{}, err
	}

	cfg.Timezone = timezone
	cfg.Hour = p.Hour
	cfg.Minute = p.Minute
	cfg.UpsertDestination(dest)
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = s.now()
		cfg.PromotionsEnabled = true
	}
	cfg.UpdatedAt = s.now()

	if err := s.tenants.Save(ctx, cfg); err != nil {
		return domain.TenantConfig{}, fmt.Errorf("сохранение тенанта: %w", err)
	}
	s.scheduler.Arm(tenantID, dest)
	s.log.Info().Str("tenant", tenantID).Int64("destination", dest.ID).Str("timezone", timezone).Int("hour", p.Hour).Msg("tenants: канал настроен")
	return cfg, nil
}

func (s *Service) applyPremiumOptions(cfg *domain.TenantConfig, dest *domain.Destination, p SetupParams, tier domain.Tier) error {
	premiumTouched := p.Tone != nil || p.ChoiceIndex != nil || p.SkipWeekends != nil ||
		p.Branding != nil || p.Wildcard != nil || p.StreakRoleID != nil || p.StreakGoal != nil ||
		p.NoFood != nil || p.NoReligious != nil || p.OnlyWeird != nil ||
		p.OnlyInternational != nil || p.SafeMode != nil || p.Blacklist != nil
	if premiumTouched && !tier.Entitled() {
		return ErrPremiumRequired
	}

	if p.Tone != nil {
		if *p.Tone != "" && !selection.IsKnownTone(*p.Tone) {
			return ErrUnknownTone
		}
		dest.ToneOverride = *p.Tone
		cfg.Tone = *p.Tone
	}
	if p.ChoiceIndex != nil {
		dest.ChoiceIndex = *p.ChoiceIndex
	}
	if p.SkipWeekends != nil {
		dest.SkipWeekends = *p.SkipWeekends
	}
	if p.Branding != nil {
		cfg.Branding = *p.Branding
	}
	if p.Wildcard != nil {
		cfg.Wildcard.Enabled = *p.Wildcard
		if !*p.Wildcard {
			cfg.Wildcard = domain.WildcardState{}
		}
	}
	if p.StreakRoleID != nil {
		cfg.StreakRoleID = *p.StreakRoleID
	}
	if p.StreakGoal != nil {
		cfg.StreakGoal = *p.StreakGoal
	}
	if p.RoleMentionID != nil {
		cfg.RoleMentionID = *p.RoleMentionID
	}
	if p.Quiet != nil {
		cfg.Quiet = *p.Quiet
	}
	if p.PromotionsEnabled != nil {
		cfg.PromotionsEnabled = *p.PromotionsEnabled
	}

	if p.NoFood != nil {
		cfg.Filters.NoFood = *p.NoFood
	}
	if p.NoReligious != nil {
		cfg.Filters.NoReligious = *p.NoReligious
	}
	if p.OnlyWeird != nil {
		cfg.Filters.OnlyWeird = *p.OnlyWeird
	}
	if p.OnlyInternational != nil {
		cfg.Filters.OnlyInternational = *p.OnlyInternational
	}
	if p.SafeMode != nil {
		cfg.Filters.SafeMode = *p.SafeMode
	}
	if p.Blacklist != nil {
		// Пустой список очищает чёрный список слов.
		words := make([]string, 0, len(*p.Blacklist))
		for _, w := range *p.Blacklist {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				words = append(words, w)
			}
		}
		cfg.Filters.BlacklistKeywords = words
	}
	return nil
}

// RemoveDestination выключает канал доставки: таймер снимается до
// мутации документа.
func (s *Service) RemoveDestination(ctx context.Context, tenantID string, destID int64) error {
	unlock := s.lockTenant(tenantID)
	defer unlock()

	s.scheduler.Disarm(tenantID, destID)
	cfg, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("получение тенанта: %w", err)
	}
	if !cfg.RemoveDestination(destID) {
		return nil
	}
	cfg.UpdatedAt = s.now()
	return s.tenants.Save(ctx, cfg)
}

// Status — сводка состояния тенанта для команды статуса.
type Status struct {
	Config  domain.TenantConfig
	Tier    domain.Tier
	Plan    domain.TierPlan
	Trend   float64
	TrendOK bool
}

// GetStatus возвращает сводку состояния тенанта.
func (s *Service) GetStatus(ctx context.Context, tenantID string) (Status, error) {
	unlock := s.lockTenant(tenantID)
	defer unlock()

	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return Status{}, fmt.Errorf("получение тенанта: %w", err)
	}
	tier, changed, err := s.entitlement.TierFor(ctx, &cfg)
	if err != nil {
		return Status{}, fmt.Errorf("вычисление тарифа: %w", err)
	}
	if changed {
		cfg.UpdatedAt = s.now()
		if err := s.tenants.Save(ctx, cfg); err != nil {
			return Status{}, fmt.Errorf("сохранение тенанта: %w", err)
		}
	}
	ratio, ok := analytics.Trend(cfg.Analytics)
	return Status{Config: cfg, Tier: tier, Plan: domain.PlanForTier(tier), Trend: ratio, TrendOK: ok}, nil
}

// Preview выбирает праздник так, как его выберет плановая доставка
// через offsetDays дней. Дорисованные сюрприз-дни сохраняются.
func (s *Service) Preview(ctx context.Context, tenantID string, offsetDays int) (selection.Result, error) {
	unlock := s.lockTenant(tenantID)
	defer unlock()

	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return selection.Result{}, fmt.Errorf("получение тенанта: %w", err)
	}
	tier, entChanged, err := s.entitlement.TierFor(ctx, &cfg)
	if err != nil {
		return selection.Result{}, fmt.Errorf("вычисление тарифа: %w", err)
	}

	dest := s.previewDestination(cfg)
	loc, locErr := time.LoadLocation(dest.Timezone)
	if locErr != nil || dest.Timezone == "" {
		loc = time.UTC
	}
	at := s.now().In(loc).AddDate(0, 0, offsetDays)

	items := s.catalog.ByDate(domain.DateKey(at))
	res, err := s.selector.SelectDaily(&cfg, dest, items, at, tier)
	if entChanged || (err == nil && res.StateChanged) {
		cfg.UpdatedAt = s.now()
		if saveErr := s.tenants.Save(ctx, cfg); saveErr != nil {
			s.log.Error().Err(saveErr).Str("tenant", tenantID).Msg("tenants: сохранение после предпросмотра")
		}
	}
	return res, err
}

func (s *Service) previewDestination(cfg domain.TenantConfig) domain.Destination {
	if len(cfg.Destinations) > 0 {
		return cfg.Destinations[0]
	}
	return domain.Destination{TenantID: cfg.TenantID, Timezone: cfg.Timezone, Hour: cfg.Hour, Minute: cfg.Minute}
}

// Upcoming возвращает праздники на days дней вперёд начиная с завтра.
// Доступно только на платном тарифе; горизонт ограничен тарифом.
func (s *Service) Upcoming(ctx context.Context, tenantID string, days int) ([]catalog.RangeEntry, error) {
	unlock := s.lockTenant(tenantID)
	defer unlock()

	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("получение тенанта: %w", err)
	}
	tier, _, err := s.entitlement.TierFor(ctx, &cfg)
	if err != nil {
		return nil, fmt.Errorf("вычисление тарифа: %w", err)
	}
	plan := domain.PlanForTier(tier)
	if plan.UpcomingMax == 0 {
		return nil, ErrPremiumRequired
	}
	if days <= 0 || days > plan.UpcomingMax {
		days = plan.UpcomingMax
	}

	loc, locErr := time.LoadLocation(cfg.Timezone)
	if locErr != nil || cfg.Timezone == "" {
		loc = time.UTC
	}
	from := s.now().In(loc).AddDate(0, 0, 1)
	return s.catalog.Range(from, days), nil
}

// BlockHoliday добавляет праздник в чёрный список тенанта. Блокировка
// сильнее принудительного включения: идентификатор заодно снимается
// из force-списка.
func (s *Service) BlockHoliday(ctx context.Context, tenantID, holidayID string) error {
	return s.mutateOverrides(ctx, tenantID, func(f *domain.FilterRules) {
		f.BlockIDs = appendUnique(f.BlockIDs, holidayID)
		f.ForceIDs = removeID(f.ForceIDs, holidayID)
	})
}

// UnblockHoliday убирает праздник из чёрного списка.
func (s *Service) UnblockHoliday(ctx context.Context, tenantID, holidayID string) error {
	return s.mutateOverrides(ctx, tenantID, func(f *domain.FilterRules) {
		f.BlockIDs = removeID(f.BlockIDs, holidayID)
	})
}

// ForceHoliday принудительно включает праздник в выборку мимо фильтров.
func (s *Service) ForceHoliday(ctx context.Context, tenantID, holidayID string) error {
	return s.mutateOverrides(ctx, tenantID, func(f *domain.FilterRules) {
		f.ForceIDs = appendUnique(f.ForceIDs, holidayID)
	})
}

// UnforceHoliday убирает принудительное включение праздника.
func (s *Service) UnforceHoliday(ctx context.Context, tenantID, holidayID string) error {
	return s.mutateOverrides(ctx, tenantID, func(f *domain.FilterRules) {
		f.ForceIDs = removeID(f.ForceIDs, holidayID)
	})
}

func (s *Service) mutateOverrides(ctx context.Context, tenantID string, mutate func(*domain.FilterRules)) error {
	unlock := s.lockTenant(tenantID)
	defer unlock()

	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("получение тенанта: %w", err)
	}
	tier, _, err := s.entitlement.TierFor(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("вычисление тарифа: %w", err)
	}
	if !tier.Entitled() {
		return ErrPremiumRequired
	}
	mutate(&cfg.Filters)
	cfg.UpdatedAt = s.now()
	return s.tenants.Save(ctx, cfg)
}

// Overrides возвращает действующие ручные списки тенанта.
func (s *Service) Overrides(ctx context.Context, tenantID string) (blocked, forced []string, err error) {
	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("получение тенанта: %w", err)
	}
	return append([]string(nil), cfg.Filters.BlockIDs...), append([]string(nil), cfg.Filters.ForceIDs...), nil
}

// Explanation — вердикт фильтров по одному празднику дня.
type Explanation struct {
	Holiday domain.Holiday
	// Reason пуст, если праздник проходит фильтры.
	Reason string
}

// WhyToday объясняет, почему каждый праздник сегодняшнего дня прошёл
// или не прошёл фильтры тенанта.
func (s *Service) WhyToday(ctx context.Context, tenantID string) ([]Explanation, error) {
	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("получение тенанта: %w", err)
	}
	loc, locErr := time.LoadLocation(cfg.Timezone)
	if locErr != nil || cfg.Timezone == "" {
		loc = time.UTC
	}
	items := s.catalog.ByDate(domain.DateKey(s.now().In(loc)))
	out := make([]Explanation, 0, len(items))
	for _, h := range items {
		out = append(out, Explanation{Holiday: h, Reason: rules.Explain(h, cfg.Filters)})
	}
	return out, nil
}

// SetCategories заменяет список разрешённых категорий. Пустой список
// снимает ограничение.
func (s *Service) SetCategories(ctx context.Context, tenantID string, categories []string) error {
	normalized := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if !rules.IsKnownCategory(c) {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, c)
		}
		normalized = appendUnique(normalized, c)
	}

	unlock := s.lockTenant(tenantID)
	defer unlock()

	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("получение тенанта: %w", err)
	}
	tier, _, err := s.entitlement.TierFor(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("вычисление тарифа: %w", err)
	}
	if !tier.Entitled() {
		return ErrPremiumRequired
	}
	if len(normalized) == 0 {
		cfg.Filters.AllowedCategories = nil
	} else {
		cfg.Filters.AllowedCategories = normalized
	}
	cfg.UpdatedAt = s.now()
	return s.tenants.Save(ctx, cfg)
}

// SetExcludeSensitive переключает исключение чувствительных тем.
// Доступно на любом тарифе.
func (s *Service) SetExcludeSensitive(ctx context.Context, tenantID string, on bool) error {
	unlock := s.lockTenant(tenantID)
	defer unlock()

	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("получение тенанта: %w", err)
	}
	cfg.Filters.ExcludeSensitive = on
	cfg.UpdatedAt = s.now()
	return s.tenants.Save(ctx, cfg)
}

// OnEngagement обрабатывает первое событие вовлечённости дня:
// продвигает страйк, дописывает аналитику и при достижении цели
// выдаёт роль-награду.
func (s *Service) OnEngagement(ctx context.Context, ev domain.EngagementEvent) error {
	unlock := s.lockTenant(ev.TenantID)
	defer unlock()

	cfg, err := s.tenants.Ensure(ctx, ev.TenantID)
	if err != nil {
		return fmt.Errorf("получение тенанта: %w", err)
	}
	tier, _, err := s.entitlement.TierFor(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("вычисление тарифа: %w", err)
	}

	// Ключ дня считается в локальном поясе канала — так же, как
	// планировщик пишет доставки. Ключ события в очереди (UTC) годится
	// только для грубой дедупликации и здесь не используется.
	dayKey := s.engagementDayKey(cfg, ev)
	if cfg.Streak.LastDayKey == dayKey {
		// Повторное событие того же локального дня.
		return nil
	}

	streak.Apply(&cfg.Streak, dayKey)
	analytics.RecordEngagement(&cfg.Analytics, ev.DestinationID, dayKey)
	cfg.UpdatedAt = s.now()
	if err := s.tenants.Save(ctx, cfg); err != nil {
		return fmt.Errorf("сохранение тенанта: %w", err)
	}
	metrics.IncEngagement()

	if err := s.streaks.MaybeGrantReward(ctx, cfg, ev.ActorID, tier); err != nil {
		s.log.Warn().Err(err).Str("tenant", ev.TenantID).Int64("actor", ev.ActorID).Msg("tenants: выдача роли за страйк")
	}
	return nil
}

func (s *Service) engagementDayKey(cfg domain.TenantConfig, ev domain.EngagementEvent) string {
	tz := cfg.Timezone
	if dest, ok := cfg.Destination(ev.DestinationID); ok && dest.Timezone != "" {
		tz = dest.Timezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	return domain.DayKey(occurred.In(loc))
}

// MaybeShowPromo проверяет тротлинг подсказки и, если показ разрешён,
// сразу отмечает его в документе.
func (s *Service) MaybeShowPromo(ctx context.Context, tenantID string, kind domain.PromptKind) (bool, error) {
	unlock := s.lockTenant(tenantID)
	defer unlock()

	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("получение тенанта: %w", err)
	}
	if !promo.CanShow(cfg, kind, s.now()) {
		return false, nil
	}
	promo.MarkShown(&cfg, kind, s.now())
	cfg.UpdatedAt = s.now()
	if err := s.tenants.Save(ctx, cfg); err != nil {
		return false, fmt.Errorf("сохранение тенанта: %w", err)
	}
	return true, nil
}

func appendUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

func removeID(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func normalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	lower := strings.ToLower(candidate)
	parts := strings.Split(lower, "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil {
		return normalized, nil
	}
	return "", ErrInvalidTimezone
}
