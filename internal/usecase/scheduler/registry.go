package scheduler

import (
	"context"
	"errors"
	"fmt"
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
)

// votePrompt прикрепляется к заметным постам (сюрприз-дни) вне окна
// тротлинга; глобальное отключение промо действует и здесь.
const votePrompt = "🗳 Нравятся сюрприз-дни? Поддержите бота — /vote"

// destKey идентифицирует таймер канала доставки.
type destKey struct {
	tenantID string
	destID   int64
}

// stopFunc отменяет запланированный таймер.
type stopFunc func() bool

// timerFactory планирует отложенный вызов; подменяется в тестах.
type timerFactory func(d time.Duration, fn func()) stopFunc

func realTimerFactory(d time.Duration, fn func()) stopFunc {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

// Registry владеет таймерами каналов доставки: ровно один таймер на
// канал, перевзвод заменяет существующий. Конструируется один раз при
// старте процесса и передаётся по ссылке.
type Registry struct {
	tenants     domain.TenantRepo
	catalog     *catalog.Service
	selector    *selection.Service
	entitlement *entitlement.Service
	deliverer   domain.Deliverer
	log         zerolog.Logger

	now      func() time.Time
	newTimer timerFactory

	mu     sync.Mutex
	timers map[destKey]stopFunc
}

// NewRegistry создаёт реестр таймеров.
func NewRegistry(tenants domain.TenantRepo, cat *catalog.Service, selector *selection.Service, ent *entitlement.Service, deliverer domain.Deliverer, log zerolog.Logger) *Registry {
	return &Registry{
		tenants:     tenants,
		catalog:     cat,
		selector:    selector,
		entitlement: ent,
		deliverer:   deliverer,
		log:         log,
		now:         time.Now,
		newTimer:    realTimerFactory,
		timers:      make(map[destKey]stopFunc),
	}
}

// WithClock подменяет источники времени и таймеров (для тестов).
func (r *Registry) WithClock(now func() time.Time, factory timerFactory) *Registry {
	r.now = now
	r.newTimer = factory
	return r
}

func locationOrUTC(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil || name == "" {
		return time.UTC
	}
	return loc
}

// NextRun возвращает ближайший локальный hour:minute канала строго
// после now. Совпадение с границей переносится на следующий день,
// чтобы исключить двойное срабатывание.
func NextRun(dest domain.Destination, now time.Time) time.Time {
	loc := locationOrUTC(dest.Timezone)
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), dest.Hour, dest.Minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// ArmAll перевзводит все каналы всех тенантов; вызывается один раз при старте.
func (r *Registry) ArmAll(ctx context.Context) error {
	configs, err := r.tenants.List(ctx)
	if err != nil {
		return fmt.Errorf("список тенантов: %w", err)
	}
	armed := 0
	for _, cfg := range configs {
		for _, dest := range cfg.Destinations {
			r.Arm(cfg.TenantID, dest)
			armed++
		}
	}
	r.log.Info().Int("destinations", armed).Msg("scheduler: каналы перевзведены")
	return nil
}

// Arm взводит таймер канала. Существующий таймер отменяется и
// заменяется — двойных срабатываний не бывает.
func (r *Registry) Arm(tenantID string, dest domain.Destination) {
	key := destKey{tenantID: tenantID, destID: dest.ID}
	next := NextRun(dest, r.now())
	delay := next.Sub(r.now())

	r.mu.Lock()
	if stop, ok := r.timers[key]; ok {
		stop()
	}
	r.timers[key] = r.newTimer(delay, func() { r.fire(key) })
	r.mu.Unlock()

	r.log.Debug().Str("tenant", tenantID).Int64("destination", dest.ID).Time("next", next).Msg("scheduler: канал взведён")
}

// Disarm отменяет таймер канала. Отмена происходит до любой мутации
// конфигурации, чтобы исключить срабатывание по удалённому каналу.
func (r *Registry) Disarm(tenantID string, destID int64) {
	key := destKey{tenantID: tenantID, destID: destID}
	r.mu.Lock()
	if stop, ok := r.timers[key]; ok {
		stop()
		delete(r.timers, key)
	}
	r.mu.Unlock()
}

// Armed сообщает, взведён ли таймер канала.
func (r *Registry) Armed(tenantID string, destID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[destKey{tenantID: tenantID, destID: destID}]
	return ok
}

// fire — одно срабатывание канала: перепроверка конфигурации, выбор
// праздника, доставка, запись результата и перевзвод. Перевзвод
// безусловен на всех исходах, кроме удаления канала.
func (r *Registry) fire(key destKey) {
	ctx := context.Background()

	cfg, err := r.tenants.Get(ctx, key.tenantID)
	if err != nil {
		r.log.Error().Err(err).Str("tenant", key.tenantID).Msg("scheduler: чтение тенанта при срабатывании")
		r.rearmByKey(key)
		return
	}
	dest, ok := cfg.Destination(key.destID)
	if !ok {
		// Канал удалён конкурентно — терминальное состояние.
		r.Disarm(key.tenantID, key.destID)
		return
	}

	loc := locationOrUTC(dest.Timezone)
	now := r.now().In(loc)
	dayKey := domain.DayKey(now)

	if dest.SkipWeekends && (now.Weekday() == time.Saturday || now.Weekday() == time.Sunday) {
		r.log.Debug().Str("tenant", key.tenantID).Int64("destination", dest.ID).Msg("scheduler: выходной пропущен")
		r.Arm(key.tenantID, dest)
		return
	}
	if dest.LastDeliveredDayKey == dayKey {
		r.Arm(key.tenantID, dest)
		return
	}

	tier, entChanged, err := r.entitlement.TierFor(ctx, &cfg)
	if err != nil {
		r.log.Error().Err(err).Str("tenant", key.tenantID).Msg("scheduler: вычисление тарифа")
		tier = domain.TierFree
	}

	items := r.catalog.ByDate(domain.DateKey(now))
	res, err := r.selector.SelectDaily(&cfg, dest, items, now, tier)
	if err != nil {
		if errors.Is(err, selection.ErrNoHolidayForDay) || errors.Is(err, selection.ErrAllFilteredOut) {
			r.log.Info().Err(err).Str("tenant", key.tenantID).Msg("scheduler: нет праздника для поста")
		} else {
			r.log.Error().Err(err).Str("tenant", key.tenantID).Msg("scheduler: выбор праздника")
		}
		r.persistIfChanged(ctx, cfg, entChanged)
		r.Arm(key.tenantID, dest)
		return
	}

	post := r.buildPost(cfg, res, now, tier)
	start := time.Now()
	err = r.deliverer.Deliver(ctx, dest, post)
	metrics.ObserveDelivery(start, err)

	switch {
	case err == nil:
		analytics.RecordDelivery(&cfg.Analytics, dest.ID, dayKey, now.Hour(), res.Holiday.ID)
		if post.PromoPrompt != "" {
			promo.MarkShown(&cfg, domain.PromptVote, r.now())
		}
		dest.LastDeliveredDayKey = dayKey
		cfg.UpsertDestination(dest)
		cfg.UpdatedAt = r.now()
		if saveErr := r.tenants.Save(ctx, cfg); saveErr != nil {
			// Документ остаётся источником истины в памяти до конца процесса.
			r.log.Error().Err(saveErr).Str("tenant", key.tenantID).Msg("scheduler: сохранение после доставки")
		}
		metrics.IncPostForTenant(key.tenantID)
		r.log.Info().Str("tenant", key.tenantID).Int64("destination", dest.ID).Str("holiday", res.Holiday.ID).Bool("wildcard", res.Wildcard).Msg("scheduler: пост доставлен")
		r.Arm(key.tenantID, dest)

	case domain.IsPermanentDeliveryError(err):
		r.log.Warn().Err(err).Str("tenant", key.tenantID).Int64("destination", dest.ID).Msg("scheduler: канал недоступен, удаляем")
		r.removeDestination(ctx, cfg, dest.ID)

	default:
		// Временная ошибка: без повторов прямо сейчас, пропущенный день
		// поглощается следующим циклом.
		r.log.Warn().Err(err).Str("tenant", key.tenantID).Int64("destination", dest.ID).Msg("scheduler: временная ошибка доставки")
		r.persistIfChanged(ctx, cfg, entChanged || res.StateChanged)
		r.Arm(key.tenantID, dest)
	}
}

func (r *Registry) buildPost(cfg domain.TenantConfig, res selection.Result, now time.Time, tier domain.Tier) domain.DailyPost {
	// Бесплатный тариф видит только свой праздник; блок «сегодня
	// также» и тизер собираются из отфильтрованного списка и только
	// для платных.
	var names []string
	teaser := ""
	if tier.Entitled() {
		filtered := rules.Apply(r.catalog.ByDate(domain.DateKey(now)), cfg.Filters)
		for i := 0; i < len(filtered) && i < 2; i++ {
			names = append(names, filtered[i].Name)
		}
		if next := r.catalog.ByDate(domain.DateKey(now.AddDate(0, 0, 1))); len(next) > 0 {
			teaser = next[0].Name
		}
	}
	promoPrompt := ""
	if res.Wildcard && promo.CanShowForced(cfg, domain.PromptVote) {
		promoPrompt = votePrompt
	}
	branding := !tier.Entitled() || cfg.Branding
	return domain.DailyPost{
		Holiday:       res.Holiday,
		DayKey:        domain.DayKey(now),
		Teaser:        teaser,
		HeadlineNames: names,
		Branding:      branding,
		RoleMentionID: cfg.RoleMentionID,
		Quiet:         cfg.Quiet,
		Wildcard:      res.Wildcard,
		PromoPrompt:   promoPrompt,
	}
}

// removeDestination удаляет канал после permission-ошибки: сначала
// отмена таймера, затем мутация и сохранение документа.
func (r *Registry) removeDestination(ctx context.Context, cfg domain.TenantConfig, destID int64) {
	r.Disarm(cfg.TenantID, destID)
	if !cfg.RemoveDestination(destID) {
		return
	}
	cfg.UpdatedAt = r.now()
	if err := r.tenants.Save(ctx, cfg); err != nil {
		r.log.Error().Err(err).Str("tenant", cfg.TenantID).Msg("scheduler: сохранение после удаления канала")
	}
	metrics.IncDestinationPruned()
}

func (r *Registry) persistIfChanged(ctx context.Context, cfg domain.TenantConfig, changed bool) {
	if !changed {
		return
	}
	cfg.UpdatedAt = r.now()
	if err := r.tenants.Save(ctx, cfg); err != nil {
		r.log.Error().Err(err).Str("tenant", cfg.TenantID).Msg("scheduler: сохранение состояния")
	}
}

func (r *Registry) rearmByKey(key destKey) {
	cfg, err := r.tenants.Get(context.Background(), key.tenantID)
	if err != nil {
		return
	}
	if dest, ok := cfg.Destination(key.destID); ok {
		r.Arm(key.tenantID, dest)
	}
}
