package tenants

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-holiday-bot/internal/domain"
	"tg-holiday-bot/internal/usecase/analytics"
	"tg-holiday-bot/internal/usecase/catalog"
	"tg-holiday-bot/internal/usecase/entitlement"
	"tg-holiday-bot/internal/usecase/selection"
	"tg-holiday-bot/internal/usecase/streak"
)

type memTenants struct {
	configs map[string]domain.TenantConfig
	saves   int
}

func newMemTenants() *memTenants {
	return &memTenants{configs: make(map[string]domain.TenantConfig)}
}

func (m *memTenants) Ensure(_ context.Context, tenantID string) (domain.TenantConfig, error) {
	if cfg, ok := m.configs[tenantID]; ok {
		return cfg, nil
	}
	cfg := domain.TenantConfig{TenantID: tenantID}
	m.configs[tenantID] = cfg
	return cfg, nil
}

func (m *memTenants) Get(_ context.Context, tenantID string) (domain.TenantConfig, error) {
	cfg, ok := m.configs[tenantID]
	if !ok {
		return domain.TenantConfig{}, errors.New("тенант не найден")
	}
	return cfg, nil
}

func (m *memTenants) Save(_ context.Context, cfg domain.TenantConfig) error {
	m.configs[cfg.TenantID] = cfg
	m.saves++
	return nil
}

func (m *memTenants) List(_ context.Context) ([]domain.TenantConfig, error) {
	out := make([]domain.TenantConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		out = append(out, cfg)
	}
	return out, nil
}

type memAllowlist struct{ allowed map[string]bool }

func (m *memAllowlist) IsAllowed(_ context.Context, tenantID string) (bool, error) {
	return m.allowed[tenantID], nil
}

func (m *memAllowlist) SetAllowed(_ context.Context, tenantID string, allowed bool) error {
	if m.allowed == nil {
		m.allowed = make(map[string]bool)
	}
	m.allowed[tenantID] = allowed
	return nil
}

type stubScheduler struct {
	armed    []int64
	disarmed []int64
}

func (s *stubScheduler) Arm(_ string, dest domain.Destination) { s.armed = append(s.armed, dest.ID) }
func (s *stubScheduler) Disarm(_ string, destID int64)         { s.disarmed = append(s.disarmed, destID) }

type stubCache struct{ once map[string]bool }

func (c *stubCache) Once(key string, _ time.Duration, fn func() error) error {
	if c.once == nil {
		c.once = make(map[string]bool)
	}
	if c.once[key] {
		return nil
	}
	c.once[key] = true
	return fn()
}

func (c *stubCache) Set(string, []byte, time.Duration) error { return nil }
func (c *stubCache) Get(string) ([]byte, error)              { return nil, nil }

type stubDeliverer struct{ grants []int64 }

func (d *stubDeliverer) Deliver(context.Context, domain.Destination, domain.DailyPost) error {
	return nil
}

func (d *stubDeliverer) GrantRole(_ context.Context, _ string, actorID int64, _ string) error {
	d.grants = append(d.grants, actorID)
	return nil
}

type stubSource struct{ byDate map[string][]domain.Holiday }

func (s stubSource) Load() (map[string][]domain.Holiday, error) { return s.byDate, nil }

type fixture struct {
	svc       *Service
	tenants   *memTenants
	scheduler *stubScheduler
	deliverer *stubDeliverer
	now       *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.NewService(stubSource{byDate: map[string][]domain.Holiday{
		"06-10": {{ID: "donut", Name: "National Donut Day"}},
		"06-11": {{ID: "corn", Name: "Corn on the Cob Day"}},
		"06-12": {{ID: "lemon", Name: "Lemon Day"}},
	}})
	if err != nil {
		t.Fatalf("каталог: %v", err)
	}
	repo := newMemTenants()
	sched := &stubScheduler{}
	deliverer := &stubDeliverer{}
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return now }
	logger := zerolog.Nop()
	ent := entitlement.NewService(repo, &memAllowlist{}, logger).WithClock(nowFn)
	streaks := streak.NewEngine(&stubCache{}, deliverer, logger)
	svc := NewService(repo, cat, selection.NewServiceWithRand(func(int) int { return 0 }), ent, streaks, sched, logger).WithClock(nowFn)
	return &fixture{svc: svc, tenants: repo, scheduler: sched, deliverer: deliverer, now: &now}
}

func (f *fixture) makePremium(tenantID string) {
	cfg, _ := f.tenants.Ensure(context.Background(), tenantID)
	cfg.Entitlement.Paid = true
	f.tenants.configs[tenantID] = cfg
}

func TestRunSetupCreatesDestinationAndArms(t *testing.T) {
	f := newFixture(t)
	cfg, err := f.svc.RunSetup(context.Background(), "t1", SetupParams{
		DestinationID: 100,
		Hour:          9,
		Timezone:      "america/new york",
	})
	if err != nil {
		t.Fatalf("RunSetup: %v", err)
	}
	dest, ok := cfg.Destination(100)
	if !ok {
		t.Fatal("канал не создан")
	}
	if dest.Timezone != "America/New_York" {
		t.Fatalf("часовой пояс должен нормализоваться, получено %q", dest.Timezone)
	}
	if dest.Hour != 9 {
		t.Fatalf("ожидался час 9, получено %d", dest.Hour)
	}
	if len(f.scheduler.armed) != 1 || f.scheduler.armed[0] != 100 {
		t.Fatalf("канал должен быть взведён: %v", f.scheduler.armed)
	}
	if !cfg.PromotionsEnabled {
		t.Fatal("подсказки по умолчанию включены")
	}
}

func TestRunSetupRejectsBadTime(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.RunSetup(context.Background(), "t1", SetupParams{DestinationID: 1, Hour: 24}); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("ожидался ErrInvalidTime, получено %v", err)
	}
	if _, err := f.svc.RunSetup(context.Background(), "t1", SetupParams{DestinationID: 1, Hour: 9, Timezone: "Nowhere/Nope"}); !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("ожидался ErrInvalidTimezone, получено %v", err)
	}
}

func TestRunSetupPremiumOptionsGated(t *testing.T) {
	f := newFixture(t)
	tone := "silly"
	_, err := f.svc.RunSetup(context.Background(), "t1", SetupParams{DestinationID: 1, Hour: 9, Tone: &tone})
	if !errors.Is(err, ErrPremiumRequired) {
		t.Fatalf("бесплатный тариф не должен настраивать тон: %v", err)
	}

	f.makePremium("t2")
	cfg, err := f.svc.RunSetup(context.Background(), "t2", SetupParams{DestinationID: 1, Hour: 9, Tone: &tone})
	if err != nil {
		t.Fatalf("премиум должен настраивать тон: %v", err)
	}
	if cfg.Tone != "silly" {
		t.Fatalf("тон не сохранён: %q", cfg.Tone)
	}

	bad := "grumpy"
	if _, err := f.svc.RunSetup(context.Background(), "t2", SetupParams{DestinationID: 1, Hour: 9, Tone: &bad}); !errors.Is(err, ErrUnknownTone) {
		t.Fatalf("ожидался ErrUnknownTone, получено %v", err)
	}
}

func TestRunSetupFilterOptions(t *testing.T) {
	f := newFixture(t)
	on := true
	if _, err := f.svc.RunSetup(context.Background(), "t1", SetupParams{DestinationID: 1, Hour: 9, NoFood: &on}); !errors.Is(err, ErrPremiumRequired) {
		t.Fatalf("фильтры доступны только премиуму: %v", err)
	}

	f.makePremium("t2")
	words := []string{" Casino ", "BETS", ""}
	cfg, err := f.svc.RunSetup(context.Background(), "t2", SetupParams{
		DestinationID: 1,
		Hour:          9,
		NoFood:        &on,
		SafeMode:      &on,
		Blacklist:     &words,
	})
	if err != nil {
		t.Fatalf("RunSetup: %v", err)
	}
	if !cfg.Filters.NoFood || !cfg.Filters.SafeMode {
		t.Fatalf("флаги фильтров не сохранены: %+v", cfg.Filters)
	}
	if len(cfg.Filters.BlacklistKeywords) != 2 || cfg.Filters.BlacklistKeywords[0] != "casino" || cfg.Filters.BlacklistKeywords[1] != "bets" {
		t.Fatalf("чёрный список должен нормализоваться: %v", cfg.Filters.BlacklistKeywords)
	}

	// Пустой список очищает чёрный список.
	empty := []string{}
	cfg, err = f.svc.RunSetup(context.Background(), "t2", SetupParams{DestinationID: 1, Hour: 9, Blacklist: &empty})
	if err != nil {
		t.Fatalf("RunSetup: %v", err)
	}
	if len(cfg.Filters.BlacklistKeywords) != 0 {
		t.Fatalf("чёрный список должен очищаться: %v", cfg.Filters.BlacklistKeywords)
	}
}

func TestRunSetupDestinationLimit(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.RunSetup(context.Background(), "t1", SetupParams{DestinationID: 1, Hour: 9}); err != nil {
		t.Fatalf("первый канал: %v", err)
	}
	if _, err := f.svc.RunSetup(context.Background(), "t1", SetupParams{DestinationID: 2, Hour: 10}); !errors.Is(err, ErrDestinationLimit) {
		t.Fatalf("бесплатный тариф ограничен одним каналом: %v", err)
	}
	// Перенастройка существующего канала лимит не трогает.
	if _, err := f.svc.RunSetup(context.Background(), "t1", SetupParams{DestinationID: 1, Hour: 11}); err != nil {
		t.Fatalf("перенастройка существующего канала: %v", err)
	}
}

func TestRemoveDestinationDisarmsFirst(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.RunSetup(context.Background(), "t1", SetupParams{DestinationID: 1, Hour: 9}); err != nil {
		t.Fatalf("RunSetup: %v", err)
	}
	if err := f.svc.RemoveDestination(context.Background(), "t1", 1); err != nil {
		t.Fatalf("RemoveDestination: %v", err)
	}
	if len(f.scheduler.disarmed) != 1 || f.scheduler.disarmed[0] != 1 {
		t.Fatalf("таймер должен быть снят: %v", f.scheduler.disarmed)
	}
	cfg := f.tenants.configs["t1"]
	if _, ok := cfg.Destination(1); ok {
		t.Fatal("канал должен быть удалён из документа")
	}
}

func TestOverridesPremiumGatedAndBlockWins(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.BlockHoliday(context.Background(), "t1", "donut"); !errors.Is(err, ErrPremiumRequired) {
		t.Fatalf("ручные списки — премиум: %v", err)
	}

	f.makePremium("t2")
	ctx := context.Background()
	if err := f.svc.ForceHoliday(ctx, "t2", "donut"); err != nil {
		t.Fatalf("ForceHoliday: %v", err)
	}
	if err := f.svc.BlockHoliday(ctx, "t2", "donut"); err != nil {
		t.Fatalf("BlockHoliday: %v", err)
	}
	blocked, forced, err := f.svc.Overrides(ctx, "t2")
	if err != nil {
		t.Fatalf("Overrides: %v", err)
	}
	if len(blocked) != 1 || blocked[0] != "donut" {
		t.Fatalf("ожидалась блокировка donut: %v", blocked)
	}
	if len(forced) != 0 {
		t.Fatalf("блокировка снимает принудительное включение: %v", forced)
	}

	if err := f.svc.UnblockHoliday(ctx, "t2", "donut"); err != nil {
		t.Fatalf("UnblockHoliday: %v", err)
	}
	blocked, _, _ = f.svc.Overrides(ctx, "t2")
	if len(blocked) != 0 {
		t.Fatalf("блокировка должна сниматься: %v", blocked)
	}
}

func TestSetCategoriesValidates(t *testing.T) {
	f := newFixture(t)
	f.makePremium("t1")
	ctx := context.Background()
	if err := f.svc.SetCategories(ctx, "t1", []string{"Food", " weird "}); err != nil {
		t.Fatalf("SetCategories: %v", err)
	}
	cfg := f.tenants.configs["t1"]
	if len(cfg.Filters.AllowedCategories) != 2 || cfg.Filters.AllowedCategories[0] != "food" {
		t.Fatalf("категории должны нормализоваться: %v", cfg.Filters.AllowedCategories)
	}
	if err := f.svc.SetCategories(ctx, "t1", []string{"astrology"}); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("ожидался ErrUnknownCategory, получено %v", err)
	}
	if err := f.svc.SetCategories(ctx, "t1", nil); err != nil {
		t.Fatalf("SetCategories сброс: %v", err)
	}
	if f.tenants.configs["t1"].Filters.AllowedCategories != nil {
		t.Fatal("пустой список снимает ограничение категорий")
	}
}

func TestOnEngagementAdvancesStreakAndGrantsRole(t *testing.T) {
	f := newFixture(t)
	f.makePremium("t1")
	cfg := f.tenants.configs["t1"]
	cfg.StreakRoleID = "role-7"
	cfg.StreakGoal = 2
	f.tenants.configs["t1"] = cfg

	ctx := context.Background()
	if err := f.svc.OnEngagement(ctx, domain.EngagementEvent{TenantID: "t1", DestinationID: 1, ActorID: 42, OccurredAt: time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("OnEngagement: %v", err)
	}
	if err := f.svc.OnEngagement(ctx, domain.EngagementEvent{TenantID: "t1", DestinationID: 1, ActorID: 42, OccurredAt: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("OnEngagement: %v", err)
	}

	got := f.tenants.configs["t1"]
	if got.Streak.Count != 2 {
		t.Fatalf("ожидался страйк 2, получено %d", got.Streak.Count)
	}
	if got.Analytics.ReactionsByDestination[1] != 2 {
		t.Fatalf("ожидалось две реакции, получено %d", got.Analytics.ReactionsByDestination[1])
	}
	if len(f.deliverer.grants) != 1 || f.deliverer.grants[0] != 42 {
		t.Fatalf("роль должна быть выдана при достижении цели: %v", f.deliverer.grants)
	}
}

func TestOnEngagementUsesDestinationLocalDay(t *testing.T) {
	f := newFixture(t)
	cfg, _ := f.tenants.Ensure(context.Background(), "t1")
	cfg.UpsertDestination(domain.Destination{ID: 1, TenantID: "t1", Hour: 9, Timezone: "America/New_York"})
	analytics.RecordDelivery(&cfg.Analytics, 1, "2025-06-10", 9, "donut")
	f.tenants.configs["t1"] = cfg

	// 23:30 UTC — уже 11 июня по UTC, но в Нью-Йорке ещё вечер 10-го.
	ev := domain.EngagementEvent{TenantID: "t1", DestinationID: 1, ActorID: 42, OccurredAt: time.Date(2025, 6, 10, 23, 30, 0, 0, time.UTC)}
	if err := f.svc.OnEngagement(context.Background(), ev); err != nil {
		t.Fatalf("OnEngagement: %v", err)
	}

	got := f.tenants.configs["t1"]
	if got.Streak.LastDayKey != "2025-06-10" {
		t.Fatalf("ключ дня должен быть локальным для канала, получено %q", got.Streak.LastDayKey)
	}
	if len(got.Analytics.History) != 1 || got.Analytics.History[0].Reactions != 1 {
		t.Fatalf("реакция должна попасть в запись доставки того же дня: %+v", got.Analytics.History)
	}

	// Второе событие того же локального дня (00:30 UTC следующих суток).
	ev.OccurredAt = time.Date(2025, 6, 11, 0, 30, 0, 0, time.UTC)
	if err := f.svc.OnEngagement(context.Background(), ev); err != nil {
		t.Fatalf("OnEngagement: %v", err)
	}
	got = f.tenants.configs["t1"]
	if got.Streak.Count != 1 || got.Analytics.History[0].Reactions != 1 {
		t.Fatalf("повтор того же локального дня не должен менять состояние: streak=%d reactions=%d", got.Streak.Count, got.Analytics.History[0].Reactions)
	}
}

func TestUpcomingPremiumOnly(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Upcoming(context.Background(), "t1", 7); !errors.Is(err, ErrPremiumRequired) {
		t.Fatalf("горизонт — премиум: %v", err)
	}

	f.makePremium("t2")
	entries, err := f.svc.Upcoming(context.Background(), "t2", 2)
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ожидались записи на 06-11 и 06-12, получено %d", len(entries))
	}
	if entries[0].Holiday.ID != "corn" {
		t.Fatalf("горизонт начинается с завтрашнего дня, получено %q", entries[0].Holiday.ID)
	}
}

func TestMaybeShowPromoThrottles(t *testing.T) {
	f := newFixture(t)
	cfg, _ := f.tenants.Ensure(context.Background(), "t1")
	cfg.PromotionsEnabled = true
	f.tenants.configs["t1"] = cfg

	ok, err := f.svc.MaybeShowPromo(context.Background(), "t1", domain.PromptVote)
	if err != nil || !ok {
		t.Fatalf("первый показ должен пройти: ok=%v err=%v", ok, err)
	}
	ok, err = f.svc.MaybeShowPromo(context.Background(), "t1", domain.PromptVote)
	if err != nil || ok {
		t.Fatalf("повторный показ внутри окна запрещён: ok=%v err=%v", ok, err)
	}
	*f.now = f.now.Add(8 * 24 * time.Hour)
	ok, _ = f.svc.MaybeShowPromo(context.Background(), "t1", domain.PromptVote)
	if !ok {
		t.Fatal("после окна показ снова разрешён")
	}
}

func TestPreviewTomorrow(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.RunSetup(context.Background(), "t1", SetupParams{DestinationID: 1, Hour: 9, Timezone: "UTC"}); err != nil {
		t.Fatalf("RunSetup: %v", err)
	}
	res, err := f.svc.Preview(context.Background(), "t1", 1)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if res.Holiday.ID != "corn" {
		t.Fatalf("завтра ожидался corn, получено %q", res.Holiday.ID)
	}
}
