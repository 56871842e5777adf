package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-holiday-bot/internal/domain"
)

type stubTenants struct {
	configs map[string]domain.TenantConfig
	saves   int
}

func newStubTenants() *stubTenants {
	return &stubTenants{configs: make(map[string]domain.TenantConfig)}
}

func (s *stubTenants) Ensure(_ context.Context, id string) (domain.TenantConfig, error) {
	if cfg, ok := s.configs[id]; ok {
		return cfg, nil
	}
	cfg := domain.TenantConfig{TenantID: id, Timezone: "UTC"}
	s.configs[id] = cfg
	return cfg, nil
}

func (s *stubTenants) Get(_ context.Context, id string) (domain.TenantConfig, error) {
	return s.configs[id], nil
}

func (s *stubTenants) Save(_ context.Context, cfg domain.TenantConfig) error {
	s.configs[cfg.TenantID] = cfg
	s.saves++
	return nil
}

func (s *stubTenants) List(context.Context) ([]domain.TenantConfig, error) { return nil, nil }

type stubAllowlist struct {
	allowed map[string]bool
}

func (s *stubAllowlist) IsAllowed(_ context.Context, id string) (bool, error) {
	return s.allowed[id], nil
}

func (s *stubAllowlist) SetAllowed(_ context.Context, id string, allowed bool) error {
	if s.allowed == nil {
		s.allowed = make(map[string]bool)
	}
	s.allowed[id] = allowed
	return nil
}

func newTestService(now time.Time) (*Service, *stubTenants, *stubAllowlist) {
	tenants := newStubTenants()
	allowlist := &stubAllowlist{}
	svc := NewService(tenants, allowlist, zerolog.Nop()).WithClock(func() time.Time { return now })
	return svc, tenants, allowlist
}

func TestObserveStates(t *testing.T) {
	now := time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)
	if obs := Observe(domain.EntitlementInfo{Paid: true}, now); obs.Tier != domain.TierPremium {
		t.Fatalf("ожидали premium, получили %s", obs.Tier)
	}
	ends := now.Add(time.Hour)
	if obs := Observe(domain.EntitlementInfo{TrialEndsAt: &ends}, now); obs.Tier != domain.TierTrial {
		t.Fatalf("ожидали trial, получили %s", obs.Tier)
	}
	past := now.Add(-time.Hour)
	obs := Observe(domain.EntitlementInfo{TrialEndsAt: &past}, now)
	if obs.Tier != domain.TierFree || !obs.PendingCleanup {
		t.Fatalf("истёкший триал должен дать free с отложенной очисткой: %+v", obs)
	}
}

func TestStartTrialIdempotent(t *testing.T) {
	now := time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)
	svc, tenants, _ := newTestService(now)
	ctx := context.Background()

	cfg, err := svc.StartTrial(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if cfg.Entitlement.TrialEndsAt == nil || !cfg.Entitlement.TrialEndsAt.Equal(now.Add(domain.TrialDuration)) {
		t.Fatalf("неверный конец триала: %v", cfg.Entitlement.TrialEndsAt)
	}
	firstEnds := *cfg.Entitlement.TrialEndsAt
	savesAfterFirst := tenants.saves

	if _, err := svc.StartTrial(ctx, "t1", 10); !errors.Is(err, ErrTrialAlreadyRedeemed) {
		t.Fatalf("ожидали ErrTrialAlreadyRedeemed, получили %v", err)
	}
	if tenants.saves != savesAfterFirst {
		t.Fatalf("повторный вызов не должен писать документ")
	}
	stored := tenants.configs["t1"]
	if stored.Entitlement.TrialEndsAt == nil || !stored.Entitlement.TrialEndsAt.Equal(firstEnds) {
		t.Fatalf("повторный вызов не должен менять конец триала")
	}
}

func TestStartTrialRejectsEntitled(t *testing.T) {
	now := time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)
	svc, tenants, _ := newTestService(now)
	ctx := context.Background()

	cfg, _ := tenants.Ensure(ctx, "paid")
	cfg.Entitlement.Paid = true
	_ = tenants.Save(ctx, cfg)

	if _, err := svc.StartTrial(ctx, "paid", 1); !errors.Is(err, ErrAlreadyEntitled) {
		t.Fatalf("ожидали ErrAlreadyEntitled, получили %v", err)
	}
}

func TestTierLazyCleanup(t *testing.T) {
	now := time.Date(2025, time.April, 10, 12, 0, 0, 0, time.UTC)
	svc, tenants, _ := newTestService(now)
	ctx := context.Background()

	past := now.Add(-48 * time.Hour)
	redeemed := now.Add(-10 * 24 * time.Hour)
	cfg, _ := tenants.Ensure(ctx, "t1")
	cfg.Entitlement.TrialRedeemedAt = &redeemed
	cfg.Entitlement.TrialEndsAt = &past
	_ = tenants.Save(ctx, cfg)

	tier, err := svc.Tier(ctx, "t1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if tier != domain.TierFree {
		t.Fatalf("ожидали free после истечения, получили %s", tier)
	}
	stored := tenants.configs["t1"]
	if stored.Entitlement.TrialEndsAt != nil {
		t.Fatalf("ленивая очистка должна сбросить конец триала")
	}
	if stored.Entitlement.TrialRedeemedAt == nil {
		t.Fatalf("отметка активации триала должна сохраниться")
	}
}

func TestAllowlistMerge(t *testing.T) {
	now := time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)
	svc, tenants, allowlist := newTestService(now)
	ctx := context.Background()

	_ = allowlist.SetAllowed(ctx, "legacy", true)
	tier, err := svc.Tier(ctx, "legacy")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if tier != domain.TierPremium {
		t.Fatalf("allowlist должен давать premium, получили %s", tier)
	}

	if err := svc.Revoke(ctx, "legacy"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	tier, _ = svc.Tier(ctx, "legacy")
	if tier != domain.TierFree {
		t.Fatalf("после отзыва ожидали free, получили %s", tier)
	}
	_ = tenants
}

func TestGrantIdempotent(t *testing.T) {
	now := time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)
	svc, tenants, _ := newTestService(now)
	ctx := context.Background()

	if err := svc.Grant(ctx, "t1"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	saves := tenants.saves
	if err := svc.Grant(ctx, "t1"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if tenants.saves != saves {
		t.Fatalf("повторный grant не должен писать документ")
	}
}
