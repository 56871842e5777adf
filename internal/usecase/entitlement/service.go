package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-holiday-bot/internal/domain"
)

var (
	// ErrTrialAlreadyRedeemed возвращается при повторной попытке активировать триал.
	ErrTrialAlreadyRedeemed = errors.New("пробный период уже был использован")

	// ErrAlreadyEntitled возвращается, если премиум уже активен.
	ErrAlreadyEntitled = errors.New("премиум уже активен")
)

// Observation — результат явного шага наблюдения тарифа: вычисленное
// состояние плюс признак отложенной очистки истёкшего триала, которую
// вызывающий обязан зафиксировать.
type Observation struct {
	Tier           domain.Tier
	TrialEndsAt    *time.Time
	PendingCleanup bool
}

// Observe вычисляет тариф из первичного поля документа. Чтение чистое:
// очистка истёкшего триала возвращается отдельным признаком и
// применяется вызывающим через Commit.
func Observe(info domain.EntitlementInfo, now time.Time) Observation {
	if info.Paid {
		return Observation{Tier: domain.TierPremium}
	}
	if info.TrialEndsAt != nil {
		if now.Before(*info.TrialEndsAt) {
			return Observation{Tier: domain.TierTrial, TrialEndsAt: info.TrialEndsAt}
		}
		return Observation{Tier: domain.TierFree, PendingCleanup: true}
	}
	return Observation{Tier: domain.TierFree}
}

// Commit применяет отложенную очистку к документу. Возвращает true,
// если документ изменился и его нужно сохранить.
func (o Observation) Commit(info *domain.EntitlementInfo) bool {
	if !o.PendingCleanup || info.TrialEndsAt == nil {
		return false
	}
	info.TrialEndsAt = nil
	return true
}

// Service реализует машину состояний тарифа free -> trial -> premium.
type Service struct {
	tenants   domain.TenantRepo
	allowlist domain.EntitlementAllowlistRepo
	log       zerolog.Logger
	now       func() time.Time
}

// NewService создаёт сервис тарифов.
func NewService(tenants domain.TenantRepo, allowlist domain.EntitlementAllowlistRepo, log zerolog.Logger) *Service {
	return &Service{tenants: tenants, allowlist: allowlist, log: log, now: time.Now}
}

// WithClock подменяет источник времени (для тестов).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// TierFor вычисляет тариф тенанта, сливая первичное поле документа со
// legacy-allowlist. Мутирует cfg при ленивой очистке; возвращает true,
// если документ нужно сохранить.
func (s *Service) TierFor(ctx context.Context, cfg *domain.TenantConfig) (domain.Tier, bool, error) {
	allowed, err := s.allowlist.IsAllowed(ctx, cfg.TenantID)
	if err != nil {
		return domain.TierFree, false, fmt.Errorf("чтение allowlist: %w", err)
	}
	if allowed {
		return domain.TierPremium, false, nil
	}
	obs := Observe(cfg.Entitlement, s.now())
	changed := obs.Commit(&cfg.Entitlement)
	return obs.Tier, changed, nil
}

// Tier возвращает тариф тенанта, фиксируя ленивую очистку истёкшего
// триала единственной записью документа.
func (s *Service) Tier(ctx context.Context, tenantID string) (domain.Tier, error) {
	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return domain.TierFree, fmt.Errorf("получение тенанта: %w", err)
	}
	tier, changed, err := s.TierFor(ctx, &cfg)
	if err != nil {
		return domain.TierFree, err
	}
	if changed {
		if err := s.tenants.Save(ctx, cfg); err != nil {
			return tier, fmt.Errorf("сохранение тенанта: %w", err)
		}
		s.log.Info().Str("tenant", tenantID).Msg("entitlement: истёкший триал очищен")
	}
	return tier, nil
}

// StartTrial активирует одноразовый пробный период. Повторный вызов
// чисто отклоняется без побочных эффектов.
func (s *Service) StartTrial(ctx context.Context, tenantID string, actorID int64) (domain.TenantConfig, error) {
	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return domain.TenantConfig{}, fmt.Errorf("получение тенанта: %w", err)
	}
	if cfg.Entitlement.TrialRedeemedAt != nil {
		return domain.TenantConfig{}, ErrTrialAlreadyRedeemed
	}
	tier, _, err := s.TierFor(ctx, &cfg)
	if err != nil {
		return domain.TenantConfig{}, err
	}
	if tier.Entitled() {
		return domain.TenantConfig{}, ErrAlreadyEntitled
	}
	now := s.now()
	ends := now.Add(domain.TrialDuration)
	cfg.Entitlement.TrialRedeemedAt = &now
	cfg.Entitlement.TrialEndsAt = &ends
	cfg.UpdatedAt = now
	if err := s.tenants.Save(ctx, cfg); err != nil {
		return domain.TenantConfig{}, fmt.Errorf("сохранение тенанта: %w", err)
	}
	s.log.Info().Str("tenant", tenantID).Int64("actor", actorID).Time("ends_at", ends).Msg("entitlement: триал активирован")
	return cfg, nil
}

// Grant включает премиум; вызывается только вебхуком биллинга. Идемпотентен.
func (s *Service) Grant(ctx context.Context, tenantID string) error {
	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("получение тенанта: %w", err)
	}
	if !cfg.Entitlement.Paid {
		cfg.Entitlement.Paid = true
		cfg.UpdatedAt = s.now()
		if err := s.tenants.Save(ctx, cfg); err != nil {
			return fmt.Errorf("сохранение тенанта: %w", err)
		}
	}
	if err := s.allowlist.SetAllowed(ctx, tenantID, true); err != nil {
		return fmt.Errorf("обновление allowlist: %w", err)
	}
	s.log.Info().Str("tenant", tenantID).Msg("entitlement: премиум выдан")
	return nil
}

// Revoke отключает премиум; вызывается только вебхуком биллинга. Идемпотентен.
func (s *Service) Revoke(ctx context.Context, tenantID string) error {
	cfg, err := s.tenants.Ensure(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("получение тенанта: %w", err)
	}
	if cfg.Entitlement.Paid {
		cfg.Entitlement.Paid = false
		cfg.UpdatedAt = s.now()
		if err := s.tenants.Save(ctx, cfg); err != nil {
			return fmt.Errorf("сохранение тенанта: %w", err)
		}
	}
	if err := s.allowlist.SetAllowed(ctx, tenantID, false); err != nil {
		return fmt.Errorf("обновление allowlist: %w", err)
	}
	s.log.Info().Str("tenant", tenantID).Msg("entitlement: премиум отозван")
	return nil
}
