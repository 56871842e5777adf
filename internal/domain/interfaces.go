package domain

import (
	"context"
	"time"
)

// TenantRepo управляет персистентными документами тенантов.
// Документ читается и пишется целиком: каждая мутация завершается
// полной перезаписью документа.
type TenantRepo interface {
	// Ensure возвращает документ тенанта, создавая его с дефолтами при первом обращении.
	Ensure(ctx context.Context, tenantID string) (TenantConfig, error)
	Get(ctx context.Context, tenantID string) (TenantConfig, error)
	Save(ctx context.Context, config TenantConfig) error
	List(ctx context.Context) ([]TenantConfig, error)
}

// EntitlementAllowlistRepo — вторичный (legacy) источник премиум-статуса.
type EntitlementAllowlistRepo interface {
	IsAllowed(ctx context.Context, tenantID string) (bool, error)
	SetAllowed(ctx context.Context, tenantID string, allowed bool) error
}

// CatalogSource загружает каталог праздников: календарный день -> упорядоченный список.
type CatalogSource interface {
	Load() (map[string][]Holiday, error)
}

// Deliverer отвечает за доставку поста дня и операции платформы.
type Deliverer interface {
	Deliver(ctx context.Context, dest Destination, post DailyPost) error
	// GrantRole выдаёт роль участнику; повторная выдача — no-op.
	GrantRole(ctx context.Context, tenantID string, actorID int64, roleID string) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}

// BillingClient создаёт сессии оплаты у внешнего биллинга.
type BillingClient interface {
	CreateCheckoutSession(ctx context.Context, tenantID string, userID int64) (string, error)
}
