package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-holiday-bot/internal/domain"
	"tg-holiday-bot/internal/infra/metrics"
)

// ErrTenantNotFound возвращается, когда документ тенанта отсутствует.
var ErrTenantNotFound = errors.New("тенант не найден")

// Postgres хранит документы тенантов целиком в JSONB: документ
// читается и перезаписывается одним запросом, частичных апдейтов нет.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.TenantRepo               = (*Postgres)(nil)
	_ domain.EntitlementAllowlistRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицы, если их нет. Вызывается при старте процесса.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
    tenant_id  TEXT PRIMARY KEY,
    doc        JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS premium_allowlist (
    tenant_id  TEXT PRIMARY KEY,
    allowed    BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "tenants", start, err)
	if err != nil {
		return fmt.Errorf("создание схемы: %w", err)
	}
	return nil
}

// Ensure возвращает документ тенанта, создавая его с дефолтами при
// первом обращении.
func (p *Postgres) Ensure(ctx context.Context, tenantID string) (domain.TenantConfig, error) {
	cfg, err := p.Get(ctx, tenantID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrTenantNotFound) {
		return domain.TenantConfig{}, err
	}

	cfg = domain.TenantConfig{
		TenantID:          tenantID,
		Timezone:          "UTC",
		PromotionsEnabled: true,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	if err := p.Save(ctx, cfg); err != nil {
		return domain.TenantConfig{}, err
	}
	return cfg, nil
}

// Get читает документ тенанта.
func (p *Postgres) Get(ctx context.Context, tenantID string) (domain.TenantConfig, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var doc []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT doc FROM tenants WHERE tenant_id = $1`, tenantID).Scan(&doc)
	metrics.ObserveNetworkRequest("postgres", "tenants_get", "tenants", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TenantConfig{}, ErrTenantNotFound
	}
	if err != nil {
		return domain.TenantConfig{}, fmt.Errorf("чтение тенанта: %w", err)
	}

	var cfg domain.TenantConfig
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return domain.TenantConfig{}, fmt.Errorf("декодирование документа тенанта: %w", err)
	}
	cfg.TenantID = tenantID
	return cfg, nil
}

// Save перезаписывает документ тенанта целиком.
func (p *Postgres) Save(ctx context.Context, cfg domain.TenantConfig) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("кодирование документа тенанта: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO tenants (tenant_id, doc, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (tenant_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
`, cfg.TenantID, doc)
	metrics.ObserveNetworkRequest("postgres", "tenants_save", "tenants", start, err)
	if err != nil {
		return fmt.Errorf("сохранение тенанта: %w", err)
	}
	return nil
}

// List возвращает документы всех тенантов; используется при старте
// планировщика для перевзвода таймеров.
func (p *Postgres) List(ctx context.Context) ([]domain.TenantConfig, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT tenant_id, doc FROM tenants ORDER BY tenant_id`)
	metrics.ObserveNetworkRequest("postgres", "tenants_list", "tenants", start, err)
	if err != nil {
		return nil, fmt.Errorf("список тенантов: %w", err)
	}
	defer rows.Close()

	var out []domain.TenantConfig
	for rows.Next() {
		var (
			tenantID string
			doc      []byte
		)
		if err := rows.Scan(&tenantID, &doc); err != nil {
			return nil, fmt.Errorf("чтение строки тенанта: %w", err)
		}
		var cfg domain.TenantConfig
		if err := json.Unmarshal(doc, &cfg); err != nil {
			return nil, fmt.Errorf("декодирование документа тенанта %s: %w", tenantID, err)
		}
		cfg.TenantID = tenantID
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход тенантов: %w", err)
	}
	return out, nil
}

// IsAllowed проверяет legacy-allowlist премиума.
func (p *Postgres) IsAllowed(ctx context.Context, tenantID string) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var allowed bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT allowed FROM premium_allowlist WHERE tenant_id = $1`, tenantID).Scan(&allowed)
	metrics.ObserveNetworkRequest("postgres", "allowlist_get", "premium_allowlist", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("чтение allowlist: %w", err)
	}
	return allowed, nil
}

// SetAllowed включает или выключает тенанта в allowlist.
func (p *Postgres) SetAllowed(ctx context.Context, tenantID string, allowed bool) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO premium_allowlist (tenant_id, allowed, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (tenant_id) DO UPDATE SET allowed = EXCLUDED.allowed, updated_at = now()
`, tenantID, allowed)
	metrics.ObserveNetworkRequest("postgres", "allowlist_set", "premium_allowlist", start, err)
	if err != nil {
		return fmt.Errorf("обновление allowlist: %w", err)
	}
	return nil
}

// InstallCount возвращает количество тенантов.
func (p *Postgres) InstallCount(ctx context.Context) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM tenants`).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "tenants_count", "tenants", start, err)
	if err != nil {
		return 0, fmt.Errorf("подсчёт тенантов: %w", err)
	}
	return count, nil
}
