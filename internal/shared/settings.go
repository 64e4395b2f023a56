package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// TenantSettings holds cross-cutting per-tenant configuration consumed by the
// ledger (currency presentation, default closing account).
type TenantSettings struct {
	Currency                  string `json:"currency"`
	Timezone                  string `json:"timezone"`
	RetainedEarningsAccountID int64  `json:"retained_earnings_account_id"`
}

// SettingsStore loads and updates tenant settings rows.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore constructs the store.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Load fetches settings for a tenant.
func (s *SettingsStore) Load(ctx context.Context, tenantID uuid.UUID) (TenantSettings, error) {
	var out TenantSettings
	err := s.pool.QueryRow(ctx, `SELECT currency, timezone, COALESCE(retained_earnings_account_id, 0)
FROM tenant_settings WHERE tenant_id=$1`, tenantID).
		Scan(&out.Currency, &out.Timezone, &out.RetainedEarningsAccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantSettings{}, ErrNotFound
		}
		return TenantSettings{}, err
	}
	return out, nil
}

// Save upserts settings for a tenant.
func (s *SettingsStore) Save(ctx context.Context, tenantID uuid.UUID, in TenantSettings) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO tenant_settings (tenant_id, currency, timezone, retained_earnings_account_id)
VALUES ($1, $2, $3, NULLIF($4, 0))
ON CONFLICT (tenant_id) DO UPDATE SET currency=EXCLUDED.currency, timezone=EXCLUDED.timezone,
retained_earnings_account_id=EXCLUDED.retained_earnings_account_id, updated_at=NOW()`,
		tenantID, in.Currency, in.Timezone, in.RetainedEarningsAccountID)
	return err
}

// SettingsBackend is the persistence the cache fronts.
type SettingsBackend interface {
	Load(ctx context.Context, tenantID uuid.UUID) (TenantSettings, error)
	Save(ctx context.Context, tenantID uuid.UUID, in TenantSettings) error
}

// SettingsCache fronts the store with a Redis cache bounded by an explicit
// TTL. The write path must call Invalidate; the cache never self-heals stale
// entries before the TTL elapses.
type SettingsCache struct {
	store  SettingsBackend
	client *redis.Client
	ttl    time.Duration
}

// NewSettingsCache constructs the cache.
func NewSettingsCache(store SettingsBackend, client *redis.Client, ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SettingsCache{store: store, client: client, ttl: ttl}
}

func settingsKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("settings:%s", tenantID)
}

// Get returns settings, consulting the cache first.
func (c *SettingsCache) Get(ctx context.Context, tenantID uuid.UUID) (TenantSettings, error) {
	if c.client != nil {
		raw, err := c.client.Get(ctx, settingsKey(tenantID)).Bytes()
		if err == nil {
			var cached TenantSettings
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}
	settings, err := c.store.Load(ctx, tenantID)
	if err != nil {
		return TenantSettings{}, err
	}
	if c.client != nil {
		if raw, err := json.Marshal(settings); err == nil {
			_ = c.client.Set(ctx, settingsKey(tenantID), raw, c.ttl).Err()
		}
	}
	return settings, nil
}

// Update persists settings and invalidates the cached entry.
func (c *SettingsCache) Update(ctx context.Context, tenantID uuid.UUID, in TenantSettings) error {
	if err := c.store.Save(ctx, tenantID, in); err != nil {
		return err
	}
	return c.Invalidate(ctx, tenantID)
}

// Invalidate drops the cached entry for a tenant.
func (c *SettingsCache) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, settingsKey(tenantID)).Err()
}
