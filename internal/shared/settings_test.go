package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type stubSettingsBackend struct {
	settings TenantSettings
	loads    int
	saves    int
}

func (b *stubSettingsBackend) Load(_ context.Context, _ uuid.UUID) (TenantSettings, error) {
	b.loads++
	return b.settings, nil
}

func (b *stubSettingsBackend) Save(_ context.Context, _ uuid.UUID, in TenantSettings) error {
	b.saves++
	b.settings = in
	return nil
}

func newCacheUnderTest(t *testing.T) (*SettingsCache, *stubSettingsBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	backend := &stubSettingsBackend{settings: TenantSettings{Currency: "USD", Timezone: "America/Chicago", RetainedEarningsAccountID: 30}}
	return NewSettingsCache(backend, client, time.Minute), backend, mr
}

var cacheTenant = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func TestSettingsCacheHitSkipsStore(t *testing.T) {
	cache, backend, _ := newCacheUnderTest(t)
	ctx := context.Background()

	first, err := cache.Get(ctx, cacheTenant)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.Currency != "USD" {
		t.Fatalf("currency = %s", first.Currency)
	}
	if _, err := cache.Get(ctx, cacheTenant); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if backend.loads != 1 {
		t.Fatalf("expected one store load, got %d", backend.loads)
	}
}

func TestSettingsCacheUpdateInvalidates(t *testing.T) {
	cache, backend, _ := newCacheUnderTest(t)
	ctx := context.Background()

	if _, err := cache.Get(ctx, cacheTenant); err != nil {
		t.Fatalf("warm: %v", err)
	}
	updated := TenantSettings{Currency: "EUR", Timezone: "Europe/Berlin", RetainedEarningsAccountID: 31}
	if err := cache.Update(ctx, cacheTenant, updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	after, err := cache.Get(ctx, cacheTenant)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if after.Currency != "EUR" {
		t.Fatalf("stale settings served after invalidation: %+v", after)
	}
	if backend.saves != 1 || backend.loads != 2 {
		t.Fatalf("loads=%d saves=%d", backend.loads, backend.saves)
	}
}

func TestSettingsCacheExpiresWithTTL(t *testing.T) {
	cache, backend, mr := newCacheUnderTest(t)
	ctx := context.Background()

	if _, err := cache.Get(ctx, cacheTenant); err != nil {
		t.Fatalf("warm: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := cache.Get(ctx, cacheTenant); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if backend.loads != 2 {
		t.Fatalf("expected reload after TTL, loads=%d", backend.loads)
	}
}
