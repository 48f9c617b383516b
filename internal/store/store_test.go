package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, zap.NewNop()), mr
}

func TestConfigStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, DataQualityKey("US01", "2025M12"), FlagPassed))

	got, err := s.Get(ctx, DataQualityKey("US01", "2025M12"))
	require.NoError(t, err)
	assert.Equal(t, FlagPassed, got)

	// Контрактный формат ключа: физический ключ в Redis несет только
	// префикс платформы поверх неизменного формата
	raw, err := mr.Get("closegate:cfg:dataQualityStatus_US01_2025M12")
	require.NoError(t, err)
	assert.Equal(t, FlagPassed, raw)
}

func TestConfigStoreAbsentKey(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	_, err := s.Get(context.Background(), ICReconKey("US01", "2025M12"))
	require.ErrorIs(t, err, ErrAbsent)
}

func TestKeyFormats(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "dataQualityStatus_US01_2025M12", DataQualityKey("US01", "2025M12"))
	assert.Equal(t, "icReconStatus_DE01_2025M06", ICReconKey("DE01", "2025M06"))
	assert.Equal(t, "managerApproval_US01_Budget_2025M12", ApprovalKey("US01", "Budget", "2025M12"))
	// Комментарий исторически живет без префикса вида ключа
	assert.Equal(t, "US01_TotalRevenue_2025M12", CommentaryKey("US01", "TotalRevenue", "2025M12"))
}

func TestResolveRoleFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, RoleKey("global", "approver"), "cfo@corp.local"))
	require.NoError(t, s.Set(ctx, RoleKey("US01", "approver"), "us-manager@corp.local"))

	// Карта юрлица приоритетна
	addr, err := s.Resolve(ctx, "US01", "approver")
	require.NoError(t, err)
	assert.Equal(t, "us-manager@corp.local", addr)

	// Нет карты юрлица — глобальная
	addr, err = s.Resolve(ctx, "DE01", "approver")
	require.NoError(t, err)
	assert.Equal(t, "cfo@corp.local", addr)

	// Нет нигде — отсутствие, не сбой
	_, err = s.Resolve(ctx, "DE01", "controller")
	require.ErrorIs(t, err, ErrAbsent)
}

func TestWebhookURLFallback(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, WebhookKey("global"), "https://chat.corp.local/hooks/close"))

	url, err := s.WebhookURL(ctx, "US01")
	require.NoError(t, err)
	assert.Equal(t, "https://chat.corp.local/hooks/close", url)
}

func TestICPartnersConfiguredList(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	// Сам себе контрагентом быть нельзя, пустые элементы игнорируются
	require.NoError(t, s.Set(ctx, ICPartnersKey("US01"), "DE01, UK01,,US01, FR01"))

	partners, err := s.ICPartners(ctx, "US01")
	require.NoError(t, err)
	assert.Equal(t, []string{"DE01", "UK01", "FR01"}, partners)
}

func TestICPartnersFallbackToBaseEntities(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	partners, err := s.ICPartners(context.Background(), "US01")
	require.NoError(t, err)
	assert.Len(t, partners, 11)
	assert.NotContains(t, partners, "US01")
	assert.Contains(t, partners, "DE01")
}

func TestStoreErrorIsNotAbsent(t *testing.T) {
	t.Parallel()

	s, mr := newTestStore(t)
	mr.Close() // имитация деградации Redis

	_, err := s.Get(context.Background(), DataQualityKey("US01", "2025M12"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAbsent)
}
