package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/paperex/internal/domain"
	"github.com/betbot/paperex/pkg/persistence"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager(t *testing.T) (*Manager, *fakeClock, persistence.Store) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := persistence.NewMemoryStore()
	m := NewManager(store, Options{
		Timeout:          30 * time.Minute,
		InitialBalances:  map[string]decimal.Decimal{"EUR": decimal.NewFromInt(400), "BTC": decimal.RequireFromString("0.5")},
		DefaultWatchlist: []string{"BTCEUR", "ETHEUR", "BNBEUR"},
		Now:              clock.Now,
	})
	return m, clock, store
}

func TestCreateSessionSeedsAccount(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	id, err := m.CreateSession(ctx, Credential{Email: "demo@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.AccountIDFromEmail("demo@example.com"), id)

	acc, err := m.ResolveCurrentAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, id, acc.ID)
	assert.True(t, acc.Balance("EUR").Equal(decimal.NewFromInt(400)))
	assert.Equal(t, []string{"BTCEUR", "ETHEUR", "BNBEUR"}, acc.Watchlist)
	assert.Empty(t, acc.OpenOrders)
}

func TestCreateSessionIdempotentID(t *testing.T) {
	m, clock, store := newTestManager(t)
	ctx := context.Background()

	id1, err := m.CreateSession(ctx, Credential{Email: "demo@example.com"})
	require.NoError(t, err)

	// 修改余额后再次登录，账户不应被重建
	var acc domain.Account
	require.NoError(t, store.Get(ctx, domain.AccountKey(id1), &acc))
	acc.Balances["EUR"] = decimal.NewFromInt(1)
	require.NoError(t, store.Set(ctx, domain.AccountKey(id1), acc))

	clock.Advance(time.Hour)
	id2, err := m.CreateSession(ctx, Credential{Email: "demo@example.com"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := m.ResolveCurrentAccount(ctx)
	require.NoError(t, err)
	assert.True(t, got.Balance("EUR").Equal(decimal.NewFromInt(1)))
	assert.True(t, clock.now.Equal(got.LastLoginAt))
}

func TestJSONStoreSeparatesSimilarEmails(t *testing.T) {
	store, err := persistence.Open(persistence.Config{Driver: "json", Path: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()
	m := NewManager(store, Options{Timeout: 30 * time.Minute})
	ctx := context.Background()

	// 两个邮箱的 id 只差 + 和 /
	idA, err := m.CreateSession(ctx, Credential{Email: "xy>@example.com", Password: "a"})
	require.NoError(t, err)
	idB, err := m.CreateSession(ctx, Credential{Email: "xy?@example.com", Password: "b"})
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)

	acc, err := m.ResolveCurrentAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "xy?@example.com", acc.Email)
}

func TestCreateSessionEmptyCredential(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.CreateSession(context.Background(), Credential{Email: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestPasswordProtectedAccount(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateSession(ctx, Credential{Email: "a@b.c", Password: "s3cret"})
	require.NoError(t, err)
	require.NoError(t, m.EndSession(ctx))

	_, err = m.CreateSession(ctx, Credential{Email: "a@b.c", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
	id, err := m.CurrentAccountID(ctx)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Empty(t, id)

	_, err = m.CreateSession(ctx, Credential{Email: "a@b.c", Password: "s3cret"})
	require.NoError(t, err)
}

func TestSessionExpiresFromStart(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateSession(ctx, Credential{Email: "demo@example.com"})
	require.NoError(t, err)

	clock.Advance(29 * time.Minute)
	acc, err := m.ResolveCurrentAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, acc)

	// 访问不会延长会话
	clock.Advance(2 * time.Minute)
	acc, err = m.ResolveCurrentAccount(ctx)
	require.NoError(t, err)
	assert.Nil(t, acc)

	_, err = m.CurrentAccountID(ctx)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestEndSessionIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.EndSession(ctx))
	_, err := m.CreateSession(ctx, Credential{Email: "demo@example.com"})
	require.NoError(t, err)
	require.NoError(t, m.EndSession(ctx))
	require.NoError(t, m.EndSession(ctx))

	acc, err := m.ResolveCurrentAccount(ctx)
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestMissingAccountLogsOut(t *testing.T) {
	m, _, store := newTestManager(t)
	ctx := context.Background()

	id, err := m.CreateSession(ctx, Credential{Email: "demo@example.com"})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, domain.AccountKey(id)))

	acc, err := m.ResolveCurrentAccount(ctx)
	require.NoError(t, err)
	assert.Nil(t, acc)
	_, err = m.CurrentAccountID(ctx)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

type failingBackend struct{ *persistence.MemoryBackend }

func (failingBackend) SetBytes(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestStorageFailureIsOpaque(t *testing.T) {
	store := persistence.NewStore("failing", failingBackend{persistence.NewMemoryBackend()})
	m := NewManager(store, Options{})
	_, err := m.CreateSession(context.Background(), Credential{Email: "demo@example.com"})
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	h, err := HashPassword("pw")
	require.NoError(t, err)
	assert.True(t, VerifyPassword(h, "pw"))
	assert.False(t, VerifyPassword(h, "PW"))
	assert.False(t, VerifyPassword("garbage", "pw"))
}
