package wallet_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/fxwallet/internal/fx"
	"github.com/congo-pay/fxwallet/internal/infra"
	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/logging"
	"github.com/congo-pay/fxwallet/internal/notification"
	"github.com/congo-pay/fxwallet/internal/reconcile"
	"github.com/congo-pay/fxwallet/internal/wallet"
)

type pgFixture struct {
	store *ledger.PostgresStore
	rates *fx.RateTable
	svc   *wallet.Service
	// from and to are a pair no other run uses.
	from, to string
}

func newPostgresFixture(t *testing.T, maxConns int32) pgFixture {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := infra.NewPostgresPool(ctx, url, infra.PoolOptions{AppName: "fxwallet-test", MaxConns: maxConns})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, infra.Migrate(ctx, pool, logging.Discard()))

	store := ledger.NewPostgresStore(pool)
	rates := fx.NewRateTable(store, nil, logging.Discard())
	code := uuid.NewString()
	f := pgFixture{
		store: store,
		rates: rates,
		svc:   wallet.NewService(store, rates, logging.Discard(), wallet.Options{}),
		from:  "Q" + code[:2],
		to:    "W" + code[2:4],
	}
	_, err = rates.Upsert(ctx, f.from, f.to, decimal.RequireFromString("18.70"))
	require.NoError(t, err)
	_, err = rates.Upsert(ctx, f.to, f.from, decimal.RequireFromString("0.053"))
	require.NoError(t, err)
	return f
}

func newUser() string {
	return uuid.NewString()[:32]
}

func TestPostgresService_ConvertOnSingleConnectionPool(t *testing.T) {
	f := newPostgresFixture(t, 1)
	// A unit that needs a second connection would block until this fires.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	user := newUser()

	_, err := f.svc.Fund(ctx, user, f.from, decimal.RequireFromString("1000"))
	require.NoError(t, err)
	res, err := f.svc.Convert(ctx, user, f.from, f.to, decimal.RequireFromString("500"))
	require.NoError(t, err)
	assert.Equal(t, "9350.00000000", res.Converted.StringFixed(8))
	assert.Equal(t, "18.70000000", res.Rate.StringFixed(8))

	balances, err := f.svc.Balances(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "500.00000000", balances[f.from].StringFixed(8))
	assert.Equal(t, "9350.00000000", balances[f.to].StringFixed(8))

	history, err := f.svc.History(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ledger.KindConvertIn, history[0].Kind)
	assert.Equal(t, ledger.KindConvertOut, history[1].Kind)
	assert.Equal(t, ledger.KindFund, history[2].Kind)
	require.NotNil(t, history[0].FxRate)
	assert.Equal(t, "18.70000000", history[0].FxRate.StringFixed(8))
}

func TestPostgresService_ConvertWithoutRateLeavesNothing(t *testing.T) {
	f := newPostgresFixture(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	user := newUser()
	missing := "X" + uuid.NewString()[:2]

	_, err := f.svc.Fund(ctx, user, f.from, decimal.RequireFromString("100"))
	require.NoError(t, err)

	_, err = f.svc.Convert(ctx, user, f.from, missing, decimal.RequireFromString("50"))
	require.ErrorIs(t, err, ledger.ErrRateNotFound)

	snap, err := f.store.Snapshot(ctx, user)
	require.NoError(t, err)
	require.Len(t, snap.Wallets, 1)
	assert.Equal(t, f.from, snap.Wallets[0].Currency)
	assert.Equal(t, "100.00000000", snap.Wallets[0].Balance.StringFixed(8))
	assert.Len(t, snap.Transactions, 1)
}

func TestPostgresService_ReconcileCleanAfterMixedOperations(t *testing.T) {
	f := newPostgresFixture(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	user := newUser()

	_, err := f.svc.Fund(ctx, user, f.from, decimal.RequireFromString("1000"))
	require.NoError(t, err)
	_, err = f.svc.Withdraw(ctx, user, f.from, decimal.RequireFromString("100.5"))
	require.NoError(t, err)
	_, err = f.svc.Convert(ctx, user, f.from, f.to, decimal.RequireFromString("500"))
	require.NoError(t, err)
	_, err = f.svc.Convert(ctx, user, f.to, f.from, decimal.RequireFromString("123.45678901"))
	require.NoError(t, err)

	engine := reconcile.NewEngine(f.store, notification.NewLoggerNotifier(logging.Discard()), logging.Discard())
	report, err := engine.Reconcile(ctx, user)
	require.NoError(t, err)
	assert.True(t, report.Reconciled, report.Summary())
	assert.Empty(t, report.Discrepancies)
}

func TestPostgresService_ConcurrentConvertsOnSmallPool(t *testing.T) {
	const users = 8
	f := newPostgresFixture(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	ids := make([]string, users)
	for i := range ids {
		ids[i] = newUser()
		_, err := f.svc.Fund(ctx, ids[i], f.from, decimal.RequireFromString("10"))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, users)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.svc.Convert(ctx, id, f.from, f.to, decimal.RequireFromString("10")); err != nil {
				errs <- fmt.Errorf("convert %s: %w", id, err)
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	for _, id := range ids {
		balances, err := f.svc.Balances(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "187.00000000", balances[f.to].StringFixed(8))
		assert.NotContains(t, balances, f.from)
	}
}
