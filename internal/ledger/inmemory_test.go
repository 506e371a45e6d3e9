package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func credit(ctx context.Context, s Store, key WalletKey, amount decimal.Decimal) error {
	return s.InTx(ctx, []WalletKey{key}, func(tx Tx) error {
		w, err := tx.Wallet(ctx, key)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, key, w.Balance.Add(amount)); err != nil {
			return err
		}
		return tx.Append(ctx, Transaction{UserID: key.UserID, Kind: KindFund, Currency: key.Currency, Amount: amount})
	})
}

func TestInMemoryStore_GetOrCreateWalletIsUnique(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	key := WalletKey{UserID: "u1", Currency: "USD"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.GetOrCreateWallet(ctx, key)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	wallets, err := s.Wallets(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.True(t, wallets[0].Balance.IsZero())
}

func TestInMemoryStore_CommitAppliesAllWrites(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	key := WalletKey{UserID: "u1", Currency: "USD"}

	require.NoError(t, credit(ctx, s, key, dec("10.5")))
	require.NoError(t, credit(ctx, s, key, dec("4.5")))

	wallets, err := s.Wallets(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.True(t, wallets[0].Balance.Equal(dec("15")))

	history, err := s.Transactions(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Greater(t, history[0].ID, history[1].ID, "newest first")
	assert.False(t, history[0].CreatedAt.IsZero())
}

func TestInMemoryStore_FailedUnitLeavesNoTrace(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	from := WalletKey{UserID: "u1", Currency: "USD"}
	to := WalletKey{UserID: "u1", Currency: "MXN"}
	boom := errors.New("boom")

	err := s.InTx(ctx, []WalletKey{from, to}, func(tx Tx) error {
		if err := tx.SetBalance(ctx, from, dec("1")); err != nil {
			return err
		}
		if err := tx.Append(ctx, Transaction{UserID: "u1", Kind: KindFund, Currency: "USD", Amount: dec("1")}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	wallets, err := s.Wallets(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, wallets)
	history, err := s.Transactions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestInMemoryStore_RejectsUndeclaredWallet(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	declared := WalletKey{UserID: "u1", Currency: "USD"}
	other := WalletKey{UserID: "u1", Currency: "MXN"}

	err := s.InTx(ctx, []WalletKey{declared}, func(tx Tx) error {
		_, err := tx.Wallet(ctx, other)
		return err
	})
	require.ErrorIs(t, err, errUndeclaredWallet)
}

func TestInMemoryStore_RejectsNegativeBalance(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	key := WalletKey{UserID: "u1", Currency: "USD"}

	err := s.InTx(ctx, []WalletKey{key}, func(tx Tx) error {
		return tx.SetBalance(ctx, key, dec("-1"))
	})
	require.ErrorIs(t, err, errNegativeBalance)
}

func TestInMemoryStore_ConcurrentUnitsOnOneWallet(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	key := WalletKey{UserID: "u1", Currency: "USD"}

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, credit(ctx, s, key, dec("0.00000001")))
		}()
	}
	wg.Wait()

	w, err := s.GetOrCreateWallet(ctx, key)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec("0.0000005")), "got %s", w.Balance)

	history, err := s.Transactions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, history, workers)
}

func TestInMemoryStore_DisjointWalletsDoNotBlock(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := WalletKey{UserID: "a", Currency: "USD"}
	b := WalletKey{UserID: "b", Currency: "USD"}

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.InTx(ctx, []WalletKey{a}, func(tx Tx) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	// b must not wait for the unit holding a.
	require.NoError(t, credit(ctx, s, b, dec("1")))
	close(release)
	require.NoError(t, <-done)
}

func TestInMemoryStore_TransactionsLimit(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	key := WalletKey{UserID: "u1", Currency: "USD"}
	for i := 1; i <= 5; i++ {
		require.NoError(t, credit(ctx, s, key, dec(fmt.Sprintf("%d", i))))
	}

	history, err := s.Transactions(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Amount.Equal(dec("5")))
	assert.True(t, history[1].Amount.Equal(dec("4")))
}

func TestInMemoryStore_RatesAreDirectional(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	inserted, err := s.InsertRateIfAbsent(ctx, "USD", "MXN", dec("18.70"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertRateIfAbsent(ctx, "USD", "MXN", dec("1"))
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = s.Rate(ctx, "MXN", "USD")
	require.ErrorIs(t, err, ErrRateNotFound)

	_, err = s.UpsertRate(ctx, "USD", "MXN", dec("19"))
	require.NoError(t, err)
	r, err := s.Rate(ctx, "USD", "MXN")
	require.NoError(t, err)
	assert.True(t, r.Rate.Equal(dec("19")))

	rates, err := s.Rates(ctx)
	require.NoError(t, err)
	assert.Len(t, rates, 1)
}

func TestInMemoryStore_SeedBalanceSkipsHistory(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	key := WalletKey{UserID: "u1", Currency: "USD"}

	SeedBalance(s, key, dec("42"))

	snap, err := s.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, snap.Wallets, 1)
	assert.True(t, snap.Wallets[0].Balance.Equal(dec("42")))
	assert.Empty(t, snap.Transactions)

	users, err := s.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)
}

func TestKindRoundTripsWireNames(t *testing.T) {
	for _, k := range []Kind{KindFund, KindWithdraw, KindConvertIn, KindConvertOut} {
		text, err := k.MarshalText()
		require.NoError(t, err)
		var back Kind
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, k, back)
	}

	_, err := Kind(99).MarshalText()
	assert.Error(t, err)
	_, err = Kind(0).Signed(dec("1"))
	assert.Error(t, err)
}

func TestKindSigned(t *testing.T) {
	one := dec("1")
	for k, want := range map[Kind]string{
		KindFund:       "1",
		KindConvertIn:  "1",
		KindWithdraw:   "-1",
		KindConvertOut: "-1",
	} {
		got, err := k.Signed(one)
		require.NoError(t, err)
		assert.True(t, got.Equal(dec(want)), "kind %s", k)
	}
}

func TestInMemoryStore_UnitReadsRates(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	key := WalletKey{UserID: "u1", Currency: "USD"}

	_, err := s.UpsertRate(ctx, "USD", "MXN", dec("18.70"))
	require.NoError(t, err)

	err = s.InTx(ctx, []WalletKey{key}, func(tx Tx) error {
		r, err := tx.Rate(ctx, "USD", "MXN")
		if err != nil {
			return err
		}
		assert.True(t, r.Rate.Equal(dec("18.70")))
		_, err = tx.Rate(ctx, "MXN", "USD")
		assert.ErrorIs(t, err, ErrRateNotFound)
		return nil
	})
	require.NoError(t, err)
}
