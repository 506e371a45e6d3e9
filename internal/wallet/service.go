package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/money"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// RateSource resolves the directional rate used by Convert. Convert hands it
// the open unit, so the rate is read on the unit's own connection and never
// from a cache.
type RateSource interface {
	LookupIn(ctx context.Context, rr ledger.RateReader, from, to string) (decimal.Decimal, error)
}

// Options tunes history paging.
type Options struct {
	HistoryDefaultLimit int
	HistoryMaxLimit     int
}

// Service owns every balance mutation. Each operation is one atomic unit of
// the store: the balance change and its transaction rows commit together or
// not at all.
type Service struct {
	store  ledger.WalletStore
	rates  RateSource
	logger *slog.Logger

	historyDefault int
	historyMax     int
}

// NewService builds a wallet service instance.
func NewService(store ledger.WalletStore, rates RateSource, logger *slog.Logger, opts Options) *Service {
	s := &Service{
		store:          store,
		rates:          rates,
		logger:         logger,
		historyDefault: opts.HistoryDefaultLimit,
		historyMax:     opts.HistoryMaxLimit,
	}
	if s.historyDefault <= 0 {
		s.historyDefault = defaultHistoryLimit
	}
	if s.historyMax < s.historyDefault {
		s.historyMax = maxHistoryLimit
		if s.historyMax < s.historyDefault {
			s.historyMax = s.historyDefault
		}
	}
	return s
}

// ConvertResult reports the rate applied and the credited amount.
type ConvertResult struct {
	Rate      decimal.Decimal
	Converted decimal.Decimal
}

// GetOrCreate returns the user's wallet in currency, creating an empty one
// on first use.
func (s *Service) GetOrCreate(ctx context.Context, userID, currency string) (ledger.Wallet, error) {
	return s.store.GetOrCreateWallet(ctx, ledger.WalletKey{UserID: userID, Currency: currency})
}

// Fund credits amount and returns the new balance.
func (s *Service) Fund(ctx context.Context, userID, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := checkAmount(amount); err != nil {
		return decimal.Decimal{}, err
	}

	key := ledger.WalletKey{UserID: userID, Currency: currency}
	var balance decimal.Decimal
	err := s.store.InTx(ctx, []ledger.WalletKey{key}, func(tx ledger.Tx) error {
		w, err := tx.Wallet(ctx, key)
		if err != nil {
			return err
		}
		balance = w.Balance.Add(amount)
		if err := tx.SetBalance(ctx, key, balance); err != nil {
			return err
		}
		return tx.Append(ctx, ledger.Transaction{UserID: userID, Kind: ledger.KindFund, Currency: currency, Amount: amount})
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	s.logger.Info("wallet funded",
		slog.String("user_id", userID),
		slog.String("currency", currency),
		slog.String("amount", money.Format(amount)),
	)
	return balance, nil
}

// Withdraw debits amount and returns the new balance.
func (s *Service) Withdraw(ctx context.Context, userID, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := checkAmount(amount); err != nil {
		return decimal.Decimal{}, err
	}

	key := ledger.WalletKey{UserID: userID, Currency: currency}
	var balance decimal.Decimal
	err := s.store.InTx(ctx, []ledger.WalletKey{key}, func(tx ledger.Tx) error {
		w, err := tx.Wallet(ctx, key)
		if err != nil {
			return err
		}
		if w.Balance.LessThan(amount) {
			return insufficient(w.Balance, currency, amount)
		}
		balance = w.Balance.Sub(amount)
		if err := tx.SetBalance(ctx, key, balance); err != nil {
			return err
		}
		return tx.Append(ctx, ledger.Transaction{UserID: userID, Kind: ledger.KindWithdraw, Currency: currency, Amount: amount})
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	s.logger.Info("wallet debited",
		slog.String("user_id", userID),
		slog.String("currency", currency),
		slog.String("amount", money.Format(amount)),
	)
	return balance, nil
}

// Convert moves amount out of the from wallet and credits the truncated
// product with the from->to rate to the to wallet.
func (s *Service) Convert(ctx context.Context, userID, from, to string, amount decimal.Decimal) (ConvertResult, error) {
	if err := checkAmount(amount); err != nil {
		return ConvertResult{}, err
	}
	if from == to {
		return ConvertResult{}, fmt.Errorf("%w: %s", ledger.ErrSameCurrency, from)
	}

	src := ledger.WalletKey{UserID: userID, Currency: from}
	dst := ledger.WalletKey{UserID: userID, Currency: to}

	var result ConvertResult
	err := s.store.InTx(ctx, []ledger.WalletKey{src, dst}, func(tx ledger.Tx) error {
		sw, err := tx.Wallet(ctx, src)
		if err != nil {
			return err
		}
		if sw.Balance.LessThan(amount) {
			return insufficient(sw.Balance, from, amount)
		}

		rate, err := s.rates.LookupIn(ctx, tx, from, to)
		if err != nil {
			return err
		}
		converted := money.Convert(amount, rate)
		if !money.Positive(converted) {
			return fmt.Errorf("%w: %s %s converts to zero %s", ledger.ErrInvalidAmount, money.Format(amount), from, to)
		}

		dw, err := tx.Wallet(ctx, dst)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, src, sw.Balance.Sub(amount)); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, dst, dw.Balance.Add(converted)); err != nil {
			return err
		}

		applied := rate
		out := ledger.Transaction{
			UserID: userID, Kind: ledger.KindConvertOut, Currency: from, Amount: amount,
			FromCurrency: from, ToCurrency: to, FxRate: &applied,
		}
		in := ledger.Transaction{
			UserID: userID, Kind: ledger.KindConvertIn, Currency: to, Amount: converted,
			FromCurrency: from, ToCurrency: to, FxRate: &applied,
		}
		if err := tx.Append(ctx, out); err != nil {
			return err
		}
		if err := tx.Append(ctx, in); err != nil {
			return err
		}

		result = ConvertResult{Rate: rate, Converted: converted}
		return nil
	})
	if err != nil {
		return ConvertResult{}, err
	}

	s.logger.Info("currency converted",
		slog.String("user_id", userID),
		slog.String("pair", from+"/"+to),
		slog.String("amount", money.Format(amount)),
		slog.String("converted", money.Format(result.Converted)),
		slog.String("rate", money.Format(result.Rate)),
	)
	return result, nil
}

// Balances returns the user's non-zero balances keyed by currency.
func (s *Service) Balances(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	wallets, err := s.store.Wallets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(wallets))
	for _, w := range wallets {
		if w.Balance.IsZero() {
			continue
		}
		out[w.Currency] = w.Balance
	}
	return out, nil
}

// History returns the newest transactions first. limit <= 0 selects the
// configured default; larger values are capped.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	switch {
	case limit <= 0:
		limit = s.historyDefault
	case limit > s.historyMax:
		limit = s.historyMax
	}
	txns, err := s.store.Transactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

func checkAmount(amount decimal.Decimal) error {
	if !money.Positive(amount) {
		return fmt.Errorf("%w: got %s", ledger.ErrInvalidAmount, amount)
	}
	if !money.FitsScale(amount) {
		return fmt.Errorf("%w: at most %d decimal places", ledger.ErrInvalidAmount, money.Scale)
	}
	return nil
}

func insufficient(balance decimal.Decimal, currency string, amount decimal.Decimal) error {
	return fmt.Errorf("%w: balance %s %s, requested %s",
		ledger.ErrInsufficientFunds, money.Format(balance), currency, money.Format(amount))
}
