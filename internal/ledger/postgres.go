package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists wallets, transactions and rates in PostgreSQL.
// Balances are NUMERIC(20,8) and travel as text so no float ever touches
// them.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	ensureWalletSQL = `INSERT INTO wallets (user_id, currency, balance) VALUES ($1, $2, 0) ON CONFLICT (user_id, currency) DO NOTHING`
	walletColumns   = `user_id, currency, balance::text, created_at, updated_at`
	txColumns       = `id, user_id, kind, currency, amount::text, from_currency, to_currency, fx_rate::text, created_at`
	rateColumns     = `from_currency, to_currency, rate::text, updated_at`
)

// GetOrCreateWallet returns the wallet, inserting a zero balance row first
// when needed. The unique (user_id, currency) constraint settles races.
func (s *PostgresStore) GetOrCreateWallet(ctx context.Context, key WalletKey) (Wallet, error) {
	if _, err := s.db.Exec(ctx, ensureWalletSQL, key.UserID, key.Currency); err != nil {
		return Wallet{}, fmt.Errorf("ensure wallet %s: %w", key, err)
	}
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 AND currency = $2`, key.UserID, key.Currency)
	return scanWallet(row)
}

// InTx opens one database transaction, locks the named wallets in canonical
// order and commits fn's writes together.
func (s *PostgresStore) InTx(ctx context.Context, keys []WalletKey, fn func(tx Tx) error) error {
	keys = canonicalKeys(keys)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	unit := &pgTx{tx: tx, views: make(map[WalletKey]Wallet, len(keys))}
	for _, key := range keys {
		if _, err := tx.Exec(ctx, ensureWalletSQL, key.UserID, key.Currency); err != nil {
			return fmt.Errorf("ensure wallet %s: %w", key, err)
		}
		row := tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets
            WHERE user_id = $1 AND currency = $2 FOR UPDATE`, key.UserID, key.Currency)
		w, err := scanWallet(row)
		if err != nil {
			return fmt.Errorf("lock wallet %s: %w", key, err)
		}
		unit.views[key] = w
	}

	if err := fn(unit); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Wallets lists every wallet of a user ordered by currency.
func (s *PostgresStore) Wallets(ctx context.Context, userID string) ([]Wallet, error) {
	rows, err := s.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 ORDER BY currency`, userID)
	if err != nil {
		return nil, err
	}
	return collectWallets(rows)
}

// Transactions lists a user's history newest first.
func (s *PostgresStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// Snapshot reads wallets and history inside one repeatable-read transaction
// so a concurrent conversion is seen either whole or not at all.
func (s *PostgresStore) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	walletRows, err := tx.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 ORDER BY currency`, userID)
	if err != nil {
		return Snapshot{}, err
	}
	wallets, err := collectWallets(walletRows)
	if err != nil {
		return Snapshot{}, err
	}

	txRows, err := tx.Query(ctx, `SELECT `+txColumns+` FROM transactions WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return Snapshot{}, err
	}
	txns, err := collectTransactions(txRows)
	if err != nil {
		return Snapshot{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Wallets: wallets, Transactions: txns}, nil
}

// Users lists every user owning at least one wallet.
func (s *PostgresStore) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT user_id FROM wallets ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Rate fetches the rate for the exact ordered pair.
func (s *PostgresStore) Rate(ctx context.Context, from, to string) (FxRate, error) {
	return queryRate(ctx, s.db, from, to)
}

// rowQuerier is satisfied by both the pool and an open pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryRate(ctx context.Context, q rowQuerier, from, to string) (FxRate, error) {
	row := q.QueryRow(ctx, `SELECT `+rateColumns+` FROM fx_rates WHERE from_currency = $1 AND to_currency = $2`, from, to)
	r, err := scanRate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FxRate{}, fmt.Errorf("%w for %s to %s", ErrRateNotFound, from, to)
		}
		return FxRate{}, err
	}
	return r, nil
}

// UpsertRate replaces the ordered pair's rate or inserts it.
func (s *PostgresStore) UpsertRate(ctx context.Context, from, to string, rate decimal.Decimal) (FxRate, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO fx_rates (from_currency, to_currency, rate) VALUES ($1, $2, $3::numeric)
        ON CONFLICT (from_currency, to_currency) DO UPDATE SET rate = EXCLUDED.rate, updated_at = now()
        RETURNING `+rateColumns, from, to, rate.String())
	return scanRate(row)
}

// InsertRateIfAbsent never overwrites an existing row.
func (s *PostgresStore) InsertRateIfAbsent(ctx context.Context, from, to string, rate decimal.Decimal) (bool, error) {
	cmd, err := s.db.Exec(ctx, `INSERT INTO fx_rates (from_currency, to_currency, rate) VALUES ($1, $2, $3::numeric)
        ON CONFLICT (from_currency, to_currency) DO NOTHING`, from, to, rate.String())
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// Rates lists every stored pair.
func (s *PostgresStore) Rates(ctx context.Context) ([]FxRate, error) {
	rows, err := s.db.Query(ctx, `SELECT `+rateColumns+` FROM fx_rates ORDER BY from_currency, to_currency`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FxRate
	for rows.Next() {
		r, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx    pgx.Tx
	views map[WalletKey]Wallet
}

func (t *pgTx) Wallet(_ context.Context, key WalletKey) (Wallet, error) {
	w, ok := t.views[key]
	if !ok {
		return Wallet{}, fmt.Errorf("%w: %s", errUndeclaredWallet, key)
	}
	return w, nil
}

// Rate reads on the unit's connection; a second pool checkout while the
// wallet rows are locked could wait forever on a small pool.
func (t *pgTx) Rate(ctx context.Context, from, to string) (FxRate, error) {
	return queryRate(ctx, t.tx, from, to)
}

func (t *pgTx) SetBalance(ctx context.Context, key WalletKey, balance decimal.Decimal) error {
	if balance.Sign() < 0 {
		return fmt.Errorf("%w: %s", errNegativeBalance, key)
	}
	w, ok := t.views[key]
	if !ok {
		return fmt.Errorf("%w: %s", errUndeclaredWallet, key)
	}
	if _, err := t.tx.Exec(ctx, `UPDATE wallets SET balance = $1::numeric, updated_at = now()
        WHERE user_id = $2 AND currency = $3`, balance.String(), key.UserID, key.Currency); err != nil {
		return fmt.Errorf("update wallet %s: %w", key, err)
	}
	w.Balance = balance
	t.views[key] = w
	return nil
}

func (t *pgTx) Append(ctx context.Context, txn Transaction) error {
	key := WalletKey{UserID: txn.UserID, Currency: txn.Currency}
	if _, ok := t.views[key]; !ok {
		return fmt.Errorf("%w: %s", errUndeclaredWallet, key)
	}
	kind, err := txn.Kind.MarshalText()
	if err != nil {
		return err
	}
	var rate *string
	if txn.FxRate != nil {
		s := txn.FxRate.String()
		rate = &s
	}
	if _, err := t.tx.Exec(ctx, `INSERT INTO transactions
        (user_id, kind, currency, amount, from_currency, to_currency, fx_rate)
        VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::numeric)`,
		txn.UserID, string(kind), txn.Currency, txn.Amount.String(),
		nullable(txn.FromCurrency), nullable(txn.ToCurrency), rate); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w       Wallet
		balance string
	)
	if err := row.Scan(&w.UserID, &w.Currency, &balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse balance: %w", err)
	}
	w.Balance = b
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func collectWallets(rows pgx.Rows) ([]Wallet, error) {
	defer rows.Close()
	out := make([]Wallet, 0)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	out := make([]Transaction, 0)
	for rows.Next() {
		var (
			t              Transaction
			kind, amount   string
			fromCur, toCur *string
			rate           *string
			createdAt      time.Time
		)
		if err := rows.Scan(&t.ID, &t.UserID, &kind, &t.Currency, &amount, &fromCur, &toCur, &rate, &createdAt); err != nil {
			return nil, err
		}
		if err := t.Kind.UnmarshalText([]byte(kind)); err != nil {
			return nil, err
		}
		a, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		t.Amount = a
		if fromCur != nil {
			t.FromCurrency = *fromCur
		}
		if toCur != nil {
			t.ToCurrency = *toCur
		}
		if rate != nil {
			r, err := decimal.NewFromString(*rate)
			if err != nil {
				return nil, fmt.Errorf("parse fx rate: %w", err)
			}
			t.FxRate = &r
		}
		t.CreatedAt = createdAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanRate(row pgx.Row) (FxRate, error) {
	var (
		r    FxRate
		rate string
	)
	if err := row.Scan(&r.From, &r.To, &rate, &r.UpdatedAt); err != nil {
		return FxRate{}, err
	}
	parsed, err := decimal.NewFromString(rate)
	if err != nil {
		return FxRate{}, fmt.Errorf("parse rate: %w", err)
	}
	r.Rate = parsed
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}
