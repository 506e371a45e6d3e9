package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the balance effect recorded by a transaction.
type Kind uint8

const (
	KindFund Kind = iota + 1
	KindWithdraw
	KindConvertIn
	KindConvertOut
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFund:
		return "fund"
	case KindWithdraw:
		return "withdraw"
	case KindConvertIn:
		return "convert_in"
	case KindConvertOut:
		return "convert_out"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind maps a wire name back to its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "fund":
		return KindFund, nil
	case "withdraw":
		return KindWithdraw, nil
	case "convert_in":
		return KindConvertIn, nil
	case "convert_out":
		return KindConvertOut, nil
	default:
		return 0, fmt.Errorf("unknown transaction kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, err := ParseKind(k.String()); err != nil {
		return nil, err
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Signed returns amount with the sign the kind applies to a wallet balance:
// credits (fund, convert_in) are positive, debits (withdraw, convert_out)
// negative.
func (k Kind) Signed(amount decimal.Decimal) (decimal.Decimal, error) {
	switch k {
	case KindFund, KindConvertIn:
		return amount, nil
	case KindWithdraw, KindConvertOut:
		return amount.Neg(), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown transaction kind %d", uint8(k))
	}
}

// WalletKey addresses exactly one wallet.
type WalletKey struct {
	UserID   string
	Currency string
}

func (k WalletKey) String() string {
	return k.UserID + ":" + k.Currency
}

// Wallet is the stored balance of one user in one currency.
type Wallet struct {
	UserID    string
	Currency  string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the identity of the wallet.
func (w Wallet) Key() WalletKey {
	return WalletKey{UserID: w.UserID, Currency: w.Currency}
}

// Transaction is an immutable ledger entry. FromCurrency, ToCurrency and
// FxRate are only set for conversion legs.
type Transaction struct {
	ID           int64
	UserID       string
	Kind         Kind
	Currency     string
	Amount       decimal.Decimal
	FromCurrency string
	ToCurrency   string
	FxRate       *decimal.Decimal
	CreatedAt    time.Time
}

// FxRate is the multiplier applied when converting From into To.
type FxRate struct {
	From      string
	To        string
	Rate      decimal.Decimal
	UpdatedAt time.Time
}

// Pair renders the ordered pair as "FROM/TO".
func (r FxRate) Pair() string {
	return r.From + "/" + r.To
}

// Snapshot is a consistent view of a single user's wallets and full history.
type Snapshot struct {
	Wallets      []Wallet
	Transactions []Transaction
}

// RateReader reads the stored rate of one ordered pair.
type RateReader interface {
	Rate(ctx context.Context, from, to string) (FxRate, error)
}

// Tx is the view of the store handed to an atomic unit. Only wallets named
// when the unit was opened may be read or written. Rates are read through
// the unit's own connection.
type Tx interface {
	RateReader
	// Wallet returns the locked wallet for key, creating a zero balance
	// wallet inside the unit when none exists yet.
	Wallet(ctx context.Context, key WalletKey) (Wallet, error)
	SetBalance(ctx context.Context, key WalletKey, balance decimal.Decimal) error
	Append(ctx context.Context, txn Transaction) error
}

// WalletStore persists wallets and the transaction log.
type WalletStore interface {
	GetOrCreateWallet(ctx context.Context, key WalletKey) (Wallet, error)
	// InTx runs fn as one atomic unit over the given wallets. Every staged
	// write is committed together when fn returns nil; nothing is kept when
	// fn or the commit fails.
	InTx(ctx context.Context, keys []WalletKey, fn func(tx Tx) error) error
	Wallets(ctx context.Context, userID string) ([]Wallet, error)
	// Transactions lists a user's history newest first. A limit <= 0 returns
	// every entry.
	Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
	Snapshot(ctx context.Context, userID string) (Snapshot, error)
	Users(ctx context.Context) ([]string, error)
}

// RateStore persists directional FX rates.
type RateStore interface {
	RateReader
	UpsertRate(ctx context.Context, from, to string, rate decimal.Decimal) (FxRate, error)
	// InsertRateIfAbsent stores the rate only when the ordered pair has no
	// row yet and reports whether it did.
	InsertRateIfAbsent(ctx context.Context, from, to string, rate decimal.Decimal) (bool, error)
	Rates(ctx context.Context) ([]FxRate, error)
}

// Store is the full ledger persistence contract implemented by backends
// (e.g. Postgres).
type Store interface {
	WalletStore
	RateStore
}

// canonicalKeys de-duplicates keys and orders them so that every unit locks
// wallets in the same sequence.
func canonicalKeys(keys []WalletKey) []WalletKey {
	seen := make(map[WalletKey]struct{}, len(keys))
	out := make([]WalletKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Currency < out[j].Currency
	})
	return out
}
