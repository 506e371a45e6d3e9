package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type ratePair struct {
	from string
	to   string
}

type inMemoryStore struct {
	// mu guards the committed state below. Writers hold it only while
	// publishing a finished unit, so readers never see a partial one.
	mu           sync.RWMutex
	wallets      map[WalletKey]Wallet
	transactions map[string][]Transaction
	rates        map[ratePair]FxRate
	nextID       int64

	locks keyLocks
	now   func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit
// tests and local development.
func NewInMemory() Store {
	return &inMemoryStore{
		wallets:      make(map[WalletKey]Wallet),
		transactions: make(map[string][]Transaction),
		rates:        make(map[ratePair]FxRate),
		locks:        keyLocks{held: make(map[WalletKey]*sync.Mutex)},
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// keyLocks serialises units per wallet; disjoint wallets never contend.
type keyLocks struct {
	mu   sync.Mutex
	held map[WalletKey]*sync.Mutex
}

func (l *keyLocks) acquire(keys []WalletKey) func() {
	mutexes := make([]*sync.Mutex, 0, len(keys))
	l.mu.Lock()
	for _, k := range keys {
		m, ok := l.held[k]
		if !ok {
			m = &sync.Mutex{}
			l.held[k] = m
		}
		mutexes = append(mutexes, m)
	}
	l.mu.Unlock()

	for _, m := range mutexes {
		m.Lock()
	}
	return func() {
		for i := len(mutexes) - 1; i >= 0; i-- {
			mutexes[i].Unlock()
		}
	}
}

func (s *inMemoryStore) GetOrCreateWallet(_ context.Context, key WalletKey) (Wallet, error) {
	unlock := s.locks.acquire([]WalletKey{key})
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, exists := s.wallets[key]; exists {
		return w, nil
	}
	now := s.now()
	w := Wallet{UserID: key.UserID, Currency: key.Currency, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	s.wallets[key] = w
	return w, nil
}

func (s *inMemoryStore) InTx(ctx context.Context, keys []WalletKey, fn func(tx Tx) error) error {
	keys = canonicalKeys(keys)
	unlock := s.locks.acquire(keys)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		store:    s,
		declared: make(map[WalletKey]struct{}, len(keys)),
		views:    make(map[WalletKey]Wallet, len(keys)),
		dirty:    make(map[WalletKey]struct{}, len(keys)),
	}
	for _, k := range keys {
		tx.declared[k] = struct{}{}
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.commit(tx)
	return nil
}

func (s *inMemoryStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k := range tx.dirty {
		w := tx.views[k]
		if w.CreatedAt.IsZero() {
			w.CreatedAt = now
		}
		w.UpdatedAt = now
		s.wallets[k] = w
	}
	for _, txn := range tx.pending {
		s.nextID++
		txn.ID = s.nextID
		txn.CreatedAt = now
		s.transactions[txn.UserID] = append(s.transactions[txn.UserID], txn)
	}
}

func (s *inMemoryStore) Wallets(_ context.Context, userID string) ([]Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.walletsLocked(userID), nil
}

func (s *inMemoryStore) walletsLocked(userID string) []Wallet {
	out := make([]Wallet, 0)
	for k, w := range s.wallets {
		if k.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

func (s *inMemoryStore) Transactions(_ context.Context, userID string, limit int) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.transactions[userID]
	n := len(history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Transaction, 0, n)
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

func (s *inMemoryStore) Snapshot(_ context.Context, userID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.transactions[userID]
	txns := make([]Transaction, len(history))
	copy(txns, history)
	return Snapshot{Wallets: s.walletsLocked(userID), Transactions: txns}, nil
}

func (s *inMemoryStore) Users(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for k := range s.wallets {
		seen[k.UserID] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

func (s *inMemoryStore) Rate(_ context.Context, from, to string) (FxRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rates[ratePair{from: from, to: to}]
	if !ok {
		return FxRate{}, fmt.Errorf("%w for %s to %s", ErrRateNotFound, from, to)
	}
	return r, nil
}

func (s *inMemoryStore) UpsertRate(_ context.Context, from, to string, rate decimal.Decimal) (FxRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := FxRate{From: from, To: to, Rate: rate, UpdatedAt: s.now()}
	s.rates[ratePair{from: from, to: to}] = r
	return r, nil
}

func (s *inMemoryStore) InsertRateIfAbsent(_ context.Context, from, to string, rate decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ratePair{from: from, to: to}
	if _, exists := s.rates[key]; exists {
		return false, nil
	}
	s.rates[key] = FxRate{From: from, To: to, Rate: rate, UpdatedAt: s.now()}
	return true, nil
}

func (s *inMemoryStore) Rates(_ context.Context) ([]FxRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FxRate, 0, len(s.rates))
	for _, r := range s.rates {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair() < out[j].Pair() })
	return out, nil
}

// memTx stages writes until the unit finishes; the committed maps are not
// touched before commit.
type memTx struct {
	store    *inMemoryStore
	declared map[WalletKey]struct{}
	views    map[WalletKey]Wallet
	dirty    map[WalletKey]struct{}
	pending  []Transaction
}

func (t *memTx) Wallet(_ context.Context, key WalletKey) (Wallet, error) {
	if _, ok := t.declared[key]; !ok {
		return Wallet{}, fmt.Errorf("%w: %s", errUndeclaredWallet, key)
	}
	if w, ok := t.views[key]; ok {
		return w, nil
	}

	t.store.mu.RLock()
	w, exists := t.store.wallets[key]
	t.store.mu.RUnlock()
	if !exists {
		w = Wallet{UserID: key.UserID, Currency: key.Currency, Balance: decimal.Zero}
	}
	t.views[key] = w
	return w, nil
}

func (t *memTx) Rate(ctx context.Context, from, to string) (FxRate, error) {
	return t.store.Rate(ctx, from, to)
}

func (t *memTx) SetBalance(ctx context.Context, key WalletKey, balance decimal.Decimal) error {
	if balance.Sign() < 0 {
		return fmt.Errorf("%w: %s", errNegativeBalance, key)
	}
	w, err := t.Wallet(ctx, key)
	if err != nil {
		return err
	}
	w.Balance = balance
	t.views[key] = w
	t.dirty[key] = struct{}{}
	return nil
}

func (t *memTx) Append(_ context.Context, txn Transaction) error {
	key := WalletKey{UserID: txn.UserID, Currency: txn.Currency}
	if _, ok := t.declared[key]; !ok {
		return fmt.Errorf("%w: %s", errUndeclaredWallet, key)
	}
	if _, err := txn.Kind.Signed(txn.Amount); err != nil {
		return err
	}
	t.pending = append(t.pending, txn)
	return nil
}
