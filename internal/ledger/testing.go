package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that overwrites a wallet balance in the
// in-memory store without writing a transaction. It is how tests simulate
// drift between wallets and history.
func SeedBalance(s Store, key WalletKey, amount decimal.Decimal) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		w, exists := mem.wallets[key]
		if !exists {
			now := mem.now()
			w = Wallet{UserID: key.UserID, Currency: key.Currency, CreatedAt: now, UpdatedAt: now}
		}
		w.Balance = amount
		mem.wallets[key] = w
	}
}
