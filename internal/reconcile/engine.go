package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/money"
	"github.com/congo-pay/fxwallet/internal/notification"
)

// Discrepancy describes one currency whose stored balance disagrees with the
// replayed history. Difference is Actual - Calculated.
type Discrepancy struct {
	Calculated decimal.Decimal
	Actual     decimal.Decimal
	Difference decimal.Decimal
}

// Report is the outcome of reconciling one user.
type Report struct {
	UserID        string
	Reconciled    bool
	Discrepancies map[string]Discrepancy
}

// Engine replays transaction history against stored balances. It only
// reads; repairing drift is left to operators.
type Engine struct {
	store    ledger.WalletStore
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewEngine builds a reconciliation engine. notifier may be nil.
func NewEngine(store ledger.WalletStore, notifier notification.Notifier, logger *slog.Logger) *Engine {
	return &Engine{store: store, notifier: notifier, logger: logger}
}

// Reconcile compares the user's wallets with the signed sum of their
// transactions, per currency, over one consistent snapshot.
func (e *Engine) Reconcile(ctx context.Context, userID string) (Report, error) {
	snap, err := e.store.Snapshot(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("snapshot %s: %w", userID, err)
	}

	calculated := make(map[string]decimal.Decimal)
	for _, txn := range snap.Transactions {
		signed, err := txn.Kind.Signed(txn.Amount)
		if err != nil {
			return Report{}, fmt.Errorf("replay transaction %d: %w", txn.ID, err)
		}
		calculated[txn.Currency] = calculated[txn.Currency].Add(signed)
	}

	actual := make(map[string]decimal.Decimal, len(snap.Wallets))
	for _, w := range snap.Wallets {
		actual[w.Currency] = w.Balance
	}

	discrepancies := make(map[string]Discrepancy)
	for cur := range union(calculated, actual) {
		calc, act := calculated[cur], actual[cur]
		if calc.Equal(act) {
			continue
		}
		discrepancies[cur] = Discrepancy{Calculated: calc, Actual: act, Difference: act.Sub(calc)}
	}

	report := Report{UserID: userID, Reconciled: len(discrepancies) == 0, Discrepancies: discrepancies}
	if !report.Reconciled {
		e.alert(ctx, report)
	}
	return report, nil
}

func (e *Engine) alert(ctx context.Context, report Report) {
	summary := report.Summary()
	e.logger.Warn("balance discrepancy detected",
		slog.String("user_id", report.UserID),
		slog.Int("currencies", len(report.Discrepancies)),
		slog.String("summary", summary),
	)
	if e.notifier == nil {
		return
	}
	err := e.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindReconcileDiscrepancy,
		Destination: report.UserID,
		Body:        summary,
	})
	if err != nil {
		e.logger.Error("discrepancy notification failed", slog.String("user_id", report.UserID), slog.Any("error", err))
	}
}

// Summary renders the discrepancies as "CUR actual=.. calculated=..", one
// currency per clause, sorted by currency.
func (r Report) Summary() string {
	currencies := make([]string, 0, len(r.Discrepancies))
	for cur := range r.Discrepancies {
		currencies = append(currencies, cur)
	}
	sort.Strings(currencies)

	parts := make([]string, 0, len(currencies))
	for _, cur := range currencies {
		d := r.Discrepancies[cur]
		parts = append(parts, fmt.Sprintf("%s actual=%s calculated=%s difference=%s",
			cur, money.Format(d.Actual), money.Format(d.Calculated), money.Format(d.Difference)))
	}
	return strings.Join(parts, "; ")
}

func union(a, b map[string]decimal.Decimal) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}
