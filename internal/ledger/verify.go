package ledger

import (
	"fmt"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvariantCheck records a single invariant validation.
type InvariantCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ChainReport is the outcome of replaying a wallet's full ledger.
type ChainReport struct {
	WalletID   uuid.UUID        `json:"wallet_id"`
	EntryCount int              `json:"entry_count"`
	Replayed   decimal.Decimal  `json:"replayed_balance"`
	Invariants []InvariantCheck `json:"invariants"`
	AllPassed  bool             `json:"all_passed"`
}

// VerifyChain replays a wallet's complete ledger (oldest first) from a zero
// opening balance and validates four invariants:
//  1. Arithmetic: every entry has balance_after = balance_before + amount
//  2. Continuity: every entry starts where the previous one ended
//  3. Non-negativity: no committed balance is below zero
//  4. Parity: the replayed balance equals the wallet row
func VerifyChain(wallet *domain.WalletAccount, entries []domain.LedgerEntry) ChainReport {
	report := ChainReport{WalletID: wallet.ID, EntryCount: len(entries)}

	arithmetic := InvariantCheck{Name: "arithmetic", Passed: true}
	continuity := InvariantCheck{Name: "continuity", Passed: true}
	nonNegative := InvariantCheck{Name: "non_negative", Passed: true}

	running := decimal.Zero
	for _, e := range entries {
		if arithmetic.Passed && !e.BalanceBefore.Add(e.Amount).Equal(e.BalanceAfter) {
			arithmetic.Passed = false
			arithmetic.Detail = fmt.Sprintf("entry %s: %s + %s != %s", e.ID, e.BalanceBefore, e.Amount, e.BalanceAfter)
		}
		if continuity.Passed && !e.BalanceBefore.Equal(running) {
			continuity.Passed = false
			continuity.Detail = fmt.Sprintf("entry %s starts at %s, expected %s", e.ID, e.BalanceBefore, running)
		}
		if nonNegative.Passed && e.BalanceAfter.IsNegative() {
			nonNegative.Passed = false
			nonNegative.Detail = fmt.Sprintf("entry %s ends at %s", e.ID, e.BalanceAfter)
		}
		running = running.Add(e.Amount)
	}

	parity := InvariantCheck{Name: "parity", Passed: running.Equal(wallet.Balance)}
	if !parity.Passed {
		parity.Detail = fmt.Sprintf("replayed %s, wallet holds %s", running.StringFixed(2), wallet.Balance.StringFixed(2))
	}

	report.Replayed = running
	report.Invariants = []InvariantCheck{arithmetic, continuity, nonNegative, parity}
	report.AllPassed = arithmetic.Passed && continuity.Passed && nonNegative.Passed && parity.Passed
	return report
}
