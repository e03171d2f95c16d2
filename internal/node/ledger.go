package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/rovshanmuradov/friendkeys/internal/groups"
)

var ErrLedgerMismatch = errors.New("node: ledger mismatch")

// CheckLedger verifies the accounting identities of an idle node:
//   - value is neither created nor destroyed: the ledger total equals what was funded;
//   - Core holds exactly its market reserves, gas pool and unclaimed payouts;
//   - each market's reserve equals the curve sum over its supply;
//   - Core's supply mirror equals the supply held by Groups.
func (n *Node) CheckLedger(ctx context.Context) error {
	if p := n.net.Pending(); p > 0 {
		return fmt.Errorf("node: %d messages in flight", p)
	}
	if p := n.core.PendingTrades(); p > 0 {
		return fmt.Errorf("node: %d trades pending", p)
	}

	var errs []error
	if total, minted := n.net.TotalSupply(), n.net.Minted(); total != minted {
		errs = append(errs, fmt.Errorf("%w: ledger holds %d, minted %d", ErrLedgerMismatch, total, minted))
	}

	state := n.core.State()
	expected := state.GasPool
	for _, v := range state.Unclaimed {
		expected += v
	}
	for id, view := range state.Markets {
		expected += view.Reserve

		integral, err := groups.QuotePrice(view.Power, view.Constant, 0, view.Supply)
		if err != nil {
			errs = append(errs, fmt.Errorf("market %d: %w", id, err))
		} else if integral != view.Reserve {
			errs = append(errs, fmt.Errorf("%w: market %d reserve %d, curve sum %d", ErrLedgerMismatch, id, view.Reserve, integral))
		}

		m, err := n.Market(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if m.Supply != view.Supply {
			errs = append(errs, fmt.Errorf("%w: market %d supply %d, core mirror %d", ErrLedgerMismatch, id, m.Supply, view.Supply))
		}
	}
	if held := n.net.BalanceOf(n.core.Address()); held != expected {
		errs = append(errs, fmt.Errorf("%w: core holds %d, owes %d", ErrLedgerMismatch, held, expected))
	}
	return errors.Join(errs...)
}
