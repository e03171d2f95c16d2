// internal/groups/curve.go
package groups

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/friendkeys/internal/protocol"
)

// MaxQuoteAmount bounds the number of curve terms evaluated for one quote.
const MaxQuoteAmount = 1 << 20

// QuotePrice returns the price of minting amount keys starting at supply:
// the sum over i in [supply, supply+amount) of constant + i^power.
// Any intermediate value above the uint64 range yields ErrPriceOverflow.
func QuotePrice(power, constant, supply, amount uint64) (uint64, error) {
	if power < 1 || power > protocol.MaxPower {
		return 0, fmt.Errorf("%w: power %d", protocol.ErrInvalidCurve, power)
	}
	if amount > MaxQuoteAmount {
		return 0, fmt.Errorf("%w: amount %d exceeds %d", protocol.ErrInvalidMessage, amount, MaxQuoteAmount)
	}
	if supply+amount < supply {
		return 0, fmt.Errorf("%w: supply %d + amount %d", protocol.ErrPriceOverflow, supply, amount)
	}

	total := new(uint256.Int)
	c := uint256.NewInt(constant)
	term := new(uint256.Int)
	for i := supply; i < supply+amount; i++ {
		if err := pow(term, i, power); err != nil {
			return 0, err
		}
		term.Add(term, c)
		total.Add(total, term)
		if !total.IsUint64() {
			return 0, fmt.Errorf("%w: at supply %d", protocol.ErrPriceOverflow, i)
		}
	}
	return total.Uint64(), nil
}

// pow sets z to base^exp and fails once the result leaves the uint64 range.
func pow(z *uint256.Int, base, exp uint64) error {
	if base < 2 {
		z.SetUint64(base)
		return nil
	}
	b := uint256.NewInt(base)
	z.SetOne()
	for e := uint64(0); e < exp; e++ {
		z.Mul(z, b)
		if !z.IsUint64() {
			return fmt.Errorf("%w: %d^%d", protocol.ErrPriceOverflow, base, exp)
		}
	}
	return nil
}
