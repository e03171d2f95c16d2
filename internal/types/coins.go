// internal/types/coins.go
package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// TON is one coin expressed in nanoTON, the smallest indivisible unit.
const TON uint64 = 1_000_000_000

const nanoDigits = 9

// Sum adds values and reports false if the result does not fit into uint64.
func Sum(values ...uint64) (uint64, bool) {
	total := new(uint256.Int)
	for _, v := range values {
		total.Add(total, uint256.NewInt(v))
	}
	if !total.IsUint64() {
		return 0, false
	}
	return total.Uint64(), true
}

// Percent returns amount*pct/100 truncated toward zero.
// The intermediate product is computed in 256 bits so it never wraps.
func Percent(amount, pct uint64) uint64 {
	z := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(pct))
	z.Div(z, uint256.NewInt(100))
	if !z.IsUint64() {
		// only reachable with pct > 100
		return ^uint64(0)
	}
	return z.Uint64()
}

// FormatTON renders nanoTON as a decimal TON string ("1.5", "0.000021").
func FormatTON(nano uint64) string {
	whole := nano / TON
	frac := nano % TON
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	fs := fmt.Sprintf("%09d", frac)
	return strconv.FormatUint(whole, 10) + "." + strings.TrimRight(fs, "0")
}

// ParseTON parses a decimal TON amount ("0.05", "12") into nanoTON.
func ParseTON(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	wholePart, fracPart, _ := strings.Cut(s, ".")
	if len(fracPart) > nanoDigits {
		return 0, fmt.Errorf("amount %q has more than %d decimals", s, nanoDigits)
	}
	var whole uint64
	if wholePart != "" {
		w, err := strconv.ParseUint(wholePart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		whole = w
	}
	var frac uint64
	if fracPart != "" {
		f, err := strconv.ParseUint(fracPart+strings.Repeat("0", nanoDigits-len(fracPart)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		frac = f
	}
	scaled := new(uint256.Int).Mul(uint256.NewInt(whole), uint256.NewInt(TON))
	scaled.Add(scaled, uint256.NewInt(frac))
	if !scaled.IsUint64() {
		return 0, fmt.Errorf("amount %q overflows", s)
	}
	return scaled.Uint64(), nil
}
