package groups

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/friendkeys/internal/protocol"
)

func TestQuotePrice_KnownValues(t *testing.T) {
	tests := []struct {
		name                            string
		power, constant, supply, amount uint64
		want                            uint64
	}{
		{"first key", 3, 21000, 0, 1, 21000},
		{"second key", 3, 21000, 1, 1, 21001},
		{"first two keys", 3, 21000, 0, 2, 42001},
		{"third key", 3, 21000, 2, 1, 21008},
		{"linear range", 1, 10, 5, 3, 10*3 + 5 + 6 + 7},
		{"quadratic", 2, 1, 0, 4, 4 + 0 + 1 + 4 + 9},
		{"zero amount", 3, 21000, 7, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuotePrice(tt.power, tt.constant, tt.supply, tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuotePrice_StrictlyIncreasingInSupply(t *testing.T) {
	for _, power := range []uint64{1, 2, 3, 5} {
		for _, n := range []uint64{1, 2, 7} {
			prev, err := QuotePrice(power, 1, 0, n)
			require.NoError(t, err)
			for s := uint64(1); s < 200; s++ {
				cur, err := QuotePrice(power, 1, s, n)
				require.NoError(t, err)
				require.Greater(t, cur, prev, "power=%d n=%d s=%d", power, n, s)
				prev = cur
			}
		}
	}
}

func TestQuotePrice_StrictlyIncreasingInAmount(t *testing.T) {
	prev, err := QuotePrice(3, 21000, 10, 1)
	require.NoError(t, err)
	for n := uint64(2); n < 100; n++ {
		cur, err := QuotePrice(3, 21000, 10, n)
		require.NoError(t, err)
		require.Greater(t, cur, prev)
		prev = cur
	}
}

func TestQuotePrice_Additive(t *testing.T) {
	for s := uint64(0); s < 50; s += 7 {
		for n1 := uint64(0); n1 < 20; n1 += 3 {
			for n2 := uint64(0); n2 < 20; n2 += 4 {
				whole, err := QuotePrice(3, 21000, s, n1+n2)
				require.NoError(t, err)
				a, err := QuotePrice(3, 21000, s, n1)
				require.NoError(t, err)
				b, err := QuotePrice(3, 21000, s+n1, n2)
				require.NoError(t, err)
				assert.Equal(t, whole, a+b, "s=%d n1=%d n2=%d", s, n1, n2)
			}
		}
	}
}

func TestQuotePrice_Errors(t *testing.T) {
	tests := []struct {
		name                            string
		power, constant, supply, amount uint64
		want                            error
	}{
		{"zero power", 0, 1, 0, 1, protocol.ErrInvalidCurve},
		{"power too large", protocol.MaxPower + 1, 1, 0, 1, protocol.ErrInvalidCurve},
		{"term overflows", 64, 1, 2, 1, protocol.ErrPriceOverflow},
		{"sum overflows", 1, ^uint64(0), 0, 2, protocol.ErrPriceOverflow},
		{"supply wraps", 1, 1, ^uint64(0), 2, protocol.ErrPriceOverflow},
		{"amount too large", 1, 1, 0, MaxQuoteAmount + 1, protocol.ErrInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := QuotePrice(tt.power, tt.constant, tt.supply, tt.amount)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
