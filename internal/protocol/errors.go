// internal/protocol/errors.go
package protocol

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrAuth reports an invalid or expired market creation signature.
	ErrAuth = errors.New("protocol: authorization failed")
	// ErrFundingShortfall reports attached value below the declared allowances.
	ErrFundingShortfall = errors.New("protocol: funding shortfall")
	// ErrPaused reports a trade against a paused system or market.
	ErrPaused = errors.New("protocol: trading paused")
	// ErrCapacity reports a buy that would exceed the market supply cap.
	ErrCapacity = errors.New("protocol: market capacity exceeded")
	// ErrInsufficientBalance reports a sell of more keys than the holder owns.
	ErrInsufficientBalance = errors.New("protocol: insufficient key balance")
	// ErrUnderflow reports a burn larger than the market supply.
	ErrUnderflow = errors.New("protocol: supply underflow")

	ErrUnauthorized     = errors.New("protocol: sender not authorized")
	ErrUnknownMarket    = errors.New("protocol: unknown market")
	ErrMarketExists     = errors.New("protocol: market already exists")
	ErrSettlementNotSet = errors.New("protocol: settlement contract not registered")
	ErrInvalidCurve     = errors.New("protocol: invalid curve parameters")
	ErrPriceOverflow    = errors.New("protocol: price overflows value range")
	ErrPayoutMismatch   = errors.New("protocol: payouts do not match attached value")
	ErrInvalidMessage   = errors.New("protocol: invalid message")
	ErrUnknownTrade     = errors.New("protocol: unknown trade")
	ErrNothingToClaim   = errors.New("protocol: nothing to claim")
)

// FundingShortfallError carries the amounts behind a funding shortfall.
type FundingShortfallError struct {
	Reason   string
	Required uint64
	Attached uint64
}

func (e *FundingShortfallError) Error() string {
	return fmt.Sprintf("%v: %s: required %d, attached %d", ErrFundingShortfall, e.Reason, e.Required, e.Attached)
}

func (e *FundingShortfallError) Unwrap() error {
	return ErrFundingShortfall
}

// InsufficientBalanceError carries the requested and held key counts.
type InsufficientBalanceError struct {
	Requested uint64
	Held      uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%v: requested %d, held %d", ErrInsufficientBalance, e.Requested, e.Held)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// TradeError ties a failure to the trade it aborted.
type TradeError struct {
	Op      string
	TradeID uuid.UUID
	Err     error
}

func (e *TradeError) Error() string {
	return fmt.Sprintf("%s trade %s: %v", e.Op, e.TradeID, e.Err)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

var codes = []struct {
	err  error
	code string
}{
	{ErrAuth, "auth"},
	{ErrFundingShortfall, "funding_shortfall"},
	{ErrPaused, "paused"},
	{ErrCapacity, "capacity"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrUnderflow, "underflow"},
	{ErrUnauthorized, "unauthorized"},
	{ErrUnknownMarket, "unknown_market"},
	{ErrMarketExists, "market_exists"},
	{ErrSettlementNotSet, "settlement_not_set"},
	{ErrInvalidCurve, "invalid_curve"},
	{ErrPriceOverflow, "price_overflow"},
	{ErrPayoutMismatch, "payout_mismatch"},
	{ErrInvalidMessage, "invalid_message"},
	{ErrUnknownTrade, "unknown_trade"},
	{ErrNothingToClaim, "nothing_to_claim"},
}

// Code maps an error onto a stable identifier for refunds, events and metrics.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
