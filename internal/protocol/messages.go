// internal/protocol/messages.go
package protocol

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// MaxPower bounds the curve exponent; any larger power overflows at supply 2.
const MaxPower = 64

// Validator is implemented by messages that arrive from outside the protocol.
type Validator interface {
	Validate() error
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
}

// ---- user -> Core ----

// Create registers a new market; authorized by an off-chain signature.
type Create struct {
	GroupID    uint64
	Power      uint64
	Constant   uint64
	Referrer   solana.PublicKey
	Signature  solana.Signature
	ValidUntil uint64
}

func (Create) Kind() string { return "create" }

func (m Create) Validate() error {
	if m.Power < 1 || m.Power > MaxPower {
		return fmt.Errorf("%w: power must be in [1, %d], got %d", ErrInvalidCurve, MaxPower, m.Power)
	}
	if m.Constant < 1 {
		return fmt.Errorf("%w: constant must be positive", ErrInvalidCurve)
	}
	if m.Signature.IsZero() {
		return fmt.Errorf("%w: missing signature", ErrAuth)
	}
	return nil
}

// BuyCore mints KeysAmount keys in GroupID for the sender.
type BuyCore struct {
	KeysAmount uint64
	GroupID    uint64
	RefBalance solana.PublicKey
	LogicGas   uint64
	RefGas     uint64
	// KeysValue is the buyer's claim covering price plus platform and group fees.
	KeysValue uint64
}

func (BuyCore) Kind() string { return "buy_core" }

func (m BuyCore) Validate() error {
	if m.KeysAmount == 0 {
		return invalid("keys_amount must be positive")
	}
	return nil
}

// SellCore burns KeysAmount keys the sender holds in GroupID.
type SellCore struct {
	KeysAmount uint64
	GroupID    uint64
	RefBalance solana.PublicKey
	LogicGas   uint64
	RefGas     uint64
}

func (SellCore) Kind() string { return "sell_core" }

func (m SellCore) Validate() error {
	if m.KeysAmount == 0 {
		return invalid("keys_amount must be positive")
	}
	return nil
}

// ClaimUnclaimed withdraws payouts that previously bounced back to Core.
type ClaimUnclaimed struct {
	Destination solana.PublicKey
}

func (ClaimUnclaimed) Kind() string { return "claim_unclaimed" }

func (m ClaimUnclaimed) Validate() error { return nil }

// ---- administrative setters ----

type SettlementContract struct{ Address solana.PublicKey }

func (SettlementContract) Kind() string    { return "settlement_contract" }
func (SettlementContract) Validate() error { return nil }

type PlatformAddress struct{ Address solana.PublicKey }

func (PlatformAddress) Kind() string    { return "platform_address" }
func (PlatformAddress) Validate() error { return nil }

// PublicKey replaces the key that authorizes market creation.
type PublicKey struct{ Key solana.PublicKey }

func (PublicKey) Kind() string { return "public_key" }

func (m PublicKey) Validate() error {
	if m.Key.IsZero() {
		return invalid("public key is empty")
	}
	return nil
}

type GlobalPause struct{ State bool }

func (GlobalPause) Kind() string    { return "global_pause" }
func (GlobalPause) Validate() error { return nil }

type GroupPauseCore struct {
	GroupID uint64
	State   bool
}

func (GroupPauseCore) Kind() string    { return "group_pause_core" }
func (GroupPauseCore) Validate() error { return nil }

type MaxKeys struct{ Keys uint64 }

func (MaxKeys) Kind() string { return "max_keys" }

func (m MaxKeys) Validate() error {
	if m.Keys == 0 {
		return invalid("max keys must be positive")
	}
	return nil
}

type PlatformFee struct{ Fee uint64 }

func (PlatformFee) Kind() string      { return "platform_fee" }
func (m PlatformFee) Validate() error { return validateFee(m.Fee) }

type GroupFee struct{ Fee uint64 }

func (GroupFee) Kind() string      { return "group_fee" }
func (m GroupFee) Validate() error { return validateFee(m.Fee) }

type ReferralFee struct{ Fee uint64 }

func (ReferralFee) Kind() string      { return "referral_fee" }
func (m ReferralFee) Validate() error { return validateFee(m.Fee) }

type GasConsumption struct{ Gas uint64 }

func (GasConsumption) Kind() string    { return "gas_consumption" }
func (GasConsumption) Validate() error { return nil }

type RefGasConsumption struct{ Gas uint64 }

func (RefGasConsumption) Kind() string    { return "ref_gas_consumption" }
func (RefGasConsumption) Validate() error { return nil }

type LogicGasConsumption struct{ Gas uint64 }

func (LogicGasConsumption) Kind() string    { return "logic_gas_consumption" }
func (LogicGasConsumption) Validate() error { return nil }

func validateFee(fee uint64) error {
	if fee > 100 {
		return invalid("fee must be at most 100 percent, got %d", fee)
	}
	return nil
}

// ---- Core -> Groups ----

// InitMarket sets the curve of a freshly addressed Groups instance.
type InitMarket struct {
	Power    uint64
	Constant uint64
	Creator  solana.PublicKey
}

func (InitMarket) Kind() string { return "init_market" }

// GroupPause relays a per-market pause switch.
type GroupPause struct{ State bool }

func (GroupPause) Kind() string { return "group_pause" }

// Mint asks Groups to price Amount keys and grow supply if Claim covers it.
type Mint struct {
	TradeID     uuid.UUID
	Amount      uint64
	Claim       uint64
	PlatformFee uint64
	GroupFee    uint64
	MaxKeys     uint64
}

func (Mint) Kind() string { return "mint" }

// ---- Groups -> Core ----

type MintConfirmed struct {
	TradeID uuid.UUID
	Price   uint64
	Supply  uint64
}

func (MintConfirmed) Kind() string { return "mint_confirmed" }

type BurnConfirmed struct {
	TradeID uuid.UUID
	Price   uint64
	Supply  uint64
}

func (BurnConfirmed) Kind() string { return "burn_confirmed" }

// ---- Core -> Balance ----

type Credit struct {
	TradeID uuid.UUID
	Amount  uint64
}

func (Credit) Kind() string { return "credit" }

type Debit struct {
	TradeID uuid.UUID
	Amount  uint64
}

func (Debit) Kind() string { return "debit" }

// ---- Balance -> Groups / Core ----

type Burn struct {
	TradeID uuid.UUID
	Amount  uint64
	Holder  solana.PublicKey
}

func (Burn) Kind() string { return "burn" }

// SellAborted tells Core that a debited sell was rolled back.
type SellAborted struct {
	TradeID uuid.UUID
	Amount  uint64
	Reason  error
}

func (SellAborted) Kind() string { return "sell_aborted" }

// ---- Core -> Settlement ----

// PayoutRole labels one leg of a disbursement.
type PayoutRole string

const (
	RoleSeller   PayoutRole = "seller"
	RolePlatform PayoutRole = "platform"
	RoleCreator  PayoutRole = "creator"
	RoleReferral PayoutRole = "referral"
	RoleRefund   PayoutRole = "refund"
	RoleClaim    PayoutRole = "claim"
)

// Payout is one leg of a disbursement.
type Payout struct {
	To     solana.PublicKey
	Amount uint64
	Role   PayoutRole
}

// Disburse fans out the attached value to the listed payouts.
type Disburse struct {
	TradeID uuid.UUID
	Payouts []Payout
}

func (Disburse) Kind() string { return "disburse" }

// Total sums the payout amounts.
func (m Disburse) Total() (uint64, bool) {
	var total uint64
	for _, p := range m.Payouts {
		next := total + p.Amount
		if next < total {
			return 0, false
		}
		total = next
	}
	return total, true
}

// ---- Settlement -> recipients / Core ----

// Transfer is the body of each value transfer Settlement emits.
type Transfer struct {
	TradeID uuid.UUID
	Role    PayoutRole
}

func (Transfer) Kind() string { return "transfer" }

// PayoutFailed returns a rejected payout to Core.
type PayoutFailed struct {
	TradeID   uuid.UUID
	Recipient solana.PublicKey
	Role      PayoutRole
	Amount    uint64
}

func (PayoutFailed) Kind() string { return "payout_failed" }

// ---- Core -> user ----

// Refund returns the full attached value of a rejected trade.
type Refund struct {
	TradeID uuid.UUID
	Code    string
	Reason  string
}

func (Refund) Kind() string { return "refund" }

// Ack acknowledges an administrative or create message and returns excess value.
type Ack struct {
	Op string
}

func (Ack) Kind() string { return "ack" }
