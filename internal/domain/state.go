// internal/domain/state.go
package domain

import (
	"github.com/gagliardetto/solana-go"
)

// Market is the state owned by one Groups actor.
type Market struct {
	Core     solana.PublicKey
	ID       uint64
	Power    uint64
	Constant uint64
	Supply   uint64
	Paused   bool
	Creator  solana.PublicKey
	// Initialized is false for an instance addressed before its InitMarket arrived.
	Initialized bool
}

// HolderBalance is the state owned by one Balance actor.
type HolderBalance struct {
	Core    solana.PublicKey
	Groups  solana.PublicKey
	GroupID uint64
	Holder  solana.PublicKey
	Keys    uint64
}

// CoreConfig is the administrative configuration aggregate owned by Core.
type CoreConfig struct {
	Owner               solana.PublicKey
	PlatformFee         uint64
	GroupFee            uint64
	ReferralFee         uint64
	GasConsumption      uint64
	LogicGasConsumption uint64
	RefGasConsumption   uint64
	MaxKeys             uint64
	GlobalPause         bool
	SettlementAddress   solana.PublicKey
	PlatformAddress     solana.PublicKey
	AuthorizedKey       solana.PublicKey
}

// MarketView is Core's mirror of a market: what it needs to pre-filter trades
// without asking Groups.
type MarketView struct {
	ID       uint64
	Groups   solana.PublicKey
	Creator  solana.PublicKey
	Referrer solana.PublicKey
	Power    uint64
	Constant uint64
	Paused   bool
	// Supply counts confirmed mints minus confirmed burns.
	Supply uint64
	// Reserved counts keys of buys that are in flight.
	Reserved uint64
	// Reserve is the value held for this market; equals the curve integral at Supply.
	Reserve uint64
}

// CoreState is everything Core persists between restarts.
type CoreState struct {
	Config    CoreConfig
	Markets   map[uint64]*MarketView
	Unclaimed map[solana.PublicKey]uint64
	GasPool   uint64
}

// Account is one ledger entry of the value ledger.
type Account struct {
	Address solana.PublicKey
	Balance uint64
}
