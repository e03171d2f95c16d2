// internal/protocol/address.go
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Actor kinds; also the leading derivation seed of each address.
const (
	KindCore       = "core"
	KindGroups     = "groups"
	KindBalance    = "balance"
	KindSettlement = "settlement"
)

// GroupsParams identifies one Groups instance.
type GroupsParams struct {
	Core    solana.PublicKey
	GroupID uint64
}

// BalanceParams identifies one Balance instance.
type BalanceParams struct {
	Core    solana.PublicKey
	Groups  solana.PublicKey
	GroupID uint64
	Holder  solana.PublicKey
}

// SettlementParams identifies the Settlement instance of a Core.
type SettlementParams struct {
	Core solana.PublicKey
}

// CoreAddress derives the Core address owned by owner.
func CoreAddress(owner solana.PublicKey) (solana.PublicKey, error) {
	return derive(owner, []byte(KindCore))
}

// GroupsAddress derives the address of market groupID under core.
func GroupsAddress(core solana.PublicKey, groupID uint64) (solana.PublicKey, error) {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], groupID)
	return derive(core, []byte(KindGroups), id[:])
}

// BalanceAddress derives the ledger address for holder in the market at groups.
func BalanceAddress(core, groups, holder solana.PublicKey) (solana.PublicKey, error) {
	return derive(core, []byte(KindBalance), groups.Bytes(), holder.Bytes())
}

// SettlementAddress derives the payout router address of core.
func SettlementAddress(core solana.PublicKey) (solana.PublicKey, error) {
	return derive(core, []byte(KindSettlement))
}

func derive(base solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, base)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive %s address: %w", seeds[0], err)
	}
	return addr, nil
}
