package node

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/friendkeys/internal/protocol"
	"github.com/rovshanmuradov/friendkeys/internal/types"
	"github.com/rovshanmuradov/friendkeys/internal/wallet"
)

// CreateRequest builds a create for creator signed by signer and valid for ttl.
func (n *Node) CreateRequest(signer *wallet.Wallet, creator solana.PublicKey, groupID, power, constant uint64, referrer solana.PublicKey, ttl time.Duration) (protocol.Create, error) {
	validUntil := uint64(n.clock().Add(ttl).Unix())
	sig, err := signer.AuthorizeCreate(creator, groupID, validUntil)
	if err != nil {
		return protocol.Create{}, err
	}
	return protocol.Create{
		GroupID:    groupID,
		Power:      power,
		Constant:   constant,
		Referrer:   referrer,
		Signature:  sig,
		ValidUntil: validUntil,
	}, nil
}

// BuyRequest builds a buy of keys at the current quote, declaring the
// configured minimum gas allowances, and returns the value it must carry.
func (n *Node) BuyRequest(groupID, keys uint64, refBalance solana.PublicKey) (protocol.BuyCore, uint64, error) {
	q, err := n.core.BuyQuote(groupID, keys)
	if err != nil {
		return protocol.BuyCore{}, 0, err
	}
	cfg := n.core.Config()
	msg := protocol.BuyCore{
		KeysAmount: keys,
		GroupID:    groupID,
		RefBalance: refBalance,
		LogicGas:   cfg.LogicGasConsumption,
		RefGas:     cfg.RefGasConsumption,
		KeysValue:  q.KeysValue,
	}
	value, ok := types.Sum(msg.LogicGas, msg.RefGas, msg.KeysValue)
	if !ok {
		return protocol.BuyCore{}, 0, protocol.ErrPriceOverflow
	}
	return msg, value, nil
}

// SellRequest builds a sell of keys and returns the gas value it must carry.
func (n *Node) SellRequest(groupID, keys uint64, refBalance solana.PublicKey) (protocol.SellCore, uint64) {
	cfg := n.core.Config()
	msg := protocol.SellCore{
		KeysAmount: keys,
		GroupID:    groupID,
		RefBalance: refBalance,
		LogicGas:   cfg.LogicGasConsumption,
		RefGas:     cfg.RefGasConsumption,
	}
	return msg, msg.LogicGas + msg.RefGas
}
