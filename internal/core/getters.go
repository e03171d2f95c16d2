// internal/core/getters.go
package core

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/friendkeys/internal/domain"
	"github.com/rovshanmuradov/friendkeys/internal/groups"
	"github.com/rovshanmuradov/friendkeys/internal/protocol"
	"github.com/rovshanmuradov/friendkeys/internal/types"
)

// Config returns a copy of the configuration aggregate.
func (c *Core) Config() domain.CoreConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Config
}

func (c *Core) Owner() solana.PublicKey             { return c.Config().Owner }
func (c *Core) SettlementAddress() solana.PublicKey { return c.Config().SettlementAddress }
func (c *Core) PlatformAddress() solana.PublicKey   { return c.Config().PlatformAddress }
func (c *Core) AuthorizedKey() solana.PublicKey     { return c.Config().AuthorizedKey }
func (c *Core) PlatformFee() uint64                 { return c.Config().PlatformFee }
func (c *Core) GroupFee() uint64                    { return c.Config().GroupFee }
func (c *Core) ReferralFee() uint64                 { return c.Config().ReferralFee }
func (c *Core) GasConsumption() uint64              { return c.Config().GasConsumption }
func (c *Core) RefGasConsumption() uint64           { return c.Config().RefGasConsumption }
func (c *Core) LogicGasConsumption() uint64         { return c.Config().LogicGasConsumption }
func (c *Core) MaxKeys() uint64                     { return c.Config().MaxKeys }
func (c *Core) GlobalPause() bool                   { return c.Config().GlobalPause }

// Market returns Core's view of market groupID.
func (c *Core) Market(groupID uint64) (domain.MarketView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.state.Markets[groupID]
	if !ok {
		return domain.MarketView{}, false
	}
	return *m, true
}

// Markets returns the ids of every registered market.
func (c *Core) Markets() []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]uint64, 0, len(c.state.Markets))
	for id := range c.state.Markets {
		ids = append(ids, id)
	}
	return ids
}

func (c *Core) GroupPaused(groupID uint64) bool {
	m, ok := c.Market(groupID)
	return ok && m.Paused
}

// Unclaimed returns the amount booked for addr after rejected payouts.
func (c *Core) Unclaimed(addr solana.PublicKey) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Unclaimed[addr]
}

// TotalUnclaimed sums the unclaimed ledger.
func (c *Core) TotalUnclaimed() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total uint64
	for _, v := range c.state.Unclaimed {
		total += v
	}
	return total
}

// GasPool returns the consumed gas and retained value Core holds.
func (c *Core) GasPool() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.GasPool
}

// PendingTrades returns the number of trades waiting for Groups or Balance.
func (c *Core) PendingTrades() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

// State returns a deep copy of everything Core persists.
func (c *Core) State() domain.CoreState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := domain.CoreState{
		Config:    c.state.Config,
		Markets:   make(map[uint64]*domain.MarketView, len(c.state.Markets)),
		Unclaimed: make(map[solana.PublicKey]uint64, len(c.state.Unclaimed)),
		GasPool:   c.state.GasPool,
	}
	for id, m := range c.state.Markets {
		cp := *m
		out.Markets[id] = &cp
	}
	for k, v := range c.state.Unclaimed {
		out.Unclaimed[k] = v
	}
	return out
}

// Quote is what a client needs to fund a buy or expect from a sell.
type Quote struct {
	Price       uint64
	PlatformFee uint64
	GroupFee    uint64
	// KeysValue is the minimum claim a buy must carry.
	KeysValue uint64
}

// BuyQuote prices amount keys at the current confirmed supply under the current fees.
func (c *Core) BuyQuote(groupID, amount uint64) (Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.state.Markets[groupID]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %d", protocol.ErrUnknownMarket, groupID)
	}
	return c.quote(m, m.Supply, amount)
}

// SellQuote prices the top amount keys of the current confirmed supply.
func (c *Core) SellQuote(groupID, amount uint64) (Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.state.Markets[groupID]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %d", protocol.ErrUnknownMarket, groupID)
	}
	if amount > m.Supply {
		return Quote{}, fmt.Errorf("%w: sell %d of %d", protocol.ErrUnderflow, amount, m.Supply)
	}
	return c.quote(m, m.Supply-amount, amount)
}

func (c *Core) quote(m *domain.MarketView, supply, amount uint64) (Quote, error) {
	price, err := groups.QuotePrice(m.Power, m.Constant, supply, amount)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{
		Price:       price,
		PlatformFee: types.Percent(price, c.state.Config.PlatformFee),
		GroupFee:    types.Percent(price, c.state.Config.GroupFee),
	}
	total, ok := types.Sum(q.Price, q.PlatformFee, q.GroupFee)
	if !ok {
		return Quote{}, fmt.Errorf("%w: fees on %d", protocol.ErrPriceOverflow, price)
	}
	q.KeysValue = total
	return q, nil
}
