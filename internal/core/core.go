// internal/core/core.go
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/friendkeys/internal/domain"
	"github.com/rovshanmuradov/friendkeys/internal/events"
	"github.com/rovshanmuradov/friendkeys/internal/network"
	"github.com/rovshanmuradov/friendkeys/internal/protocol"
	"github.com/rovshanmuradov/friendkeys/internal/storage"
	"github.com/rovshanmuradov/friendkeys/internal/types"
)

const (
	opBuy  = "buy"
	opSell = "sell"
)

// TradeRecorder receives trade outcome observations.
type TradeRecorder interface {
	RecordTrade(op, outcome string, volume uint64)
	RecordPayoutFailure(role string)
}

// Trade outcomes reported to the TradeRecorder.
const (
	outcomeCompleted = "completed"
	outcomeRefunded  = "refunded"
	outcomeFailed    = "failed"
)

// DefaultConfig returns the genesis configuration for a Core owned by owner.
func DefaultConfig(owner solana.PublicKey) domain.CoreConfig {
	return domain.CoreConfig{
		Owner:               owner,
		PlatformFee:         5,
		GroupFee:            5,
		ReferralFee:         2,
		GasConsumption:      types.TON / 20,
		LogicGasConsumption: types.TON / 10,
		RefGasConsumption:   types.TON / 20,
		MaxKeys:             1000,
		PlatformAddress:     owner,
	}
}

// Core is the entry point of every user action. It owns the configuration
// aggregate, the per-market mirror used to pre-filter trades, the unclaimed
// payout ledger and the table of trades waiting for a downstream answer.
type Core struct {
	logger   *zap.Logger
	store    storage.Store
	events   events.Publisher
	recorder TradeRecorder
	self     solana.PublicKey

	mu      sync.RWMutex
	state   domain.CoreState
	pending map[uuid.UUID]*trade
}

// Option configures a Core.
type Option func(*Core)

func WithStore(s storage.Store) Option {
	return func(c *Core) {
		if s != nil {
			c.store = s
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(c *Core) {
		if p != nil {
			c.events = p
		}
	}
}

func WithTradeRecorder(r TradeRecorder) Option {
	return func(c *Core) {
		if r != nil {
			c.recorder = r
		}
	}
}

// New creates the Core owned by genesis.Owner. Persisted state, when present,
// takes precedence over genesis.
func New(ctx context.Context, logger *zap.Logger, genesis domain.CoreConfig, opts ...Option) (*Core, error) {
	if genesis.Owner.IsZero() {
		return nil, fmt.Errorf("core: owner is required")
	}
	addr, err := protocol.CoreAddress(genesis.Owner)
	if err != nil {
		return nil, err
	}

	c := &Core{
		logger:   logger.Named("core"),
		store:    storage.NewMemoryStore(),
		events:   nopPublisher{},
		recorder: nopRecorder{},
		self:     addr,
		pending:  make(map[uuid.UUID]*trade),
	}
	for _, opt := range opts {
		opt(c)
	}

	st, err := c.store.LoadCoreState(ctx, addr)
	switch {
	case err == nil:
		c.state = *st
		// trades in flight at shutdown are gone
		for _, m := range c.state.Markets {
			m.Reserved = 0
		}
		c.logger.Info("Core state restored",
			zap.Stringer("address", addr),
			zap.Int("markets", len(c.state.Markets)))
	case errors.Is(err, storage.ErrNotFound):
		c.state = domain.CoreState{
			Config:    genesis,
			Markets:   make(map[uint64]*domain.MarketView),
			Unclaimed: make(map[solana.PublicKey]uint64),
		}
		if err := c.store.SaveCoreState(ctx, addr, &c.state); err != nil {
			return nil, fmt.Errorf("save genesis state: %w", err)
		}
	default:
		return nil, fmt.Errorf("load core state: %w", err)
	}
	return c, nil
}

// Address returns Core's derived address.
func (c *Core) Address() solana.PublicKey { return c.self }

// Receive implements network.Actor.
func (c *Core) Receive(ctx *network.Context, msg network.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case protocol.Create:
		return c.create(ctx, m)
	case protocol.BuyCore:
		return c.buy(ctx, m)
	case protocol.SellCore:
		return c.sell(ctx, m)
	case protocol.ClaimUnclaimed:
		return c.claim(ctx, m)
	case protocol.MintConfirmed:
		return c.mintConfirmed(ctx, m)
	case protocol.BurnConfirmed:
		return c.burnConfirmed(ctx, m)
	case protocol.SellAborted:
		return c.sellAborted(ctx, m)
	case protocol.PayoutFailed:
		return c.payoutFailed(ctx, m)
	case protocol.GroupPauseCore:
		return c.groupPause(ctx, m)
	case protocol.Transfer:
		// value handed back by a downstream actor
		c.state.GasPool += ctx.Value()
		c.persist(ctx)
		return nil
	case network.Bounced:
		return c.bounced(ctx, m)
	default:
		return c.configure(ctx, msg)
	}
}

func (c *Core) persist(ctx *network.Context) {
	if err := c.store.SaveCoreState(ctx.Context(), c.self, &c.state); err != nil {
		c.logger.Error("Failed to persist core state", zap.Error(err))
	}
}

func (c *Core) publish(e events.Event) {
	if err := c.events.Publish(e); err != nil {
		c.logger.Debug("Event not published", zap.String("event_type", string(e.Type())), zap.Error(err))
	}
}

func (c *Core) groupsInit(groupID uint64) network.Init {
	return network.Init{
		Kind:   protocol.KindGroups,
		Params: protocol.GroupsParams{Core: c.self, GroupID: groupID},
	}
}

func (c *Core) balanceInit(view *domain.MarketView, holder solana.PublicKey) network.Init {
	return network.Init{
		Kind: protocol.KindBalance,
		Params: protocol.BalanceParams{
			Core:    c.self,
			Groups:  view.Groups,
			GroupID: view.ID,
			Holder:  holder,
		},
	}
}

// isSettlement accepts the registered Settlement and the one derived from Core.
func (c *Core) isSettlement(addr solana.PublicKey) bool {
	if !c.state.Config.SettlementAddress.IsZero() && addr.Equals(c.state.Config.SettlementAddress) {
		return true
	}
	derived, err := protocol.SettlementAddress(c.self)
	return err == nil && addr.Equals(derived)
}

// disburse hands payouts to Settlement. Zero legs are dropped except the
// trader's refund leg, which doubles as the completion notice. Without a
// registered Settlement the amounts are booked as unclaimed.
func (c *Core) disburse(ctx *network.Context, id uuid.UUID, payouts []protocol.Payout) error {
	legs := payouts[:0:0]
	for _, p := range payouts {
		if p.Amount > 0 || p.Role == protocol.RoleRefund {
			legs = append(legs, p)
		}
	}
	msg := protocol.Disburse{TradeID: id, Payouts: legs}
	total, ok := msg.Total()
	if !ok {
		return fmt.Errorf("%w: payout total overflows", protocol.ErrPayoutMismatch)
	}
	if len(legs) == 0 {
		return nil
	}

	settlement := c.state.Config.SettlementAddress
	if settlement.IsZero() {
		for _, p := range legs {
			if p.Amount > 0 {
				c.state.Unclaimed[p.To] += p.Amount
			}
		}
		c.logger.Warn("No settlement registered, payouts booked as unclaimed",
			zap.Stringer("trade_id", id),
			zap.Uint64("total", total))
		return nil
	}
	return ctx.Send(settlement, total, msg)
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) error { return nil }

type nopRecorder struct{}

func (nopRecorder) RecordTrade(string, string, uint64) {}
func (nopRecorder) RecordPayoutFailure(string)         {}
