// internal/groups/groups.go
package groups

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/friendkeys/internal/domain"
	"github.com/rovshanmuradov/friendkeys/internal/network"
	"github.com/rovshanmuradov/friendkeys/internal/protocol"
	"github.com/rovshanmuradov/friendkeys/internal/storage"
	"github.com/rovshanmuradov/friendkeys/internal/types"
)

// Groups owns the curve and cumulative supply of one market.
type Groups struct {
	logger *zap.Logger
	store  storage.Store
	self   solana.PublicKey

	mu     sync.RWMutex
	market domain.Market
}

// Factory returns the constructor the network uses to instantiate Groups actors.
func Factory(logger *zap.Logger, store storage.Store) network.Factory {
	return func(init network.Init) (solana.PublicKey, network.Actor, error) {
		params, ok := init.Params.(protocol.GroupsParams)
		if !ok {
			return solana.PublicKey{}, nil, fmt.Errorf("groups: unexpected params %T", init.Params)
		}
		addr, err := protocol.GroupsAddress(params.Core, params.GroupID)
		if err != nil {
			return solana.PublicKey{}, nil, err
		}
		g, err := New(context.Background(), logger, store, addr, params)
		if err != nil {
			return solana.PublicKey{}, nil, err
		}
		return addr, g, nil
	}
}

// New restores the market stored at addr or starts an uninitialized one.
func New(ctx context.Context, logger *zap.Logger, store storage.Store, addr solana.PublicKey, params protocol.GroupsParams) (*Groups, error) {
	g := &Groups{
		logger: logger.Named("groups").With(zap.Uint64("group_id", params.GroupID)),
		store:  store,
		self:   addr,
		market: domain.Market{Core: params.Core, ID: params.GroupID},
	}

	m, err := store.LoadMarket(ctx, addr)
	switch {
	case err == nil:
		g.market = *m
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("load market %d: %w", params.GroupID, err)
	}
	return g, nil
}

// Receive implements network.Actor.
func (g *Groups) Receive(c *network.Context, msg network.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := msg.(network.Bounced); ok {
		g.logger.Warn("Confirmation bounced",
			zap.String("kind", b.Original.Kind()),
			zap.Error(b.Reason))
		return nil
	}

	if !c.Sender().Equals(g.market.Core) {
		if burn, ok := msg.(protocol.Burn); ok {
			return g.burn(c, burn)
		}
		return fmt.Errorf("%w: %s from %s", protocol.ErrUnauthorized, msg.Kind(), c.Sender())
	}

	switch m := msg.(type) {
	case protocol.InitMarket:
		return g.init(c, m)
	case protocol.GroupPause:
		return g.pause(c, m)
	case protocol.Mint:
		return g.mint(c, m)
	default:
		return fmt.Errorf("%w: groups cannot handle %s", protocol.ErrInvalidMessage, msg.Kind())
	}
}

func (g *Groups) init(c *network.Context, m protocol.InitMarket) error {
	if g.market.Initialized {
		return fmt.Errorf("%w: %d", protocol.ErrMarketExists, g.market.ID)
	}
	if m.Power < 1 || m.Power > protocol.MaxPower || m.Constant < 1 {
		return fmt.Errorf("%w: power %d constant %d", protocol.ErrInvalidCurve, m.Power, m.Constant)
	}

	next := g.market
	next.Power = m.Power
	next.Constant = m.Constant
	next.Creator = m.Creator
	next.Initialized = true
	if err := g.commit(c.Context(), next); err != nil {
		return err
	}

	g.logger.Info("Market initialized",
		zap.Uint64("power", m.Power),
		zap.Uint64("constant", m.Constant),
		zap.Stringer("creator", m.Creator))
	return g.forward(c)
}

func (g *Groups) pause(c *network.Context, m protocol.GroupPause) error {
	if !g.market.Initialized {
		return fmt.Errorf("%w: %d", protocol.ErrUnknownMarket, g.market.ID)
	}
	next := g.market
	next.Paused = m.State
	if err := g.commit(c.Context(), next); err != nil {
		return err
	}
	g.logger.Info("Market pause changed", zap.Bool("paused", m.State))
	return g.forward(c)
}

func (g *Groups) mint(c *network.Context, m protocol.Mint) error {
	if err := g.tradable(); err != nil {
		return err
	}
	if m.Amount == 0 {
		return fmt.Errorf("%w: mint of zero keys", protocol.ErrInvalidMessage)
	}
	supply, ok := types.Sum(g.market.Supply, m.Amount)
	if !ok || supply > m.MaxKeys {
		return fmt.Errorf("%w: supply %d + %d exceeds %d", protocol.ErrCapacity, g.market.Supply, m.Amount, m.MaxKeys)
	}

	price, err := QuotePrice(g.market.Power, g.market.Constant, g.market.Supply, m.Amount)
	if err != nil {
		return err
	}
	required, ok := types.Sum(price, types.Percent(price, m.PlatformFee), types.Percent(price, m.GroupFee))
	if !ok {
		return fmt.Errorf("%w: fees on %d", protocol.ErrPriceOverflow, price)
	}
	if m.Claim < required {
		return &protocol.FundingShortfallError{Reason: "claim below price plus fees", Required: required, Attached: m.Claim}
	}

	next := g.market
	next.Supply = supply
	if err := g.commit(c.Context(), next); err != nil {
		return err
	}

	g.logger.Debug("Keys minted",
		zap.Stringer("trade_id", m.TradeID),
		zap.Uint64("amount", m.Amount),
		zap.Uint64("price", price),
		zap.Uint64("supply", supply))
	return c.Send(g.market.Core, c.Value(), protocol.MintConfirmed{TradeID: m.TradeID, Price: price, Supply: supply})
}

// burn accepts only the Balance instance derived for the named holder in this market.
func (g *Groups) burn(c *network.Context, m protocol.Burn) error {
	want, err := protocol.BalanceAddress(g.market.Core, g.self, m.Holder)
	if err != nil {
		return err
	}
	if !c.Sender().Equals(want) {
		return fmt.Errorf("%w: burn from %s for holder %s", protocol.ErrUnauthorized, c.Sender(), m.Holder)
	}
	if err := g.tradable(); err != nil {
		return err
	}
	if m.Amount > g.market.Supply {
		g.logger.Error("Burn exceeds supply",
			zap.Stringer("trade_id", m.TradeID),
			zap.Uint64("amount", m.Amount),
			zap.Uint64("supply", g.market.Supply))
		return fmt.Errorf("%w: burn %d of %d", protocol.ErrUnderflow, m.Amount, g.market.Supply)
	}

	supply := g.market.Supply - m.Amount
	price, err := QuotePrice(g.market.Power, g.market.Constant, supply, m.Amount)
	if err != nil {
		return err
	}

	next := g.market
	next.Supply = supply
	if err := g.commit(c.Context(), next); err != nil {
		return err
	}

	g.logger.Debug("Keys burned",
		zap.Stringer("trade_id", m.TradeID),
		zap.Uint64("amount", m.Amount),
		zap.Uint64("price", price),
		zap.Uint64("supply", supply))
	return c.Send(g.market.Core, c.Value(), protocol.BurnConfirmed{TradeID: m.TradeID, Price: price, Supply: supply})
}

func (g *Groups) tradable() error {
	if !g.market.Initialized {
		return fmt.Errorf("%w: %d", protocol.ErrUnknownMarket, g.market.ID)
	}
	if g.market.Paused {
		return fmt.Errorf("%w: market %d", protocol.ErrPaused, g.market.ID)
	}
	return nil
}

// commit persists next before it becomes the live state.
func (g *Groups) commit(ctx context.Context, next domain.Market) error {
	if err := g.store.SaveMarket(ctx, g.self, &next); err != nil {
		return fmt.Errorf("save market %d: %w", next.ID, err)
	}
	g.market = next
	return nil
}

// forward returns any value attached to an administrative message back to Core.
func (g *Groups) forward(c *network.Context) error {
	if c.Value() == 0 {
		return nil
	}
	return c.Send(g.market.Core, c.Value(), protocol.Transfer{Role: protocol.RoleRefund}, network.NoBounce())
}

// Address returns the derived address of this instance.
func (g *Groups) Address() solana.PublicKey { return g.self }

// Market returns a copy of the market state.
func (g *Groups) Market() domain.Market {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.market
}

func (g *Groups) Supply() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.market.Supply
}

func (g *Groups) Paused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.market.Paused
}

// Price quotes amount keys starting at supply on this market's curve.
func (g *Groups) Price(supply, amount uint64) (uint64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.market.Initialized {
		return 0, fmt.Errorf("%w: %d", protocol.ErrUnknownMarket, g.market.ID)
	}
	return QuotePrice(g.market.Power, g.market.Constant, supply, amount)
}
