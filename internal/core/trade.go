// internal/core/trade.go
package core

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/friendkeys/internal/domain"
	"github.com/rovshanmuradov/friendkeys/internal/events"
	"github.com/rovshanmuradov/friendkeys/internal/network"
	"github.com/rovshanmuradov/friendkeys/internal/protocol"
	"github.com/rovshanmuradov/friendkeys/internal/types"
)

// trade is a user trade waiting for Groups or Balance. Fee rates and gas
// charges are fixed when the trade is accepted.
type trade struct {
	id         uuid.UUID
	op         string
	trader     solana.PublicKey
	groupID    uint64
	keys       uint64
	value      uint64
	refBalance solana.PublicKey

	platformFee uint64
	groupFee    uint64
	referralFee uint64
	gas         uint64 // always charged
	refGas      uint64 // charged only when a referral payout is made
}

func (c *Core) newTrade(ctx *network.Context, op string, groupID, keys, logicGas, refGas uint64, refBalance solana.PublicKey) *trade {
	cfg := c.state.Config
	return &trade{
		id:          ctx.EnvelopeID(),
		op:          op,
		trader:      ctx.Sender(),
		groupID:     groupID,
		keys:        keys,
		value:       ctx.Value(),
		refBalance:  refBalance,
		platformFee: cfg.PlatformFee,
		groupFee:    cfg.GroupFee,
		referralFee: cfg.ReferralFee,
		gas:         min(cfg.GasConsumption, logicGas),
		refGas:      min(cfg.RefGasConsumption, refGas),
	}
}

func (c *Core) buy(ctx *network.Context, m protocol.BuyCore) error {
	t := c.newTrade(ctx, opBuy, m.GroupID, m.KeysAmount, m.LogicGas, m.RefGas, m.RefBalance)
	view, err := c.checkBuy(ctx, m)
	if err != nil {
		return c.refund(ctx, t, err)
	}

	mint := protocol.Mint{
		TradeID:     t.id,
		Amount:      m.KeysAmount,
		Claim:       m.KeysValue,
		PlatformFee: t.platformFee,
		GroupFee:    t.groupFee,
		MaxKeys:     c.state.Config.MaxKeys,
	}
	if err := ctx.Send(view.Groups, 0, mint, network.WithInit(c.groupsInit(m.GroupID))); err != nil {
		return err
	}

	view.Reserved += m.KeysAmount
	c.pending[t.id] = t
	c.persist(ctx)

	c.logger.Debug("Buy accepted",
		zap.Stringer("trade_id", t.id),
		zap.Uint64("group_id", t.groupID),
		zap.Stringer("trader", t.trader),
		zap.Uint64("keys", t.keys),
		zap.Uint64("value", t.value))
	return nil
}

func (c *Core) checkBuy(ctx *network.Context, m protocol.BuyCore) (*domain.MarketView, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	view, err := c.tradableMarket(m.GroupID)
	if err != nil {
		return nil, err
	}
	held, ok := types.Sum(view.Supply, view.Reserved, m.KeysAmount)
	if !ok || held > c.state.Config.MaxKeys {
		return nil, fmt.Errorf("%w: market %d holds %d, reserved %d, buying %d, max %d",
			protocol.ErrCapacity, m.GroupID, view.Supply, view.Reserved, m.KeysAmount, c.state.Config.MaxKeys)
	}
	if err := c.checkFunding(ctx.Value(), m.LogicGas, m.RefGas, m.KeysValue); err != nil {
		return nil, err
	}
	return view, nil
}

func (c *Core) sell(ctx *network.Context, m protocol.SellCore) error {
	t := c.newTrade(ctx, opSell, m.GroupID, m.KeysAmount, m.LogicGas, m.RefGas, m.RefBalance)
	view, err := c.checkSell(ctx, m)
	if err != nil {
		return c.refund(ctx, t, err)
	}

	addr, err := protocol.BalanceAddress(c.self, view.Groups, t.trader)
	if err != nil {
		return c.refund(ctx, t, err)
	}
	debit := protocol.Debit{TradeID: t.id, Amount: m.KeysAmount}
	if err := ctx.Send(addr, 0, debit, network.WithInit(c.balanceInit(view, t.trader))); err != nil {
		return err
	}

	c.pending[t.id] = t

	c.logger.Debug("Sell accepted",
		zap.Stringer("trade_id", t.id),
		zap.Uint64("group_id", t.groupID),
		zap.Stringer("trader", t.trader),
		zap.Uint64("keys", t.keys),
		zap.Uint64("value", t.value))
	return nil
}

func (c *Core) checkSell(ctx *network.Context, m protocol.SellCore) (*domain.MarketView, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	view, err := c.tradableMarket(m.GroupID)
	if err != nil {
		return nil, err
	}
	if err := c.checkFunding(ctx.Value(), m.LogicGas, m.RefGas, 0); err != nil {
		return nil, err
	}
	return view, nil
}

func (c *Core) tradableMarket(groupID uint64) (*domain.MarketView, error) {
	cfg := c.state.Config
	if cfg.SettlementAddress.IsZero() {
		return nil, protocol.ErrSettlementNotSet
	}
	if cfg.GlobalPause {
		return nil, fmt.Errorf("%w: global pause", protocol.ErrPaused)
	}
	view, ok := c.state.Markets[groupID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", protocol.ErrUnknownMarket, groupID)
	}
	if view.Paused {
		return nil, fmt.Errorf("%w: market %d", protocol.ErrPaused, groupID)
	}
	return view, nil
}

// checkFunding requires the declared gas allowances to meet the configured
// minimums and the attached value to cover allowances plus claim.
func (c *Core) checkFunding(value, logicGas, refGas, claim uint64) error {
	cfg := c.state.Config
	if logicGas < cfg.LogicGasConsumption {
		return &protocol.FundingShortfallError{Reason: "logic gas below minimum", Required: cfg.LogicGasConsumption, Attached: logicGas}
	}
	if refGas < cfg.RefGasConsumption {
		return &protocol.FundingShortfallError{Reason: "referral gas below minimum", Required: cfg.RefGasConsumption, Attached: refGas}
	}
	required, ok := types.Sum(logicGas, refGas, claim)
	if !ok {
		return fmt.Errorf("%w: declared amounts overflow", protocol.ErrInvalidMessage)
	}
	if value < required {
		return &protocol.FundingShortfallError{Reason: "attached value below gas plus claim", Required: required, Attached: value}
	}
	return nil
}

// refund returns the full attached value of t to the trader.
func (c *Core) refund(ctx *network.Context, t *trade, cause error) error {
	code := protocol.Code(cause)
	body := protocol.Refund{TradeID: t.id, Code: code, Reason: cause.Error()}
	if err := ctx.Send(t.trader, t.value, body); err != nil {
		return err
	}
	delete(c.pending, t.id)

	c.logger.Warn("Trade refunded",
		zap.Stringer("trade_id", t.id),
		zap.String("op", t.op),
		zap.Uint64("group_id", t.groupID),
		zap.Stringer("trader", t.trader),
		zap.Uint64("amount", t.value),
		zap.String("code", code),
		zap.Error(cause))
	c.recorder.RecordTrade(t.op, outcomeRefunded, 0)
	c.publish(events.TradeRefundedEvent{
		BaseEvent: events.NewBase(events.TradeRefunded, ctx.Now()),
		TradeID:   t.id,
		Op:        t.op,
		GroupID:   t.groupID,
		Trader:    t.trader,
		Amount:    t.value,
		Code:      code,
		Error:     cause,
	})
	return nil
}

// fail ends t without a refund; the attached value joins the gas pool.
func (c *Core) fail(ctx *network.Context, t *trade, cause error) {
	delete(c.pending, t.id)
	c.state.GasPool += t.value
	c.persist(ctx)

	code := protocol.Code(cause)
	c.logger.Warn("Trade failed without refund",
		zap.Stringer("trade_id", t.id),
		zap.String("op", t.op),
		zap.Uint64("group_id", t.groupID),
		zap.Stringer("trader", t.trader),
		zap.Uint64("retained", t.value),
		zap.Error(cause))
	c.recorder.RecordTrade(t.op, outcomeFailed, 0)
	c.publish(events.TradeFailedEvent{
		BaseEvent: events.NewBase(events.TradeFailed, ctx.Now()),
		TradeID:   t.id,
		Op:        t.op,
		GroupID:   t.groupID,
		Trader:    t.trader,
		Retained:  t.value,
		Code:      code,
		Error:     cause,
	})
}

// pendingFrom finds trade id of kind op and checks that from is the actor
// expected to answer for it.
func (c *Core) pendingFrom(id uuid.UUID, op string, from solana.PublicKey) (*trade, *domain.MarketView, error) {
	t, ok := c.pending[id]
	if !ok || t.op != op {
		return nil, nil, fmt.Errorf("%w: %s %s", protocol.ErrUnknownTrade, op, id)
	}
	view, ok := c.state.Markets[t.groupID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", protocol.ErrUnknownMarket, t.groupID)
	}

	want := view.Groups
	if op == opSell {
		addr, err := protocol.BalanceAddress(c.self, view.Groups, t.trader)
		if err != nil {
			return nil, nil, err
		}
		// the burn confirmation comes from Groups, everything else from Balance
		if !from.Equals(view.Groups) {
			want = addr
		}
	}
	if !from.Equals(want) {
		return nil, nil, &protocol.TradeError{Op: op, TradeID: id, Err: fmt.Errorf("%w: answer from %s", protocol.ErrUnauthorized, from)}
	}
	return t, view, nil
}

// split divides the fees on price. The referral share comes out of the platform fee.
type split struct {
	platform uint64
	creator  uint64
	referral uint64
	referrer solana.PublicKey
	gas      uint64
}

func (c *Core) split(t *trade, view *domain.MarketView, price uint64) split {
	pf := types.Percent(price, t.platformFee)
	gf := types.Percent(price, t.groupFee)
	if t.op == opSell && pf+gf > price {
		gf = price - min(pf, price)
		pf = min(pf, price)
	}
	s := split{platform: pf, creator: gf, gas: t.gas}

	referrer := t.refBalance
	if referrer.IsZero() {
		referrer = view.Referrer
	}
	if rf := min(types.Percent(price, t.referralFee), pf); !referrer.IsZero() && rf > 0 {
		s.platform = pf - rf
		s.referral = rf
		s.referrer = referrer
		s.gas += t.refGas
	}
	return s
}

func (s split) fees() uint64 { return s.platform + s.creator + s.referral }

func (s split) payouts(platform, creator solana.PublicKey) []protocol.Payout {
	return []protocol.Payout{
		{To: platform, Amount: s.platform, Role: protocol.RolePlatform},
		{To: creator, Amount: s.creator, Role: protocol.RoleCreator},
		{To: s.referrer, Amount: s.referral, Role: protocol.RoleReferral},
	}
}

func (c *Core) mintConfirmed(ctx *network.Context, m protocol.MintConfirmed) error {
	t, view, err := c.pendingFrom(m.TradeID, opBuy, ctx.Sender())
	if err != nil {
		return err
	}

	s := c.split(t, view, m.Price)
	cost, ok := types.Sum(m.Price, s.fees(), s.gas)
	if !ok || cost > t.value {
		c.logger.Error("Confirmed buy costs more than attached value",
			zap.Stringer("trade_id", t.id),
			zap.Uint64("cost", cost),
			zap.Uint64("value", t.value))
		return &protocol.TradeError{Op: opBuy, TradeID: t.id, Err: protocol.ErrFundingShortfall}
	}

	credit := protocol.Credit{TradeID: t.id, Amount: t.keys}
	addr, err := protocol.BalanceAddress(c.self, view.Groups, t.trader)
	if err != nil {
		return err
	}
	if err := ctx.Send(addr, 0, credit, network.WithInit(c.balanceInit(view, t.trader))); err != nil {
		return err
	}
	payouts := append(s.payouts(c.state.Config.PlatformAddress, view.Creator),
		protocol.Payout{To: t.trader, Amount: t.value - cost, Role: protocol.RoleRefund})
	if err := c.disburse(ctx, t.id, payouts); err != nil {
		return err
	}

	if view.Supply+t.keys != m.Supply {
		c.logger.Error("Supply mirror diverged from Groups",
			zap.Uint64("group_id", view.ID),
			zap.Uint64("mirror", view.Supply+t.keys),
			zap.Uint64("groups", m.Supply))
	}
	view.Supply = m.Supply
	view.Reserved -= min(view.Reserved, t.keys)
	view.Reserve += m.Price
	c.state.GasPool += s.gas
	delete(c.pending, t.id)
	c.persist(ctx)

	c.completed(ctx, t, m.Price, s, m.Supply)
	return nil
}

func (c *Core) burnConfirmed(ctx *network.Context, m protocol.BurnConfirmed) error {
	t, view, err := c.pendingFrom(m.TradeID, opSell, ctx.Sender())
	if err != nil {
		return err
	}
	if !ctx.Sender().Equals(view.Groups) {
		return fmt.Errorf("%w: burn confirmation from %s", protocol.ErrUnauthorized, ctx.Sender())
	}
	if view.Reserve < m.Price {
		c.logger.Error("Reserve below burn price",
			zap.Uint64("group_id", view.ID),
			zap.Uint64("reserve", view.Reserve),
			zap.Uint64("price", m.Price))
		view.Supply = m.Supply
		c.fail(ctx, t, protocol.ErrUnderflow)
		return nil
	}

	s := c.split(t, view, m.Price)
	payouts := append(s.payouts(c.state.Config.PlatformAddress, view.Creator),
		protocol.Payout{To: t.trader, Amount: m.Price - s.fees(), Role: protocol.RoleSeller},
		protocol.Payout{To: t.trader, Amount: t.value - s.gas, Role: protocol.RoleRefund})
	if err := c.disburse(ctx, t.id, payouts); err != nil {
		return err
	}

	view.Supply = m.Supply
	view.Reserve -= m.Price
	c.state.GasPool += s.gas
	delete(c.pending, t.id)
	c.persist(ctx)

	c.completed(ctx, t, m.Price, s, m.Supply)
	return nil
}

func (c *Core) completed(ctx *network.Context, t *trade, price uint64, s split, supply uint64) {
	c.logger.Debug("Trade completed",
		zap.Stringer("trade_id", t.id),
		zap.String("op", t.op),
		zap.Uint64("group_id", t.groupID),
		zap.Uint64("keys", t.keys),
		zap.Uint64("price", price),
		zap.Uint64("supply", supply))
	c.recorder.RecordTrade(t.op, outcomeCompleted, price)
	c.publish(events.TradeCompletedEvent{
		BaseEvent:   events.NewBase(events.TradeCompleted, ctx.Now()),
		TradeID:     t.id,
		Op:          t.op,
		GroupID:     t.groupID,
		Trader:      t.trader,
		Keys:        t.keys,
		Price:       price,
		PlatformFee: s.platform,
		GroupFee:    s.creator,
		ReferralFee: s.referral,
		Gas:         s.gas,
		Supply:      supply,
	})
}

func (c *Core) sellAborted(ctx *network.Context, m protocol.SellAborted) error {
	t, _, err := c.pendingFrom(m.TradeID, opSell, ctx.Sender())
	if err != nil {
		return err
	}
	reason := m.Reason
	if reason == nil {
		reason = errors.New("sell aborted")
	}
	return c.refund(ctx, t, reason)
}
