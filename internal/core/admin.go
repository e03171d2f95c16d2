// internal/core/admin.go
package core

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/friendkeys/internal/auth"
	"github.com/rovshanmuradov/friendkeys/internal/domain"
	"github.com/rovshanmuradov/friendkeys/internal/events"
	"github.com/rovshanmuradov/friendkeys/internal/network"
	"github.com/rovshanmuradov/friendkeys/internal/protocol"
)

// create registers a market. Any failure bounces the attached value; success
// keeps at most the configured gas and acknowledges with the rest.
func (c *Core) create(ctx *network.Context, m protocol.Create) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := auth.CheckCreate(c.state.Config.AuthorizedKey, ctx.Sender(), m, ctx.Now()); err != nil {
		return err
	}
	if _, ok := c.state.Markets[m.GroupID]; ok {
		return fmt.Errorf("%w: %d", protocol.ErrMarketExists, m.GroupID)
	}

	addr, err := protocol.GroupsAddress(c.self, m.GroupID)
	if err != nil {
		return err
	}
	keep := min(ctx.Value(), c.state.Config.GasConsumption)
	init := protocol.InitMarket{Power: m.Power, Constant: m.Constant, Creator: ctx.Sender()}
	if err := ctx.Send(addr, 0, init, network.WithInit(c.groupsInit(m.GroupID))); err != nil {
		return err
	}
	if err := ctx.Send(ctx.Sender(), ctx.Value()-keep, protocol.Ack{Op: m.Kind()}); err != nil {
		return err
	}

	c.state.Markets[m.GroupID] = &domain.MarketView{
		ID:       m.GroupID,
		Groups:   addr,
		Creator:  ctx.Sender(),
		Referrer: m.Referrer,
		Power:    m.Power,
		Constant: m.Constant,
	}
	c.state.GasPool += keep
	c.persist(ctx)

	c.logger.Info("Market created",
		zap.Uint64("group_id", m.GroupID),
		zap.Stringer("groups", addr),
		zap.Stringer("creator", ctx.Sender()),
		zap.Uint64("power", m.Power),
		zap.Uint64("constant", m.Constant))
	c.publish(events.MarketCreatedEvent{
		BaseEvent: events.NewBase(events.MarketCreated, ctx.Now()),
		GroupID:   m.GroupID,
		Groups:    addr,
		Creator:   ctx.Sender(),
		Referrer:  m.Referrer,
		Power:     m.Power,
		Constant:  m.Constant,
	})
	return nil
}

// applySetting writes the single field msg targets and returns its name.
func applySetting(cfg *domain.CoreConfig, msg network.Message) (string, bool) {
	switch m := msg.(type) {
	case protocol.SettlementContract:
		cfg.SettlementAddress = m.Address
		return "settlement_address", true
	case protocol.PlatformAddress:
		cfg.PlatformAddress = m.Address
		return "platform_address", true
	case protocol.PublicKey:
		cfg.AuthorizedKey = m.Key
		return "authorized_key", true
	case protocol.GlobalPause:
		cfg.GlobalPause = m.State
		return "global_pause", true
	case protocol.MaxKeys:
		cfg.MaxKeys = m.Keys
		return "max_keys", true
	case protocol.PlatformFee:
		cfg.PlatformFee = m.Fee
		return "platform_fee", true
	case protocol.GroupFee:
		cfg.GroupFee = m.Fee
		return "group_fee", true
	case protocol.ReferralFee:
		cfg.ReferralFee = m.Fee
		return "referral_fee", true
	case protocol.GasConsumption:
		cfg.GasConsumption = m.Gas
		return "gas_consumption", true
	case protocol.RefGasConsumption:
		cfg.RefGasConsumption = m.Gas
		return "ref_gas_consumption", true
	case protocol.LogicGasConsumption:
		cfg.LogicGasConsumption = m.Gas
		return "logic_gas_consumption", true
	default:
		return "", false
	}
}

func (c *Core) checkOwner(ctx *network.Context, msg network.Message) error {
	if !ctx.Sender().Equals(c.state.Config.Owner) {
		return fmt.Errorf("%w: %s from %s", protocol.ErrUnauthorized, msg.Kind(), ctx.Sender())
	}
	if v, ok := msg.(protocol.Validator); ok {
		return v.Validate()
	}
	return nil
}

// configure handles the administrative setters.
func (c *Core) configure(ctx *network.Context, msg network.Message) error {
	next := c.state.Config
	field, ok := applySetting(&next, msg)
	if !ok {
		return fmt.Errorf("%w: core cannot handle %s", protocol.ErrInvalidMessage, msg.Kind())
	}
	if err := c.checkOwner(ctx, msg); err != nil {
		return err
	}
	if err := ctx.Send(ctx.Sender(), ctx.Value(), protocol.Ack{Op: msg.Kind()}); err != nil {
		return err
	}

	c.state.Config = next
	c.persist(ctx)
	c.configChanged(ctx, field)
	return nil
}

func (c *Core) groupPause(ctx *network.Context, m protocol.GroupPauseCore) error {
	if err := c.checkOwner(ctx, m); err != nil {
		return err
	}
	view, ok := c.state.Markets[m.GroupID]
	if !ok {
		return fmt.Errorf("%w: %d", protocol.ErrUnknownMarket, m.GroupID)
	}
	if err := ctx.Send(view.Groups, 0, protocol.GroupPause{State: m.State}, network.WithInit(c.groupsInit(m.GroupID))); err != nil {
		return err
	}
	if err := ctx.Send(ctx.Sender(), ctx.Value(), protocol.Ack{Op: m.Kind()}); err != nil {
		return err
	}

	view.Paused = m.State
	c.persist(ctx)
	c.configChanged(ctx, fmt.Sprintf("group_pause.%d", m.GroupID))
	return nil
}

func (c *Core) configChanged(ctx *network.Context, field string) {
	c.logger.Info("Configuration changed",
		zap.String("field", field),
		zap.Stringer("by", ctx.Sender()))
	c.publish(events.ConfigChangedEvent{
		BaseEvent: events.NewBase(events.ConfigChanged, ctx.Now()),
		Field:     field,
		By:        ctx.Sender(),
	})
}

// claim pays out everything booked as unclaimed for the sender, plus the
// attached value, through Settlement.
func (c *Core) claim(ctx *network.Context, m protocol.ClaimUnclaimed) error {
	owed := c.state.Unclaimed[ctx.Sender()]
	if owed == 0 {
		return fmt.Errorf("%w: %s", protocol.ErrNothingToClaim, ctx.Sender())
	}
	if c.state.Config.SettlementAddress.IsZero() {
		return protocol.ErrSettlementNotSet
	}
	dest := m.Destination
	if dest.IsZero() {
		dest = ctx.Sender()
	}

	delete(c.state.Unclaimed, ctx.Sender())
	payouts := []protocol.Payout{
		{To: dest, Amount: owed, Role: protocol.RoleClaim},
		{To: ctx.Sender(), Amount: ctx.Value(), Role: protocol.RoleRefund},
	}
	if err := c.disburse(ctx, ctx.EnvelopeID(), payouts); err != nil {
		c.state.Unclaimed[ctx.Sender()] = owed
		return err
	}
	c.persist(ctx)

	c.logger.Info("Unclaimed payout withdrawn",
		zap.Stringer("claimant", ctx.Sender()),
		zap.Stringer("destination", dest),
		zap.Uint64("amount", owed))
	return nil
}

// payoutFailed books a payout its recipient rejected.
func (c *Core) payoutFailed(ctx *network.Context, m protocol.PayoutFailed) error {
	if !c.isSettlement(ctx.Sender()) {
		return fmt.Errorf("%w: payout report from %s", protocol.ErrUnauthorized, ctx.Sender())
	}
	c.state.Unclaimed[m.Recipient] += ctx.Value()
	c.persist(ctx)

	c.logger.Warn("Payout booked as unclaimed",
		zap.Stringer("trade_id", m.TradeID),
		zap.Stringer("recipient", m.Recipient),
		zap.String("role", string(m.Role)),
		zap.Uint64("amount", ctx.Value()))
	c.recorder.RecordPayoutFailure(string(m.Role))
	c.publish(events.PayoutFailedEvent{
		BaseEvent: events.NewBase(events.PayoutFailed, ctx.Now()),
		TradeID:   m.TradeID,
		Recipient: m.Recipient,
		Role:      string(m.Role),
		Amount:    ctx.Value(),
	})
	return nil
}

// bounced continues a chain whose downstream step failed.
func (c *Core) bounced(ctx *network.Context, b network.Bounced) error {
	switch orig := b.Original.(type) {
	case protocol.Mint:
		t, view, err := c.pendingFrom(orig.TradeID, opBuy, ctx.Sender())
		if err != nil {
			c.logger.Warn("Bounced mint for unknown trade", zap.Stringer("trade_id", orig.TradeID), zap.Error(err))
			return nil
		}
		view.Reserved -= min(view.Reserved, t.keys)
		c.persist(ctx)
		return c.refund(ctx, t, b.Reason)

	case protocol.Debit:
		t, _, err := c.pendingFrom(orig.TradeID, opSell, ctx.Sender())
		if err != nil {
			c.logger.Warn("Bounced debit for unknown trade", zap.Stringer("trade_id", orig.TradeID), zap.Error(err))
			return nil
		}
		if errors.Is(b.Reason, protocol.ErrInsufficientBalance) {
			c.fail(ctx, t, b.Reason)
			return nil
		}
		return c.refund(ctx, t, b.Reason)

	case protocol.Refund, protocol.Ack:
		// the sender refused its own money back
		c.state.Unclaimed[ctx.Sender()] += ctx.Value()
		c.persist(ctx)
		c.logger.Warn("Return transfer rejected, booked as unclaimed",
			zap.String("kind", orig.Kind()),
			zap.Stringer("recipient", ctx.Sender()),
			zap.Uint64("amount", ctx.Value()))
		return nil

	case protocol.Disburse:
		total, ok := orig.Total()
		if !c.isSettlement(ctx.Sender()) || !ok || total != ctx.Value() {
			c.logger.Warn("Ignoring disbursement bounce",
				zap.Stringer("trade_id", orig.TradeID),
				zap.Stringer("from", ctx.Sender()),
				zap.Uint64("value", ctx.Value()),
				zap.Uint64("payouts", total))
			c.retain(ctx)
			return nil
		}
		for _, p := range orig.Payouts {
			c.state.Unclaimed[p.To] += p.Amount
		}
		c.persist(ctx)
		c.logger.Error("Settlement rejected disbursement, payouts booked as unclaimed",
			zap.Stringer("trade_id", orig.TradeID),
			zap.Stringer("settlement", ctx.Sender()),
			zap.Uint64("amount", ctx.Value()),
			zap.Error(b.Reason))
		return nil

	case protocol.Credit:
		c.logger.Error("Credit rejected after mint",
			zap.Stringer("trade_id", orig.TradeID),
			zap.Stringer("balance", ctx.Sender()),
			zap.Uint64("keys", orig.Amount),
			zap.Error(b.Reason))
		return nil

	default:
		c.logger.Warn("Message bounced",
			zap.String("kind", b.Original.Kind()),
			zap.Stringer("from", ctx.Sender()),
			zap.Error(b.Reason))
		c.retain(ctx)
		return nil
	}
}

// retain moves any value attached to the current message into the gas pool.
func (c *Core) retain(ctx *network.Context) {
	if ctx.Value() > 0 {
		c.state.GasPool += ctx.Value()
		c.persist(ctx)
	}
}
