// internal/settlement/settlement.go
package settlement

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/friendkeys/internal/network"
	"github.com/rovshanmuradov/friendkeys/internal/protocol"
)

// Settlement fans out Core's disbursements. It keeps no ledger of its own:
// value it receives either leaves in the same step or goes back to Core.
type Settlement struct {
	logger *zap.Logger
	core   solana.PublicKey
	self   solana.PublicKey
}

// Factory returns the constructor the network uses to instantiate Settlement.
func Factory(logger *zap.Logger) network.Factory {
	return func(init network.Init) (solana.PublicKey, network.Actor, error) {
		params, ok := init.Params.(protocol.SettlementParams)
		if !ok {
			return solana.PublicKey{}, nil, fmt.Errorf("settlement: unexpected params %T", init.Params)
		}
		s, err := New(logger, params.Core)
		if err != nil {
			return solana.PublicKey{}, nil, err
		}
		return s.self, s, nil
	}
}

// New creates the Settlement serving core at its derived address.
func New(logger *zap.Logger, core solana.PublicKey) (*Settlement, error) {
	addr, err := protocol.SettlementAddress(core)
	if err != nil {
		return nil, err
	}
	return &Settlement{
		logger: logger.Named("settlement"),
		core:   core,
		self:   addr,
	}, nil
}

// Address returns the derived address.
func (s *Settlement) Address() solana.PublicKey { return s.self }

// Core returns the only address allowed to request disbursements.
func (s *Settlement) Core() solana.PublicKey { return s.core }

// Receive implements network.Actor.
func (s *Settlement) Receive(c *network.Context, msg network.Message) error {
	switch m := msg.(type) {
	case protocol.Disburse:
		return s.disburse(c, m)
	case network.Bounced:
		return s.bounced(c, m)
	default:
		return fmt.Errorf("%w: settlement cannot handle %s", protocol.ErrInvalidMessage, msg.Kind())
	}
}

func (s *Settlement) disburse(c *network.Context, m protocol.Disburse) error {
	if !c.Sender().Equals(s.core) {
		return fmt.Errorf("%w: disburse from %s", protocol.ErrUnauthorized, c.Sender())
	}
	total, ok := m.Total()
	if !ok || total != c.Value() {
		return fmt.Errorf("%w: payouts %d, attached %d", protocol.ErrPayoutMismatch, total, c.Value())
	}

	for _, p := range m.Payouts {
		if p.Amount == 0 && p.Role != protocol.RoleRefund {
			continue
		}
		if err := c.Send(p.To, p.Amount, protocol.Transfer{TradeID: m.TradeID, Role: p.Role}); err != nil {
			return err
		}
	}

	s.logger.Debug("Disbursed",
		zap.Stringer("trade_id", m.TradeID),
		zap.Int("payouts", len(m.Payouts)),
		zap.Uint64("total", total))
	return nil
}

// bounced reports a rejected payout to Core together with its value.
func (s *Settlement) bounced(c *network.Context, m network.Bounced) error {
	switch orig := m.Original.(type) {
	case protocol.Transfer:
		if c.Value() == 0 {
			s.logger.Debug("Empty refund notice rejected",
				zap.Stringer("trade_id", orig.TradeID),
				zap.Stringer("recipient", c.Sender()))
			return nil
		}
		s.logger.Warn("Payout rejected",
			zap.Stringer("trade_id", orig.TradeID),
			zap.String("role", string(orig.Role)),
			zap.Stringer("recipient", c.Sender()),
			zap.Uint64("amount", c.Value()),
			zap.Error(m.Reason))
		return c.Send(s.core, c.Value(), protocol.PayoutFailed{
			TradeID:   orig.TradeID,
			Recipient: c.Sender(),
			Role:      orig.Role,
			Amount:    c.Value(),
		})
	case protocol.PayoutFailed:
		// Core refused the report; the value stays here until an operator intervenes.
		s.logger.Error("Core rejected payout failure report",
			zap.Stringer("trade_id", orig.TradeID),
			zap.Stringer("recipient", orig.Recipient),
			zap.Uint64("amount", c.Value()),
			zap.Error(m.Reason))
		return nil
	default:
		s.logger.Warn("Unexpected bounce", zap.String("kind", m.Original.Kind()), zap.Error(m.Reason))
		return nil
	}
}
