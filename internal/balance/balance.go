// internal/balance/balance.go
package balance

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

// Balance holds the key count of one holder in one market. It is the only
// component that decides whether a sell may proceed.
type Balance struct {
	logger *zap.Logger
	store  storage.Store
	self   solana.PublicKey

	mu    sync.RWMutex
	state domain.HolderBalance
}

// Factory returns the constructor the network uses to instantiate Balance actors.
func Factory(logger *zap.Logger, store storage.Store) network.Factory {
	return func(init network.Init) (solana.PublicKey, network.Actor, error) {
		params, ok := init.Params.(protocol.BalanceParams)
		if !ok {
			return solana.PublicKey{}, nil, fmt.Errorf("balance: unexpected params %T", init.Params)
		}
		addr, err := protocol.BalanceAddress(params.Core, params.Groups, params.Holder)
		if err != nil {
			return solana.PublicKey{}, nil, err
		}
		b, err := New(context.Background(), logger, store, addr, params)
		if err != nil {
			return solana.PublicKey{}, nil, err
		}
		return addr, b, nil
	}
}

// New restores the holder state stored at addr or starts at zero keys.
func New(ctx context.Context, logger *zap.Logger, store storage.Store, addr solana.PublicKey, params protocol.BalanceParams) (*Balance, error) {
	b := &Balance{
		logger: logger.Named("balance").With(
			zap.Uint64("group_id", params.GroupID),
			zap.Stringer("holder", params.Holder)),
		store: store,
		self:  addr,
		state: domain.HolderBalance{
			Core:    params.Core,
			Groups:  params.Groups,
			GroupID: params.GroupID,
			Holder:  params.Holder,
		},
	}

	st, err := store.LoadHolder(ctx, addr)
	switch {
	case err == nil:
		b.state = *st
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("load holder %s: %w", params.Holder, err)
	}
	return b, nil
}

// Receive implements network.Actor.
func (b *Balance) Receive(c *network.Context, msg network.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bounced, ok := msg.(network.Bounced); ok {
		return b.bounced(c, bounced)
	}
	if !c.Sender().Equals(b.state.Core) {
		return fmt.Errorf("%w: %s from %s", protocol.ErrUnauthorized, msg.Kind(), c.Sender())
	}

	switch m := msg.(type) {
	case protocol.Credit:
		return b.credit(c, m)
	case protocol.Debit:
		return b.debit(c, m)
	default:
		return fmt.Errorf("%w: balance cannot handle %s", protocol.ErrInvalidMessage, msg.Kind())
	}
}

func (b *Balance) credit(c *network.Context, m protocol.Credit) error {
	keys, ok := types.Sum(b.state.Keys, m.Amount)
	if !ok {
		return fmt.Errorf("%w: credit %d to %d keys", protocol.ErrInvalidMessage, m.Amount, b.state.Keys)
	}
	if err := b.commit(c.Context(), keys); err != nil {
		return err
	}
	b.logger.Debug("Keys credited",
		zap.Stringer("trade_id", m.TradeID),
		zap.Uint64("amount", m.Amount),
		zap.Uint64("keys", keys))
	return b.forward(c)
}

func (b *Balance) debit(c *network.Context, m protocol.Debit) error {
	if m.Amount == 0 {
		return fmt.Errorf("%w: debit of zero keys", protocol.ErrInvalidMessage)
	}
	if m.Amount > b.state.Keys {
		return &protocol.InsufficientBalanceError{Requested: m.Amount, Held: b.state.Keys}
	}

	// Burn is sent before the debit is committed so a failed send leaves the count untouched.
	burn := protocol.Burn{TradeID: m.TradeID, Amount: m.Amount, Holder: b.state.Holder}
	init := network.Init{
		Kind:   protocol.KindGroups,
		Params: protocol.GroupsParams{Core: b.state.Core, GroupID: b.state.GroupID},
	}
	if err := c.Send(b.state.Groups, c.Value(), burn, network.WithInit(init)); err != nil {
		return err
	}
	if err := b.commit(c.Context(), b.state.Keys-m.Amount); err != nil {
		return err
	}

	b.logger.Debug("Keys debited",
		zap.Stringer("trade_id", m.TradeID),
		zap.Uint64("amount", m.Amount),
		zap.Uint64("keys", b.state.Keys))
	return nil
}

// bounced restores keys whose burn Groups refused and tells Core the sell was aborted.
func (b *Balance) bounced(c *network.Context, m network.Bounced) error {
	burn, ok := m.Original.(protocol.Burn)
	if !ok || !c.Sender().Equals(b.state.Groups) {
		b.logger.Warn("Unexpected bounce",
			zap.String("kind", m.Original.Kind()),
			zap.Stringer("from", c.Sender()),
			zap.Error(m.Reason))
		return nil
	}

	keys, ok := types.Sum(b.state.Keys, burn.Amount)
	if !ok {
		return fmt.Errorf("%w: restore %d to %d keys", protocol.ErrInvalidMessage, burn.Amount, b.state.Keys)
	}
	if err := b.commit(c.Context(), keys); err != nil {
		return err
	}

	b.logger.Warn("Burn rejected, keys restored",
		zap.Stringer("trade_id", burn.TradeID),
		zap.Uint64("amount", burn.Amount),
		zap.Error(m.Reason))
	return c.Send(b.state.Core, c.Value(), protocol.SellAborted{
		TradeID: burn.TradeID,
		Amount:  burn.Amount,
		Reason:  m.Reason,
	})
}

func (b *Balance) commit(ctx context.Context, keys uint64) error {
	next := b.state
	next.Keys = keys
	if err := b.store.SaveHolder(ctx, b.self, &next); err != nil {
		return fmt.Errorf("save holder %s: %w", next.Holder, err)
	}
	b.state = next
	return nil
}

// forward returns any value attached by Core.
func (b *Balance) forward(c *network.Context) error {
	if c.Value() == 0 {
		return nil
	}
	return c.Send(b.state.Core, c.Value(), protocol.Transfer{Role: protocol.RoleRefund}, network.NoBounce())
}

// Address returns the derived address of this instance.
func (b *Balance) Address() solana.PublicKey { return b.self }

// Keys returns the holder's current key count.
func (b *Balance) Keys() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.Keys
}

// State returns a copy of the holder state.
func (b *Balance) State() domain.HolderBalance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}
