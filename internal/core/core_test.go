package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/friendkeys/internal/auth"
	"github.com/rovshanmuradov/friendkeys/internal/balance"
	"github.com/rovshanmuradov/friendkeys/internal/domain"
	"github.com/rovshanmuradov/friendkeys/internal/events"
	"github.com/rovshanmuradov/friendkeys/internal/groups"
	"github.com/rovshanmuradov/friendkeys/internal/network"
	"github.com/rovshanmuradov/friendkeys/internal/protocol"
	"github.com/rovshanmuradov/friendkeys/internal/settlement"
	"github.com/rovshanmuradov/friendkeys/internal/storage"
	"github.com/rovshanmuradov/friendkeys/internal/types"
)

var now = time.Unix(1_700_000_000, 0)

const (
	power    = 3
	constant = 1_000_000
	logicGas = types.TON / 10
	refGas   = types.TON / 20
)

type published struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *published) Publish(e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *published) ofType(t events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

type env struct {
	net        *network.Network
	store      *storage.MemoryStore
	core       *Core
	owner      solana.PublicKey
	signer     solana.PrivateKey
	settlement solana.PublicKey
	events     *published
}

func randomKey(t *testing.T) solana.PublicKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k.PublicKey()
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zaptest.NewLogger(t)
	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	e := &env{
		net:    network.New(logger, network.WithClock(func() time.Time { return now })),
		store:  storage.NewMemoryStore(),
		owner:  randomKey(t),
		signer: signer,
		events: &published{},
	}
	e.core, err = New(context.Background(), logger, DefaultConfig(e.owner), WithStore(e.store), WithPublisher(e.events))
	require.NoError(t, err)

	require.NoError(t, e.net.Bind(protocol.KindCore, e.core.Address(), e.core))
	e.net.RegisterFactory(protocol.KindGroups, groups.Factory(logger, e.store))
	e.net.RegisterFactory(protocol.KindBalance, balance.Factory(logger, e.store))
	e.net.RegisterFactory(protocol.KindSettlement, settlement.Factory(logger))
	e.settlement, _, err = e.net.Spawn(network.Init{
		Kind:   protocol.KindSettlement,
		Params: protocol.SettlementParams{Core: e.core.Address()},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.net.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	e.net.Fund(e.owner, 10*types.TON)
	e.send(t, e.owner, 0, protocol.SettlementContract{Address: e.settlement})
	e.send(t, e.owner, 0, protocol.PublicKey{Key: signer.PublicKey()})
	return e
}

func (e *env) send(t *testing.T, from solana.PublicKey, value uint64, msg network.Message) {
	t.Helper()
	_, err := e.net.Send(context.Background(), from, e.core.Address(), value, msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.net.WaitIdle(ctx))
}

func (e *env) wallet(t *testing.T, amount uint64) solana.PublicKey {
	t.Helper()
	w := randomKey(t)
	e.net.Fund(w, amount)
	return w
}

func (e *env) createMsg(t *testing.T, sender solana.PublicKey, groupID uint64) protocol.Create {
	t.Helper()
	validUntil := uint64(now.Add(time.Hour).Unix())
	sig, err := auth.SignCreate(e.signer, sender, groupID, validUntil)
	require.NoError(t, err)
	return protocol.Create{
		GroupID:    groupID,
		Power:      power,
		Constant:   constant,
		Signature:  sig,
		ValidUntil: validUntil,
	}
}

func (e *env) createMarket(t *testing.T, groupID uint64) solana.PublicKey {
	t.Helper()
	creator := e.wallet(t, types.TON)
	e.send(t, creator, types.TON, e.createMsg(t, creator, groupID))
	_, ok := e.core.Market(groupID)
	require.True(t, ok)
	return creator
}

func (e *env) buyMsg(t *testing.T, groupID, keys uint64) (protocol.BuyCore, uint64) {
	t.Helper()
	q, err := e.core.BuyQuote(groupID, keys)
	require.NoError(t, err)
	msg := protocol.BuyCore{
		KeysAmount: keys,
		GroupID:    groupID,
		LogicGas:   logicGas,
		RefGas:     refGas,
		KeysValue:  q.KeysValue,
	}
	return msg, logicGas + refGas + q.KeysValue
}

func (e *env) keys(t *testing.T, groupID uint64, holder solana.PublicKey) uint64 {
	t.Helper()
	view, ok := e.core.Market(groupID)
	require.True(t, ok)
	addr, err := protocol.BalanceAddress(e.core.Address(), view.Groups, holder)
	require.NoError(t, err)
	a, ok := e.net.Lookup(addr)
	if !ok {
		return 0
	}
	return a.(*balance.Balance).Keys()
}

func (e *env) refundsTo(addr solana.PublicKey) int {
	var n int
	for _, tx := range e.net.Transactions() {
		if tx.Kind == "refund" && tx.To.Equals(addr) && tx.Success {
			n++
		}
	}
	return n
}

func TestDefaults(t *testing.T) {
	owner := randomKey(t)
	c, err := New(context.Background(), zaptest.NewLogger(t), DefaultConfig(owner))
	require.NoError(t, err)

	assert.Equal(t, uint64(5), c.PlatformFee())
	assert.Equal(t, uint64(5), c.GroupFee())
	assert.Equal(t, uint64(2), c.ReferralFee())
	assert.Equal(t, types.TON/20, c.GasConsumption())
	assert.Equal(t, types.TON/10, c.LogicGasConsumption())
	assert.Equal(t, types.TON/20, c.RefGasConsumption())
	assert.Equal(t, uint64(1000), c.MaxKeys())
	assert.False(t, c.GlobalPause())
	assert.Equal(t, owner, c.PlatformAddress())
	assert.True(t, c.SettlementAddress().IsZero())
	assert.True(t, c.AuthorizedKey().IsZero())

	want, err := protocol.CoreAddress(owner)
	require.NoError(t, err)
	assert.Equal(t, want, c.Address())

	_, err = New(context.Background(), zaptest.NewLogger(t), domain.CoreConfig{})
	assert.Error(t, err)
}

func TestSetters_ChangeOnlyTheirField(t *testing.T) {
	setters := []network.Message{
		protocol.SettlementContract{Address: solana.PublicKey{}},
		protocol.PlatformAddress{Address: solana.MustPublicKeyFromBase58("11111111111111111111111111111112")},
		protocol.PublicKey{Key: solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")},
		protocol.GlobalPause{State: true},
		protocol.MaxKeys{Keys: 10},
		protocol.PlatformFee{Fee: 10},
		protocol.GroupFee{Fee: 20},
		protocol.ReferralFee{Fee: 3},
		protocol.GasConsumption{Gas: 1},
		protocol.RefGasConsumption{Gas: 2},
		protocol.LogicGasConsumption{Gas: 3},
	}

	for _, msg := range setters {
		t.Run(msg.Kind(), func(t *testing.T) {
			e := newEnv(t)
			before := e.core.Config()

			stranger := e.wallet(t, types.TON)
			e.send(t, stranger, types.TON/2, msg)
			assert.Equal(t, before, e.core.Config(), "non-owner must not change configuration")
			assert.Equal(t, types.TON, e.net.BalanceOf(stranger), "rejected setter bounces its value")

			want := before
			_, ok := applySetting(&want, msg)
			require.True(t, ok)

			e.send(t, e.owner, types.TON/2, msg)
			assert.Equal(t, want, e.core.Config())
			e.send(t, e.owner, 0, msg)
			assert.Equal(t, want, e.core.Config(), "repeated setter is stable")
			assert.Equal(t, 10*types.TON, e.net.BalanceOf(e.owner), "setter value is acknowledged back")

			changed := e.events.ofType(events.ConfigChanged)
			require.NotEmpty(t, changed)
		})
	}
}

func TestSetters_RejectInvalidValues(t *testing.T) {
	e := newEnv(t)
	before := e.core.Config()

	for _, msg := range []network.Message{
		protocol.PlatformFee{Fee: 101},
		protocol.GroupFee{Fee: 1000},
		protocol.ReferralFee{Fee: 101},
		protocol.MaxKeys{Keys: 0},
		protocol.PublicKey{},
		protocol.GroupPauseCore{GroupID: 42, State: true},
	} {
		e.send(t, e.owner, 0, msg)
	}
	assert.Equal(t, before, e.core.Config())
}

func TestGroupPause(t *testing.T) {
	e := newEnv(t)
	e.createMarket(t, 1)

	e.send(t, e.owner, 0, protocol.GroupPauseCore{GroupID: 1, State: true})
	assert.True(t, e.core.GroupPaused(1))

	view, _ := e.core.Market(1)
	a, ok := e.net.Lookup(view.Groups)
	require.True(t, ok)
	assert.True(t, a.(*groups.Groups).Paused())

	e.send(t, e.owner, 0, protocol.GroupPauseCore{GroupID: 1, State: false})
	assert.False(t, e.core.GroupPaused(1))
	assert.False(t, a.(*groups.Groups).Paused())
}

func TestCreate_AuthorizationGate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, e *env, sender solana.PublicKey, m *protocol.Create)
	}{
		{
			name: "signed by another key",
			mutate: func(t *testing.T, e *env, sender solana.PublicKey, m *protocol.Create) {
				other, err := solana.NewRandomPrivateKey()
				require.NoError(t, err)
				m.Signature, err = auth.SignCreate(other, sender, m.GroupID, m.ValidUntil)
				require.NoError(t, err)
			},
		},
		{
			name: "expired",
			mutate: func(t *testing.T, e *env, sender solana.PublicKey, m *protocol.Create) {
				m.ValidUntil = uint64(now.Add(-time.Second).Unix())
				var err error
				m.Signature, err = auth.SignCreate(e.signer, sender, m.GroupID, m.ValidUntil)
				require.NoError(t, err)
			},
		},
		{
			name: "signed for another sender",
			mutate: func(t *testing.T, e *env, sender solana.PublicKey, m *protocol.Create) {
				var err error
				m.Signature, err = auth.SignCreate(e.signer, randomKey(t), m.GroupID, m.ValidUntil)
				require.NoError(t, err)
			},
		},
		{
			name: "signed for another group",
			mutate: func(t *testing.T, e *env, sender solana.PublicKey, m *protocol.Create) {
				m.GroupID++
			},
		},
		{
			name: "invalid curve",
			mutate: func(t *testing.T, e *env, sender solana.PublicKey, m *protocol.Create) {
				m.Power = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			sender := e.wallet(t, types.TON)
			msg := e.createMsg(t, sender, 5)
			tt.mutate(t, e, sender, &msg)

			e.send(t, sender, types.TON, msg)

			assert.Empty(t, e.core.Markets())
			assert.Equal(t, types.TON, e.net.BalanceOf(sender), "no funds accepted")
			groupsAddr, err := protocol.GroupsAddress(e.core.Address(), msg.GroupID)
			require.NoError(t, err)
			_, ok := e.net.Lookup(groupsAddr)
			assert.False(t, ok, "no market instantiated")
		})
	}
}

func TestCreate_Succeeds(t *testing.T) {
	e := newEnv(t)
	creator := e.wallet(t, types.TON)
	referrer := randomKey(t)
	msg := e.createMsg(t, creator, 9)
	msg.Referrer = referrer

	e.send(t, creator, types.TON, msg)

	view, ok := e.core.Market(9)
	require.True(t, ok)
	assert.Equal(t, creator, view.Creator)
	assert.Equal(t, referrer, view.Referrer)
	assert.Equal(t, types.TON-e.core.GasConsumption(), e.net.BalanceOf(creator))
	assert.Equal(t, e.core.GasConsumption(), e.core.GasPool())

	a, ok := e.net.Lookup(view.Groups)
	require.True(t, ok)
	m := a.(*groups.Groups).Market()
	assert.True(t, m.Initialized)
	assert.Equal(t, uint64(power), m.Power)
	assert.Equal(t, uint64(constant), m.Constant)

	require.Len(t, e.events.ofType(events.MarketCreated), 1)

	// same id again
	e.net.Fund(creator, types.TON)
	before := e.net.BalanceOf(creator)
	e.send(t, creator, types.TON, e.createMsg(t, creator, 9))
	assert.Equal(t, before, e.net.BalanceOf(creator))
}

func TestBuy_RefundsInFull(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, e *env)
		mutate func(m *protocol.BuyCore, value *uint64)
		code   string
	}{
		{
			name:  "global pause",
			setup: func(t *testing.T, e *env) { e.send(t, e.owner, 0, protocol.GlobalPause{State: true}) },
			code:  "paused",
		},
		{
			name:  "market pause",
			setup: func(t *testing.T, e *env) { e.send(t, e.owner, 0, protocol.GroupPauseCore{GroupID: 1, State: true}) },
			code:  "paused",
		},
		{
			name:  "settlement unset",
			setup: func(t *testing.T, e *env) { e.send(t, e.owner, 0, protocol.SettlementContract{}) },
			code:  "settlement_not_set",
		},
		{
			name:   "unknown market",
			mutate: func(m *protocol.BuyCore, _ *uint64) { m.GroupID = 77 },
			code:   "unknown_market",
		},
		{
			name:  "capacity",
			setup: func(t *testing.T, e *env) { e.send(t, e.owner, 0, protocol.MaxKeys{Keys: 1}) },
			code:  "capacity",
		},
		{
			name:   "value short by one",
			mutate: func(_ *protocol.BuyCore, v *uint64) { *v-- },
			code:   "funding_shortfall",
		},
		{
			name:   "logic gas below minimum",
			mutate: func(m *protocol.BuyCore, _ *uint64) { m.LogicGas = logicGas - 1 },
			code:   "funding_shortfall",
		},
		{
			name:   "ref gas below minimum",
			mutate: func(m *protocol.BuyCore, _ *uint64) { m.RefGas = 0 },
			code:   "funding_shortfall",
		},
		{
			name:   "zero keys",
			mutate: func(m *protocol.BuyCore, _ *uint64) { m.KeysAmount = 0 },
			code:   "invalid_message",
		},
		{
			name:   "claim below price",
			mutate: func(m *protocol.BuyCore, v *uint64) { m.KeysValue--; *v-- },
			code:   "funding_shortfall",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.createMarket(t, 1)
			msg, value := e.buyMsg(t, 1, 2)
			if tt.setup != nil {
				tt.setup(t, e)
			}
			if tt.mutate != nil {
				tt.mutate(&msg, &value)
			}

			trader := e.wallet(t, value)
			e.send(t, trader, value, msg)

			assert.Equal(t, value, e.net.BalanceOf(trader), "full refund")
			assert.Equal(t, 1, e.refundsTo(trader))
			assert.Zero(t, e.keys(t, 1, trader))
			view, _ := e.core.Market(1)
			assert.Zero(t, view.Supply)
			assert.Zero(t, view.Reserved)
			assert.Zero(t, e.core.PendingTrades())

			refunded := e.events.ofType(events.TradeRefunded)
			require.Len(t, refunded, 1)
			assert.Equal(t, tt.code, refunded[0].(events.TradeRefundedEvent).Code)
		})
	}
}

func TestBuy_Completes(t *testing.T) {
	e := newEnv(t)
	creator := e.createMarket(t, 1)
	platform := randomKey(t)
	e.send(t, e.owner, 0, protocol.PlatformAddress{Address: platform})

	msg, value := e.buyMsg(t, 1, 3)
	q, err := e.core.BuyQuote(1, 3)
	require.NoError(t, err)
	trader := e.wallet(t, value+types.TON)
	creatorBefore := e.net.BalanceOf(creator)
	poolBefore := e.core.GasPool()

	e.send(t, trader, value, msg)

	gas := e.core.GasConsumption()
	assert.Equal(t, uint64(3), e.keys(t, 1, trader))
	assert.Equal(t, value+types.TON-q.KeysValue-gas, e.net.BalanceOf(trader))
	assert.Equal(t, q.PlatformFee, e.net.BalanceOf(platform))
	assert.Equal(t, creatorBefore+q.GroupFee, e.net.BalanceOf(creator))

	view, _ := e.core.Market(1)
	assert.Equal(t, uint64(3), view.Supply)
	assert.Equal(t, q.Price, view.Reserve)
	assert.Equal(t, poolBefore+gas, e.core.GasPool())
	assert.Zero(t, e.core.PendingTrades())
	assert.Equal(t, view.Reserve+e.core.GasPool(), e.net.BalanceOf(e.core.Address()))

	done := e.events.ofType(events.TradeCompleted)
	require.Len(t, done, 1)
	ev := done[0].(events.TradeCompletedEvent)
	assert.Equal(t, "buy", ev.Op)
	assert.Equal(t, q.Price, ev.Price)
	assert.Zero(t, ev.ReferralFee)

	var settled bool
	for _, tx := range e.net.Transactions() {
		if tx.From.Equals(e.settlement) && tx.To.Equals(trader) && tx.Success {
			settled = true
		}
	}
	assert.True(t, settled, "Settlement pays the buyer's change")
}

func TestSell_WithoutKeysRetainsValue(t *testing.T) {
	e := newEnv(t)
	e.createMarket(t, 1)

	value := logicGas + refGas
	trader := e.wallet(t, value)
	poolBefore := e.core.GasPool()

	e.send(t, trader, value, protocol.SellCore{KeysAmount: 1, GroupID: 1, LogicGas: logicGas, RefGas: refGas})

	assert.Zero(t, e.net.BalanceOf(trader), "no refund when the holder lacks keys")
	assert.Equal(t, poolBefore+value, e.core.GasPool())
	assert.Zero(t, e.refundsTo(trader))

	failed := e.events.ofType(events.TradeFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "insufficient_balance", failed[0].(events.TradeFailedEvent).Code)

	view, _ := e.core.Market(1)
	balanceAddr, err := protocol.BalanceAddress(e.core.Address(), view.Groups, trader)
	require.NoError(t, err)
	var debitFailed bool
	for _, tx := range e.net.Transactions() {
		if tx.From.Equals(e.core.Address()) && tx.To.Equals(balanceAddr) && tx.Kind == "debit" {
			debitFailed = !tx.Success
		}
	}
	assert.True(t, debitFailed)
}

func TestSell_FundingShortfallRefunds(t *testing.T) {
	e := newEnv(t)
	e.createMarket(t, 1)

	value := logicGas + refGas - 1
	trader := e.wallet(t, value)
	e.send(t, trader, value, protocol.SellCore{KeysAmount: 1, GroupID: 1, LogicGas: logicGas, RefGas: refGas})

	assert.Equal(t, value, e.net.BalanceOf(trader))
	assert.Equal(t, 1, e.refundsTo(trader))
}

func TestRestoreFromStore(t *testing.T) {
	e := newEnv(t)
	e.createMarket(t, 4)
	msg, value := e.buyMsg(t, 4, 2)
	trader := e.wallet(t, value)
	e.send(t, trader, value, msg)

	restored, err := New(context.Background(), zaptest.NewLogger(t), DefaultConfig(e.owner), WithStore(e.store))
	require.NoError(t, err)
	assert.Equal(t, e.core.Config(), restored.Config())
	view, ok := restored.Market(4)
	require.True(t, ok)
	assert.Equal(t, uint64(2), view.Supply)
	assert.Zero(t, view.Reserved)
	assert.Equal(t, e.core.GasPool(), restored.GasPool())
}

type forward struct {
	To   solana.PublicKey
	Body network.Message
}

func (forward) Kind() string { return "forward" }

// forwarder relays a wallet-built body to another address under its own name.
type forwarder struct{}

func (forwarder) Receive(c *network.Context, msg network.Message) error {
	if f, ok := msg.(forward); ok {
		return c.Send(f.To, c.Value(), f.Body)
	}
	return nil
}

func TestBounced_DisburseFromNonSettlementIsIgnored(t *testing.T) {
	tests := []struct {
		name   string
		value  uint64
		amount func(e *env) uint64
	}{
		{
			name:   "no value attached",
			value:  0,
			amount: func(e *env) uint64 { return e.net.BalanceOf(e.core.Address()) },
		},
		{
			name:   "value matches payouts",
			value:  1000,
			amount: func(*env) uint64 { return 1000 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.createMarket(t, 1)
			msg, value := e.buyMsg(t, 1, 5)
			e.send(t, e.wallet(t, value), value, msg)

			relay := randomKey(t)
			require.NoError(t, e.net.Bind("forwarder", relay, forwarder{}))
			attacker := e.wallet(t, types.TON)
			coreBefore := e.net.BalanceOf(e.core.Address())
			poolBefore := e.core.GasPool()

			body := network.Bounced{Original: protocol.Disburse{
				Payouts: []protocol.Payout{{To: attacker, Amount: tt.amount(e), Role: protocol.RoleRefund}},
			}}
			_, err := e.net.Send(context.Background(), attacker, relay, tt.value, forward{To: e.core.Address(), Body: body})
			require.NoError(t, err)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, e.net.WaitIdle(ctx))

			assert.Zero(t, e.core.Unclaimed(attacker))
			assert.Zero(t, e.core.TotalUnclaimed())
			assert.Equal(t, poolBefore+tt.value, e.core.GasPool())
			assert.Equal(t, coreBefore+tt.value, e.net.BalanceOf(e.core.Address()))

			e.send(t, attacker, 0, protocol.ClaimUnclaimed{})
			assert.Equal(t, types.TON-tt.value, e.net.BalanceOf(attacker))

			view, _ := e.core.Market(1)
			assert.Equal(t, view.Reserve+e.core.GasPool(), e.net.BalanceOf(e.core.Address()))
		})
	}
}

func TestSell_ReserveUnderflowEndsTrade(t *testing.T) {
	e := newEnv(t)
	e.createMarket(t, 1)
	msg, value := e.buyMsg(t, 1, 2)
	trader := e.wallet(t, value)
	e.send(t, trader, value, msg)

	e.core.mu.Lock()
	e.core.state.Markets[1].Reserve = 1
	e.core.mu.Unlock()

	sellValue := logicGas + refGas
	e.net.Fund(trader, sellValue)
	before := e.net.BalanceOf(trader)
	poolBefore := e.core.GasPool()
	coreBefore := e.net.BalanceOf(e.core.Address())

	e.send(t, trader, sellValue, protocol.SellCore{KeysAmount: 1, GroupID: 1, LogicGas: logicGas, RefGas: refGas})

	assert.Zero(t, e.core.PendingTrades())
	assert.Equal(t, poolBefore+sellValue, e.core.GasPool())
	assert.Equal(t, coreBefore+sellValue, e.net.BalanceOf(e.core.Address()))
	assert.Equal(t, before-sellValue, e.net.BalanceOf(trader))

	view, _ := e.core.Market(1)
	a, ok := e.net.Lookup(view.Groups)
	require.True(t, ok)
	assert.Equal(t, a.(*groups.Groups).Market().Supply, view.Supply)

	failed := e.events.ofType(events.TradeFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "underflow", failed[0].(events.TradeFailedEvent).Code)
}

func TestBuy_ExactFundingStillNotifiesTrader(t *testing.T) {
	e := newEnv(t)
	e.createMarket(t, 1)
	e.send(t, e.owner, 0, protocol.GasConsumption{Gas: logicGas})
	e.send(t, e.owner, 0, protocol.RefGasConsumption{Gas: 0})

	msg, _ := e.buyMsg(t, 1, 2)
	msg.RefGas = 0
	value := logicGas + msg.KeysValue
	trader := e.wallet(t, value)

	e.send(t, trader, value, msg)

	assert.Equal(t, uint64(2), e.keys(t, 1, trader))
	assert.Zero(t, e.net.BalanceOf(trader))

	var notices int
	for _, tx := range e.net.Transactions() {
		if tx.From.Equals(e.settlement) && tx.To.Equals(trader) && tx.Kind == "transfer" && tx.Success {
			assert.Zero(t, tx.Value)
			notices++
		}
	}
	assert.Equal(t, 1, notices)
	assert.Zero(t, e.core.Unclaimed(trader))
}
