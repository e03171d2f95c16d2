package balance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/friendkeys/internal/groups"
	"github.com/rovshanmuradov/friendkeys/internal/network"
	"github.com/rovshanmuradov/friendkeys/internal/protocol"
	"github.com/rovshanmuradov/friendkeys/internal/storage"
)

type command struct {
	To   solana.PublicKey
	Body network.Message
	Init *network.Init
}

func (command) Kind() string { return "command" }

type relay struct {
	mu  sync.Mutex
	got []network.Message
}

func (r *relay) Receive(c *network.Context, msg network.Message) error {
	if cmd, ok := msg.(command); ok {
		var opts []network.SendOption
		if cmd.Init != nil {
			opts = append(opts, network.WithInit(*cmd.Init))
		}
		return c.Send(cmd.To, 0, cmd.Body, opts...)
	}
	r.mu.Lock()
	r.got = append(r.got, msg)
	r.mu.Unlock()
	return nil
}

func (r *relay) last() network.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return nil
	}
	return r.got[len(r.got)-1]
}

type harness struct {
	net     *network.Network
	store   *storage.MemoryStore
	wallet  solana.PublicKey
	core    solana.PublicKey
	coreR   *relay
	groups  solana.PublicKey
	holder  solana.PublicKey
	balance solana.PublicKey
}

func randomKey(t *testing.T) solana.PublicKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k.PublicKey()
}

const groupID = 3

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := &harness{
		net:    network.New(logger),
		store:  storage.NewMemoryStore(),
		wallet: randomKey(t),
		core:   randomKey(t),
		coreR:  &relay{},
		holder: randomKey(t),
	}
	h.net.RegisterFactory(protocol.KindGroups, groups.Factory(logger, h.store))
	h.net.RegisterFactory(protocol.KindBalance, Factory(logger, h.store))
	require.NoError(t, h.net.Bind(protocol.KindCore, h.core, h.coreR))

	var err error
	h.groups, err = protocol.GroupsAddress(h.core, groupID)
	require.NoError(t, err)
	h.balance, err = protocol.BalanceAddress(h.core, h.groups, h.holder)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.net.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) exec(t *testing.T, from, to solana.PublicKey, body network.Message, init *network.Init) {
	t.Helper()
	_, err := h.net.Send(context.Background(), h.wallet, from, 0, command{To: to, Body: body, Init: init})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.net.WaitIdle(ctx))
}

func (h *harness) toBalance(t *testing.T, body network.Message) {
	t.Helper()
	h.exec(t, h.core, h.balance, body, &network.Init{
		Kind:   protocol.KindBalance,
		Params: protocol.BalanceParams{Core: h.core, Groups: h.groups, GroupID: groupID, Holder: h.holder},
	})
}

func (h *harness) toGroups(t *testing.T, body network.Message) {
	t.Helper()
	h.exec(t, h.core, h.groups, body, &network.Init{
		Kind:   protocol.KindGroups,
		Params: protocol.GroupsParams{Core: h.core, GroupID: groupID},
	})
}

// openMarket creates the market and mints keys to match a credit of the same size.
func (h *harness) openMarket(t *testing.T, keys uint64) {
	t.Helper()
	h.toGroups(t, protocol.InitMarket{Power: 1, Constant: 100, Creator: h.holder})
	h.toGroups(t, protocol.Mint{TradeID: uuid.New(), Amount: keys, Claim: 1 << 40, MaxKeys: 1000})
	h.toBalance(t, protocol.Credit{TradeID: uuid.New(), Amount: keys})
}

func (h *harness) keys(t *testing.T) uint64 {
	t.Helper()
	a, ok := h.net.Lookup(h.balance)
	require.True(t, ok)
	return a.(*Balance).Keys()
}

func TestBalance_CreditStartsFromZero(t *testing.T) {
	h := newHarness(t)
	h.toBalance(t, protocol.Credit{TradeID: uuid.New(), Amount: 4})
	h.toBalance(t, protocol.Credit{TradeID: uuid.New(), Amount: 2})
	assert.Equal(t, uint64(6), h.keys(t))

	stored, err := h.store.LoadHolder(context.Background(), h.balance)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), stored.Keys)
	assert.Equal(t, uint64(groupID), stored.GroupID)
}

func TestBalance_RejectsStrangers(t *testing.T) {
	h := newHarness(t)
	h.toBalance(t, protocol.Credit{TradeID: uuid.New(), Amount: 1})

	stranger := randomKey(t)
	strangerR := &relay{}
	require.NoError(t, h.net.Bind("stranger", stranger, strangerR))
	h.exec(t, stranger, h.balance, protocol.Credit{TradeID: uuid.New(), Amount: 100}, nil)

	b, ok := strangerR.last().(network.Bounced)
	require.True(t, ok)
	assert.ErrorIs(t, b.Reason, protocol.ErrUnauthorized)
	assert.Equal(t, uint64(1), h.keys(t))
}

func TestBalance_DebitInsufficient(t *testing.T) {
	h := newHarness(t)
	h.openMarket(t, 2)

	h.toBalance(t, protocol.Debit{TradeID: uuid.New(), Amount: 3})

	b, ok := h.coreR.last().(network.Bounced)
	require.True(t, ok)
	assert.ErrorIs(t, b.Reason, protocol.ErrInsufficientBalance)
	var ibe *protocol.InsufficientBalanceError
	require.ErrorAs(t, b.Reason, &ibe)
	assert.Equal(t, uint64(3), ibe.Requested)
	assert.Equal(t, uint64(2), ibe.Held)
	assert.Equal(t, uint64(2), h.keys(t))
}

func TestBalance_DebitBurns(t *testing.T) {
	h := newHarness(t)
	h.openMarket(t, 2)

	id := uuid.New()
	h.toBalance(t, protocol.Debit{TradeID: id, Amount: 2})

	got, ok := h.coreR.last().(protocol.BurnConfirmed)
	require.True(t, ok)
	assert.Equal(t, id, got.TradeID)
	assert.Equal(t, uint64(100+100+1), got.Price)
	assert.Zero(t, got.Supply)
	assert.Zero(t, h.keys(t))

	// a fully liquidated holder persists at zero
	stored, err := h.store.LoadHolder(context.Background(), h.balance)
	require.NoError(t, err)
	assert.Zero(t, stored.Keys)
}

func TestBalance_RestoresKeysWhenBurnBounces(t *testing.T) {
	h := newHarness(t)
	h.openMarket(t, 2)
	h.toGroups(t, protocol.GroupPause{State: true})

	id := uuid.New()
	h.toBalance(t, protocol.Debit{TradeID: id, Amount: 1})

	aborted, ok := h.coreR.last().(protocol.SellAborted)
	require.True(t, ok)
	assert.Equal(t, id, aborted.TradeID)
	assert.Equal(t, uint64(1), aborted.Amount)
	assert.ErrorIs(t, aborted.Reason, protocol.ErrPaused)
	assert.Equal(t, uint64(2), h.keys(t))
}
