// internal/network/network.go
package network

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/friendkeys/internal/domain"
)

// Network delivers envelopes between actors and external wallets and keeps
// the value ledger. Every actor owns a FIFO mailbox served by one goroutine,
// so envelopes from one sender to one destination keep their order.
type Network struct {
	logger   *zap.Logger
	recorder Recorder
	accounts AccountStore
	clock    func() time.Time

	mu        sync.RWMutex
	hosts     map[solana.PublicKey]*host
	factories map[string]Factory
	rejecting map[solana.PublicKey]bool

	ledgerMu sync.Mutex
	ledger   map[solana.PublicKey]uint64
	dirty    map[solana.PublicKey]struct{}
	minted   uint64

	txMu    sync.Mutex
	txs     []Transaction
	txLimit int

	pending atomic.Int64

	runMu sync.Mutex
	group *errgroup.Group
	gctx  context.Context
}

// Option configures a Network.
type Option func(*Network)

func WithRecorder(r Recorder) Option {
	return func(n *Network) {
		if r != nil {
			n.recorder = r
		}
	}
}

func WithAccountStore(s AccountStore) Option {
	return func(n *Network) { n.accounts = s }
}

func WithClock(clock func() time.Time) Option {
	return func(n *Network) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithTxLogSize caps the transaction log; 0 keeps every transaction.
func WithTxLogSize(size int) Option {
	return func(n *Network) { n.txLimit = size }
}

// New creates an idle network. Call Run to start processing.
func New(logger *zap.Logger, opts ...Option) *Network {
	n := &Network{
		logger:    logger.Named("network"),
		recorder:  nopRecorder{},
		clock:     time.Now,
		hosts:     make(map[solana.PublicKey]*host),
		factories: make(map[string]Factory),
		rejecting: make(map[solana.PublicKey]bool),
		ledger:    make(map[solana.PublicKey]uint64),
		dirty:     make(map[solana.PublicKey]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// RestoreLedger loads persisted account balances. Restored value counts as minted.
func (n *Network) RestoreLedger(ctx context.Context) error {
	if n.accounts == nil {
		return nil
	}
	accounts, err := n.accounts.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	n.ledgerMu.Lock()
	defer n.ledgerMu.Unlock()
	for _, a := range accounts {
		n.ledger[a.Address] = a.Balance
		n.minted += a.Balance
	}
	n.logger.Info("Ledger restored", zap.Int("accounts", len(accounts)))
	return nil
}

// RegisterFactory installs the constructor used for envelopes carrying an Init of kind.
func (n *Network) RegisterFactory(kind string, f Factory) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.factories[kind] = f
}

// Bind attaches actor to addr directly.
func (n *Network) Bind(kind string, addr solana.PublicKey, actor Actor) error {
	n.mu.Lock()
	if _, ok := n.hosts[addr]; ok {
		n.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}
	h := newHost(kind, addr, actor)
	n.hosts[addr] = h
	n.mu.Unlock()

	n.logger.Debug("Actor bound", zap.String("kind", kind), zap.Stringer("address", addr))
	n.startHost(h)
	return nil
}

// Spawn returns the actor described by init, creating it if needed.
func (n *Network) Spawn(init Init) (solana.PublicKey, Actor, error) {
	return n.spawn(init, nil)
}

func (n *Network) spawn(init Init, want *solana.PublicKey) (solana.PublicKey, Actor, error) {
	n.mu.RLock()
	f, ok := n.factories[init.Kind]
	n.mu.RUnlock()
	if !ok {
		return solana.PublicKey{}, nil, fmt.Errorf("%w: %s", ErrUnknownKind, init.Kind)
	}
	addr, actor, err := f(init)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("spawn %s: %w", init.Kind, err)
	}
	if want != nil && !addr.Equals(*want) {
		return solana.PublicKey{}, nil, fmt.Errorf("%w: derived %s, addressed %s", ErrAddressMismatch, addr, *want)
	}

	n.mu.Lock()
	if h, ok := n.hosts[addr]; ok {
		n.mu.Unlock()
		return addr, h.actor, nil
	}
	h := newHost(init.Kind, addr, actor)
	n.hosts[addr] = h
	n.mu.Unlock()

	n.logger.Debug("Actor spawned", zap.String("kind", init.Kind), zap.Stringer("address", addr))
	n.startHost(h)
	return addr, actor, nil
}

// Lookup returns the actor bound to addr.
func (n *Network) Lookup(addr solana.PublicKey) (Actor, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.hosts[addr]
	if !ok {
		return nil, false
	}
	return h.actor, true
}

// Reject makes the wallet at addr refuse (state=true) or accept incoming transfers.
func (n *Network) Reject(addr solana.PublicKey, state bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if state {
		n.rejecting[addr] = true
		return
	}
	delete(n.rejecting, addr)
}

// Fund credits amount to addr out of thin air. It is the only way value enters the ledger.
func (n *Network) Fund(addr solana.PublicKey, amount uint64) {
	n.ledgerMu.Lock()
	n.ledger[addr] += amount
	n.minted += amount
	n.dirty[addr] = struct{}{}
	n.ledgerMu.Unlock()
	n.flush(context.Background())
}

// BalanceOf returns the ledger balance of addr.
func (n *Network) BalanceOf(addr solana.PublicKey) uint64 {
	n.ledgerMu.Lock()
	defer n.ledgerMu.Unlock()
	return n.ledger[addr]
}

// TotalSupply sums every ledger balance. Value attached to envelopes still in
// a mailbox is not counted, so the total equals Minted only when idle.
func (n *Network) TotalSupply() uint64 {
	n.ledgerMu.Lock()
	defer n.ledgerMu.Unlock()
	var total uint64
	for _, v := range n.ledger {
		total += v
	}
	return total
}

// Minted returns the total value ever funded.
func (n *Network) Minted() uint64 {
	n.ledgerMu.Lock()
	defer n.ledgerMu.Unlock()
	return n.minted
}

// Send submits a message from an external wallet. The value is debited immediately.
func (n *Network) Send(ctx context.Context, from, to solana.PublicKey, value uint64, body Message) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	if _, ok := n.Lookup(from); ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrNotWallet, from)
	}
	if _, ok := body.(Bounced); ok {
		return uuid.Nil, ErrForgedBounce
	}

	n.ledgerMu.Lock()
	if n.ledger[from] < value {
		have := n.ledger[from]
		n.ledgerMu.Unlock()
		return uuid.Nil, fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, have, value)
	}
	n.ledger[from] -= value
	n.dirty[from] = struct{}{}
	n.ledgerMu.Unlock()

	env := &Envelope{
		ID:     uuid.New(),
		From:   from,
		To:     to,
		Value:  value,
		Body:   body,
		Bounce: true,
	}
	n.enqueue(env)
	return env.ID, nil
}

// Pending returns the number of envelopes queued or being processed.
func (n *Network) Pending() int64 {
	return n.pending.Load()
}

// WaitIdle blocks until no envelope is queued or being processed.
func (n *Network) WaitIdle(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 50 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if p := n.pending.Load(); p > 0 {
			return struct{}{}, fmt.Errorf("%d envelopes in flight", p)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(0))
	return err
}

// Transactions returns a copy of the transaction log.
func (n *Network) Transactions() []Transaction {
	n.txMu.Lock()
	defer n.txMu.Unlock()
	out := make([]Transaction, len(n.txs))
	copy(out, n.txs)
	return out
}

// Run processes mailboxes until ctx is cancelled or an actor host fails.
func (n *Network) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	n.runMu.Lock()
	if n.group != nil {
		n.runMu.Unlock()
		return ErrRunning
	}
	n.group, n.gctx = g, gctx
	// keeps the group alive so hosts bound later can still join it
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	n.mu.RLock()
	for _, h := range n.hosts {
		n.goHostLocked(h)
	}
	n.mu.RUnlock()
	n.runMu.Unlock()

	n.logger.Info("Network started")
	err := g.Wait()

	n.runMu.Lock()
	n.group, n.gctx = nil, nil
	n.mu.RLock()
	for _, h := range n.hosts {
		h.started = false
	}
	n.mu.RUnlock()
	n.runMu.Unlock()

	n.logger.Info("Network stopped", zap.Int64("pending", n.pending.Load()))
	return err
}

func (n *Network) startHost(h *host) {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	n.goHostLocked(h)
}

// goHostLocked requires runMu.
func (n *Network) goHostLocked(h *host) {
	if n.group == nil || h.started {
		return
	}
	h.started = true
	ctx := n.gctx
	n.group.Go(func() error {
		return h.run(ctx, n)
	})
}

func (n *Network) enqueue(env *Envelope) {
	n.pending.Add(1)

	n.mu.RLock()
	h := n.hosts[env.To]
	n.mu.RUnlock()

	if h == nil && env.Init != nil {
		if _, _, err := n.spawn(*env.Init, &env.To); err != nil {
			n.logger.Warn("Cannot instantiate destination",
				zap.Stringer("to", env.To),
				zap.String("kind", env.Body.Kind()),
				zap.Error(err))
			n.fail(env, err)
			n.pending.Add(-1)
			return
		}
		n.mu.RLock()
		h = n.hosts[env.To]
		n.mu.RUnlock()
	}

	if h == nil {
		n.deliverToWallet(env)
		n.pending.Add(-1)
		return
	}

	depth := h.push(env)
	n.recorder.SetMailboxDepth(h.kind, depth)
}

func (n *Network) deliverToWallet(env *Envelope) {
	n.mu.RLock()
	rejected := n.rejecting[env.To]
	n.mu.RUnlock()

	if rejected {
		n.fail(env, ErrRejected)
		return
	}

	n.credit(env.To, env.Value)
	n.record(env, true, nil)
	n.flush(context.Background())
}

// fail records a failed delivery and returns the value to the sender.
// Bounces never bounce again; their value stays with the destination.
func (n *Network) fail(env *Envelope, reason error) {
	n.record(env, false, reason)
	if !env.Bounce || env.isBounce() {
		n.credit(env.To, env.Value)
		n.flush(context.Background())
		return
	}
	n.enqueue(&Envelope{
		ID:    uuid.New(),
		From:  env.To,
		To:    env.From,
		Value: env.Value,
		Body:  Bounced{Original: env.Body, Reason: reason},
	})
}

func (n *Network) process(ctx context.Context, h *host, env *Envelope) {
	defer n.pending.Add(-1)

	start := time.Now()
	c := &Context{
		ctx:       ctx,
		env:       env,
		self:      h.addr,
		available: n.BalanceOf(h.addr) + env.Value,
		now:       n.clock(),
	}

	err := h.receive(c, env.Body)
	n.recorder.ObserveMessage(h.kind, env.Body.Kind(), err == nil, time.Since(start))

	if err != nil {
		n.logger.Debug("Handler failed",
			zap.String("actor", h.kind),
			zap.String("kind", env.Body.Kind()),
			zap.Stringer("from", env.From),
			zap.Error(err))
		n.fail(env, err)
		return
	}

	n.ledgerMu.Lock()
	n.ledger[h.addr] = n.ledger[h.addr] + env.Value - c.spent
	n.dirty[h.addr] = struct{}{}
	n.ledgerMu.Unlock()
	n.record(env, true, nil)

	for _, out := range c.outbox {
		n.enqueue(out)
	}
	n.flush(ctx)
}

func (n *Network) credit(addr solana.PublicKey, value uint64) {
	if value == 0 {
		return
	}
	n.ledgerMu.Lock()
	n.ledger[addr] += value
	n.dirty[addr] = struct{}{}
	n.ledgerMu.Unlock()
}

func (n *Network) flush(ctx context.Context) {
	if n.accounts == nil {
		return
	}
	n.ledgerMu.Lock()
	if len(n.dirty) == 0 {
		n.ledgerMu.Unlock()
		return
	}
	batch := make([]domain.Account, 0, len(n.dirty))
	for addr := range n.dirty {
		batch = append(batch, domain.Account{Address: addr, Balance: n.ledger[addr]})
	}
	n.dirty = make(map[solana.PublicKey]struct{})
	n.ledgerMu.Unlock()

	if err := n.accounts.SaveAccounts(ctx, batch); err != nil {
		n.logger.Error("Failed to persist accounts", zap.Int("accounts", len(batch)), zap.Error(err))
	}
}

func (n *Network) record(env *Envelope, success bool, err error) {
	tx := Transaction{
		ID:      env.ID,
		From:    env.From,
		To:      env.To,
		Value:   env.Value,
		Kind:    env.Body.Kind(),
		Success: success,
		Bounced: env.isBounce(),
		Err:     err,
		At:      n.clock(),
	}
	n.txMu.Lock()
	n.txs = append(n.txs, tx)
	if n.txLimit > 0 && len(n.txs) > n.txLimit {
		n.txs = n.txs[len(n.txs)-n.txLimit:]
	}
	n.txMu.Unlock()
}
