// internal/node/node.go
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/friendkeys/internal/balance"
	"github.com/rovshanmuradov/friendkeys/internal/config"
	"github.com/rovshanmuradov/friendkeys/internal/core"
	"github.com/rovshanmuradov/friendkeys/internal/domain"
	"github.com/rovshanmuradov/friendkeys/internal/events"
	"github.com/rovshanmuradov/friendkeys/internal/groups"
	"github.com/rovshanmuradov/friendkeys/internal/network"
	"github.com/rovshanmuradov/friendkeys/internal/protocol"
	"github.com/rovshanmuradov/friendkeys/internal/settlement"
	"github.com/rovshanmuradov/friendkeys/internal/storage"
	"github.com/rovshanmuradov/friendkeys/internal/utils/metrics"
)

var ErrNotStarted = errors.New("node: not started")

// Node wires the four actors, their storage, the event bus and metrics onto
// one network.
type Node struct {
	logger     *zap.Logger
	cfg        *config.Config
	clock      func() time.Time
	store      storage.Store
	bus        *events.Bus
	metrics    *metrics.Collector
	net        *network.Network
	core       *core.Core
	settlement solana.PublicKey
	shutdown   *shutdownHandler

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

type options struct {
	clock      func() time.Time
	registerer prometheus.Registerer
	store      storage.Store
}

// Option configures a Node.
type Option func(*options)

// WithClock replaces the wall clock used for authorization expiry and records.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithRegisterer registers metrics with reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithStore uses s instead of opening the configured store. The caller keeps
// ownership of s.
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// New assembles a node. owner is used when core.owner is not configured.
// A fresh Core starts with its derived Settlement registered.
func New(ctx context.Context, logger *zap.Logger, cfg *config.Config, owner solana.PublicKey, opts ...Option) (*Node, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		loaded, err := config.LoadConfig("")
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	n := &Node{
		logger:   logger.Named("node"),
		cfg:      cfg,
		clock:    o.clock,
		shutdown: newShutdownHandler(logger.Named("shutdown")),
	}

	store := o.store
	if store == nil {
		var err error
		if store, err = openStore(cfg.Store); err != nil {
			return nil, err
		}
		n.shutdown.AddFunc("store", store.Close)
	}
	n.store = store

	n.bus = events.NewBus(logger, cfg.Events.BufferSize)
	n.shutdown.AddFunc("event_bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return n.bus.Shutdown(ctx)
	})

	netOpts := []network.Option{
		network.WithAccountStore(store),
		network.WithClock(o.clock),
		network.WithTxLogSize(cfg.Network.TxLogSize),
	}
	coreOpts := []core.Option{core.WithStore(store), core.WithPublisher(n.bus)}
	if cfg.Metrics.Enabled {
		collector, err := metrics.NewCollector(o.registerer)
		if err != nil {
			n.abort()
			return nil, fmt.Errorf("create metrics: %w", err)
		}
		n.metrics = collector
		netOpts = append(netOpts, network.WithRecorder(collector))
		coreOpts = append(coreOpts, core.WithTradeRecorder(collector))
	}

	n.net = network.New(logger, netOpts...)
	if err := n.net.RestoreLedger(ctx); err != nil {
		n.abort()
		return nil, err
	}
	n.net.RegisterFactory(protocol.KindGroups, groups.Factory(logger, store))
	n.net.RegisterFactory(protocol.KindBalance, balance.Factory(logger, store))
	n.net.RegisterFactory(protocol.KindSettlement, settlement.Factory(logger))

	genesis, err := cfg.Genesis(owner)
	if err != nil {
		n.abort()
		return nil, err
	}
	coreAddr, err := protocol.CoreAddress(genesis.Owner)
	if err != nil {
		n.abort()
		return nil, err
	}
	if n.settlement, err = protocol.SettlementAddress(coreAddr); err != nil {
		n.abort()
		return nil, err
	}
	if genesis.SettlementAddress.IsZero() {
		genesis.SettlementAddress = n.settlement
	}

	if n.core, err = core.New(ctx, logger, genesis, coreOpts...); err != nil {
		n.abort()
		return nil, err
	}
	if err := n.net.Bind(protocol.KindCore, n.core.Address(), n.core); err != nil {
		n.abort()
		return nil, err
	}
	if _, _, err := n.net.Spawn(network.Init{
		Kind:   protocol.KindSettlement,
		Params: protocol.SettlementParams{Core: n.core.Address()},
	}); err != nil {
		n.abort()
		return nil, err
	}
	n.shutdown.AddFunc("network", n.stop)

	n.logger.Info("Node assembled",
		zap.Stringer("core", n.core.Address()),
		zap.Stringer("settlement", n.settlement),
		zap.Stringer("owner", genesis.Owner),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("metrics", n.metrics != nil))
	return n, nil
}

func openStore(cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverBolt:
		return storage.OpenBoltStore(cfg.Path)
	case config.DriverMemory, "":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// abort releases what New opened before failing.
func (n *Node) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = n.shutdown.Shutdown(ctx)
}

// Start runs the network until Close or until ctx is cancelled.
func (n *Node) Start(ctx context.Context) error {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if n.cancel != nil {
		return network.ErrRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- n.net.Run(runCtx)
	}()
	n.cancel, n.done = cancel, done
	return nil
}

func (n *Node) stop() error {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if n.cancel == nil {
		return nil
	}
	n.cancel()
	err := <-n.done
	n.cancel, n.done = nil, nil
	return err
}

// Close waits for in-flight messages until ctx is done, then stops the
// network, drains the event bus and closes the store.
func (n *Node) Close(ctx context.Context) error {
	n.runMu.Lock()
	running := n.cancel != nil
	n.runMu.Unlock()
	if running {
		if err := n.net.WaitIdle(ctx); err != nil {
			n.logger.Warn("Closing with messages in flight",
				zap.Int64("pending", n.net.Pending()),
				zap.Error(err))
		}
	}
	return n.shutdown.Shutdown(ctx)
}

// Fund credits amount to a wallet.
func (n *Node) Fund(addr solana.PublicKey, amount uint64) { n.net.Fund(addr, amount) }

// Reject makes the wallet at addr refuse incoming transfers.
func (n *Node) Reject(addr solana.PublicKey, state bool) { n.net.Reject(addr, state) }

// Send submits msg from the wallet from to Core.
func (n *Node) Send(ctx context.Context, from solana.PublicKey, value uint64, msg network.Message) (uuid.UUID, error) {
	return n.net.Send(ctx, from, n.core.Address(), value, msg)
}

// SendTo submits msg from the wallet from to any address.
func (n *Node) SendTo(ctx context.Context, from, to solana.PublicKey, value uint64, msg network.Message) (uuid.UUID, error) {
	return n.net.Send(ctx, from, to, value, msg)
}

// WaitIdle blocks until every queued message has been processed.
func (n *Node) WaitIdle(ctx context.Context) error {
	n.runMu.Lock()
	running := n.cancel != nil
	n.runMu.Unlock()
	if !running && n.net.Pending() > 0 {
		return ErrNotStarted
	}
	return n.net.WaitIdle(ctx)
}

func (n *Node) Core() *core.Core                       { return n.core }
func (n *Node) CoreAddress() solana.PublicKey          { return n.core.Address() }
func (n *Node) SettlementAddress() solana.PublicKey    { return n.settlement }
func (n *Node) Bus() *events.Bus                       { return n.bus }
func (n *Node) Metrics() *metrics.Collector            { return n.metrics }
func (n *Node) BalanceOf(addr solana.PublicKey) uint64 { return n.net.BalanceOf(addr) }
func (n *Node) Transactions() []network.Transaction    { return n.net.Transactions() }

// Market returns the state held by the Groups actor of groupID.
func (n *Node) Market(ctx context.Context, groupID uint64) (domain.Market, error) {
	view, ok := n.core.Market(groupID)
	if !ok {
		return domain.Market{}, fmt.Errorf("%w: %d", protocol.ErrUnknownMarket, groupID)
	}
	if a, ok := n.net.Lookup(view.Groups); ok {
		if g, ok := a.(*groups.Groups); ok {
			return g.Market(), nil
		}
	}
	m, err := n.store.LoadMarket(ctx, view.Groups)
	if err != nil {
		return domain.Market{}, fmt.Errorf("load market %d: %w", groupID, err)
	}
	return *m, nil
}

// Holder returns the keys holder owns in market groupID.
func (n *Node) Holder(ctx context.Context, groupID uint64, holder solana.PublicKey) (uint64, error) {
	view, ok := n.core.Market(groupID)
	if !ok {
		return 0, fmt.Errorf("%w: %d", protocol.ErrUnknownMarket, groupID)
	}
	addr, err := protocol.BalanceAddress(n.core.Address(), view.Groups, holder)
	if err != nil {
		return 0, err
	}
	if a, ok := n.net.Lookup(addr); ok {
		if b, ok := a.(*balance.Balance); ok {
			return b.Keys(), nil
		}
	}
	h, err := n.store.LoadHolder(ctx, addr)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("load holder: %w", err)
	}
	return h.Keys, nil
}
