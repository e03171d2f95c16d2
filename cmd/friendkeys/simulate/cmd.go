package simulate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/friendkeys/internal/config"
	"github.com/rovshanmuradov/friendkeys/internal/events"
	"github.com/rovshanmuradov/friendkeys/internal/network"
	"github.com/rovshanmuradov/friendkeys/internal/node"
	"github.com/rovshanmuradov/friendkeys/internal/types"
	"github.com/rovshanmuradov/friendkeys/internal/utils/logger"
	"github.com/rovshanmuradov/friendkeys/internal/wallet"
)

const (
	ownerWallet   = "owner"
	backendWallet = "backend"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "simulate",
		Short: "Runs a market with random traders and checks the ledger",
		RunE:  simulateFunc,
	}
	AddFlags(c.Flags())
	return c
}

func simulateFunc(c *cobra.Command, _ []string) error {
	flags, err := ParseFlags(c.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(flags.ConfigPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logger())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer log.TrackPerformance("simulate")()

	owner, backend, traders, err := loadWallets(flags)
	if err != nil {
		return err
	}
	if cfg.Auth.PublicKey == "" {
		cfg.Auth.PublicKey = backend.PublicKey.String()
	} else if !cfg.AuthorizedKey().Equals(backend.PublicKey) {
		return errors.New("auth.public_key does not belong to the backend wallet")
	}

	ctx := c.Context()
	n, err := node.New(ctx, log.Logger, cfg, owner.PublicKey)
	if err != nil {
		return err
	}
	if err := n.Start(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := n.Close(closeCtx); err != nil {
			log.Error("Node shutdown failed", zap.Error(err))
		}
	}()

	s := &simulation{
		node:    n,
		log:     log.WithOperation("simulate"),
		flags:   flags,
		backend: backend,
		owner:   owner.PublicKey,
		rng:     rand.New(rand.NewPCG(flags.Seed, flags.Seed^0x9e3779b97f4a7c15)),
	}
	for _, w := range traders {
		s.traders = append(s.traders, w.PublicKey)
	}
	if err := s.run(ctx); err != nil {
		return err
	}
	return s.report(ctx, c.OutOrStdout())
}

func loadWallets(flags *Config) (owner, backend *wallet.Wallet, traders []*wallet.Wallet, err error) {
	if flags.Wallets == "" {
		if owner, err = wallet.Generate(ownerWallet); err != nil {
			return nil, nil, nil, err
		}
		if backend, err = wallet.Generate(backendWallet); err != nil {
			return nil, nil, nil, err
		}
		for i := 0; i < flags.Traders; i++ {
			w, err := wallet.Generate(fmt.Sprintf("trader-%d", i+1))
			if err != nil {
				return nil, nil, nil, err
			}
			traders = append(traders, w)
		}
		return owner, backend, traders, nil
	}

	all, err := wallet.LoadWallets(flags.Wallets)
	if err != nil {
		return nil, nil, nil, err
	}
	owner, backend = all[ownerWallet], all[backendWallet]
	if owner == nil || backend == nil {
		return nil, nil, nil, fmt.Errorf("%s must contain %q and %q wallets", flags.Wallets, ownerWallet, backendWallet)
	}
	names := make([]string, 0, len(all))
	for name := range all {
		if name != ownerWallet && name != backendWallet {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, nil, nil, fmt.Errorf("%s has no trader wallets", flags.Wallets)
	}
	sort.Strings(names)
	for _, name := range names {
		traders = append(traders, all[name])
	}
	return owner, backend, traders, nil
}

type simulation struct {
	node    *node.Node
	log     *zap.Logger
	flags   *Config
	backend *wallet.Wallet
	owner   solana.PublicKey
	traders []solana.PublicKey
	rng     *rand.Rand
}

func (s *simulation) run(ctx context.Context) error {
	s.node.Fund(s.owner, 10*types.TON)
	create, err := s.node.CreateRequest(s.backend, s.owner, s.flags.GroupID, s.flags.Power, s.flags.Constant, solana.PublicKey{}, time.Hour)
	if err != nil {
		return err
	}
	if err := s.submit(ctx, s.owner, types.TON, create); err != nil {
		return err
	}
	if err := s.node.WaitIdle(ctx); err != nil {
		return err
	}
	if _, ok := s.node.Core().Market(s.flags.GroupID); !ok {
		return fmt.Errorf("market %d was not created", s.flags.GroupID)
	}

	for _, t := range s.traders {
		s.node.Fund(t, s.flags.Budget)
	}
	for round := 0; round < s.flags.Rounds; round++ {
		for _, t := range s.traders {
			if err := s.act(ctx, t); err != nil {
				return err
			}
		}
		if err := s.node.WaitIdle(ctx); err != nil {
			return err
		}
		s.log.Debug("Round finished", zap.Int("round", round+1))
	}
	return s.node.CheckLedger(ctx)
}

// act submits one random trade for trader. Quotes are taken at the start of
// the round, so later buys in a crowded round may be refunded.
func (s *simulation) act(ctx context.Context, trader solana.PublicKey) error {
	held, err := s.node.Holder(ctx, s.flags.GroupID, trader)
	if err != nil {
		return err
	}
	keys := 1 + s.rng.Uint64N(s.flags.MaxTrade)
	if held > 0 && s.rng.IntN(2) == 0 {
		msg, value := s.node.SellRequest(s.flags.GroupID, min(keys, held), solana.PublicKey{})
		return s.submit(ctx, trader, value, msg)
	}
	msg, value, err := s.node.BuyRequest(s.flags.GroupID, keys, solana.PublicKey{})
	if err != nil {
		return err
	}
	if s.node.BalanceOf(trader) < value {
		return nil
	}
	return s.submit(ctx, trader, value, msg)
}

func (s *simulation) submit(ctx context.Context, from solana.PublicKey, value uint64, msg network.Message) error {
	if _, err := s.node.Send(ctx, from, value, msg); err != nil {
		return fmt.Errorf("submit %s: %w", msg.Kind(), err)
	}
	return nil
}

func (s *simulation) report(ctx context.Context, out io.Writer) error {
	market, err := s.node.Market(ctx, s.flags.GroupID)
	if err != nil {
		return err
	}
	view, _ := s.node.Core().Market(s.flags.GroupID)
	stats := s.node.Bus().Stats()

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "market\t%d\n", market.ID)
	fmt.Fprintf(w, "supply\t%d\n", market.Supply)
	fmt.Fprintf(w, "reserve\t%s TON\n", types.FormatTON(view.Reserve))
	fmt.Fprintf(w, "gas pool\t%s TON\n", types.FormatTON(s.node.Core().GasPool()))
	fmt.Fprintf(w, "unclaimed\t%s TON\n", types.FormatTON(s.node.Core().TotalUnclaimed()))
	fmt.Fprintf(w, "trades completed\t%d\n", stats.Published[events.TradeCompleted])
	fmt.Fprintf(w, "trades refunded\t%d\n", stats.Published[events.TradeRefunded])
	fmt.Fprintf(w, "trades failed\t%d\n", stats.Published[events.TradeFailed])
	fmt.Fprintln(w, "\ntrader\tkeys\tbalance")
	for _, t := range s.traders {
		held, err := s.node.Holder(ctx, s.flags.GroupID, t)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%s TON\n", t, held, types.FormatTON(s.node.BalanceOf(t)))
	}
	return w.Flush()
}
