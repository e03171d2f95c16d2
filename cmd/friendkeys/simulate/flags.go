package simulate

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/rovshanmuradov/friendkeys/internal/protocol"
	"github.com/rovshanmuradov/friendkeys/internal/types"
)

const (
	ConfigKey   = "config"
	WalletsKey  = "wallets"
	TradersKey  = "traders"
	RoundsKey   = "rounds"
	GroupIDKey  = "group-id"
	PowerKey    = "power"
	ConstantKey = "constant"
	BudgetKey   = "budget"
	MaxTradeKey = "max-trade"
	SeedKey     = "seed"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(WalletsKey, "", "CSV of wallets (owner, backend and traders); generated when empty")
	flags.Int(TradersKey, 4, "Number of generated traders")
	flags.Int(RoundsKey, 20, "Trading rounds; every trader acts once per round")
	flags.Uint64(GroupIDKey, 1, "Market id to create")
	flags.Uint64(PowerKey, 2, "Curve power")
	flags.Uint64(ConstantKey, 1_000_000, "Curve constant in nanoTON")
	flags.String(BudgetKey, "100", "TON funded to each trader")
	flags.Uint64(MaxTradeKey, 5, "Largest number of keys in one trade")
	flags.Uint64(SeedKey, 1, "Random seed")
}

type Config struct {
	ConfigPath string
	Wallets    string
	Traders    int
	Rounds     int
	GroupID    uint64
	Power      uint64
	Constant   uint64
	Budget     uint64
	MaxTrade   uint64
	Seed       uint64
}

func ParseFlags(flags *pflag.FlagSet) (*Config, error) {
	var (
		cfg Config
		err error
	)
	if cfg.ConfigPath, err = flags.GetString(ConfigKey); err != nil {
		return nil, err
	}
	if cfg.Wallets, err = flags.GetString(WalletsKey); err != nil {
		return nil, err
	}
	if cfg.Traders, err = flags.GetInt(TradersKey); err != nil {
		return nil, err
	}
	if cfg.Rounds, err = flags.GetInt(RoundsKey); err != nil {
		return nil, err
	}
	if cfg.GroupID, err = flags.GetUint64(GroupIDKey); err != nil {
		return nil, err
	}
	if cfg.Power, err = flags.GetUint64(PowerKey); err != nil {
		return nil, err
	}
	if cfg.Constant, err = flags.GetUint64(ConstantKey); err != nil {
		return nil, err
	}
	budget, err := flags.GetString(BudgetKey)
	if err != nil {
		return nil, err
	}
	if cfg.Budget, err = types.ParseTON(budget); err != nil {
		return nil, fmt.Errorf("--%s: %w", BudgetKey, err)
	}
	if cfg.MaxTrade, err = flags.GetUint64(MaxTradeKey); err != nil {
		return nil, err
	}
	if cfg.Seed, err = flags.GetUint64(SeedKey); err != nil {
		return nil, err
	}

	if cfg.Wallets == "" && cfg.Traders < 1 {
		return nil, fmt.Errorf("--%s must be positive", TradersKey)
	}
	if cfg.Rounds < 0 {
		return nil, fmt.Errorf("--%s must not be negative", RoundsKey)
	}
	if cfg.MaxTrade < 1 {
		return nil, fmt.Errorf("--%s must be positive", MaxTradeKey)
	}
	if cfg.Power < 1 || cfg.Power > protocol.MaxPower || cfg.Constant < 1 {
		return nil, errors.New("invalid curve parameters")
	}
	return &cfg, nil
}
