// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/friendkeys/internal/domain"
	"github.com/rovshanmuradov/friendkeys/internal/types"
	"github.com/rovshanmuradov/friendkeys/internal/utils/logger"
)

// EnvPrefix prefixes every environment override, e.g. FRIENDKEYS_STORE_DRIVER.
const EnvPrefix = "FRIENDKEYS"

const (
	DriverMemory = "memory"
	DriverBolt   = "bolt"
)

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	Network NetworkConfig `mapstructure:"network"`
	Events  EventsConfig  `mapstructure:"events"`
	Core    CoreConfig    `mapstructure:"core"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type LogConfig struct {
	File        string `mapstructure:"file"`
	Development bool   `mapstructure:"development"`
	Console     bool   `mapstructure:"console"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxAge      int    `mapstructure:"max_age"`
	MaxBackups  int    `mapstructure:"max_backups"`
	Compress    bool   `mapstructure:"compress"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type NetworkConfig struct {
	// TxLogSize caps the in-memory transaction log; 0 keeps everything.
	TxLogSize int `mapstructure:"tx_log_size"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

// CoreConfig holds the genesis values of Core's configuration aggregate.
// Gas budgets are nanoTON.
type CoreConfig struct {
	Owner               string `mapstructure:"owner"`
	PlatformAddress     string `mapstructure:"platform_address"`
	PlatformFee         uint64 `mapstructure:"platform_fee"`
	GroupFee            uint64 `mapstructure:"group_fee"`
	ReferralFee         uint64 `mapstructure:"referral_fee"`
	GasConsumption      uint64 `mapstructure:"gas_consumption"`
	LogicGasConsumption uint64 `mapstructure:"logic_gas_consumption"`
	RefGasConsumption   uint64 `mapstructure:"ref_gas_consumption"`
	MaxKeys             uint64 `mapstructure:"max_keys"`
	GlobalPause         bool   `mapstructure:"global_pause"`
}

type AuthConfig struct {
	// PublicKey is the base58 ed25519 key that signs market creations.
	PublicKey string `mapstructure:"public_key"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

const (
	DefaultLogFile             = "logs/friendkeys.log"
	DefaultStorePath           = "data/friendkeys.db"
	DefaultTxLogSize           = 10000
	DefaultEventBuffer         = 256
	DefaultPlatformFee         = 5
	DefaultGroupFee            = 5
	DefaultReferralFee         = 2
	DefaultGasConsumption      = types.TON / 20
	DefaultLogicGasConsumption = types.TON / 10
	DefaultRefGasConsumption   = types.TON / 20
	DefaultMaxKeys             = 1000
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"log.file":                   DefaultLogFile,
		"log.development":            false,
		"log.console":                true,
		"log.max_size":               100,
		"log.max_age":                7,
		"log.max_backups":            3,
		"log.compress":               true,
		"store.driver":               DriverMemory,
		"store.path":                 DefaultStorePath,
		"network.tx_log_size":        DefaultTxLogSize,
		"events.buffer_size":         DefaultEventBuffer,
		"core.owner":                 "",
		"core.platform_address":      "",
		"core.platform_fee":          DefaultPlatformFee,
		"core.group_fee":             DefaultGroupFee,
		"core.referral_fee":          DefaultReferralFee,
		"core.gas_consumption":       DefaultGasConsumption,
		"core.logic_gas_consumption": DefaultLogicGasConsumption,
		"core.ref_gas_consumption":   DefaultRefGasConsumption,
		"core.max_keys":              DefaultMaxKeys,
		"core.global_pause":          false,
		"auth.public_key":            "",
		"metrics.enabled":            false,
	}
}

// LoadConfig reads path (any format viper understands) on top of the defaults
// and applies FRIENDKEYS_* environment overrides. An empty path loads defaults
// and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	switch cfg.Store.Driver {
	case DriverMemory:
	case DriverBolt:
		if cfg.Store.Path == "" {
			return errors.New("store.path is required for the bolt driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", cfg.Store.Driver)
	}
	if cfg.Network.TxLogSize < 0 {
		return errors.New("invalid network.tx_log_size")
	}
	if cfg.Events.BufferSize <= 0 {
		return errors.New("invalid events.buffer_size")
	}
	if err := validateCore(&cfg.Core); err != nil {
		return err
	}
	if cfg.Auth.PublicKey != "" {
		if _, err := decodeKey(cfg.Auth.PublicKey); err != nil {
			return fmt.Errorf("auth.public_key: %w", err)
		}
	}
	return nil
}

func validateCore(c *CoreConfig) error {
	for name, fee := range map[string]uint64{
		"core.platform_fee": c.PlatformFee,
		"core.group_fee":    c.GroupFee,
		"core.referral_fee": c.ReferralFee,
	} {
		if fee > 100 {
			return fmt.Errorf("%s must be at most 100, got %d", name, fee)
		}
	}
	if c.MaxKeys == 0 {
		return errors.New("invalid core.max_keys")
	}
	if c.Owner != "" {
		if _, err := decodeKey(c.Owner); err != nil {
			return fmt.Errorf("core.owner: %w", err)
		}
	}
	if c.PlatformAddress != "" {
		if _, err := decodeKey(c.PlatformAddress); err != nil {
			return fmt.Errorf("core.platform_address: %w", err)
		}
	}
	return nil
}

func decodeKey(s string) (solana.PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("decode base58: %w", err)
	}
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("invalid key length: expected %d bytes, got %d", solana.PublicKeyLength, len(raw))
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// Logger converts the log section for the logger package.
func (c *Config) Logger() *logger.Config {
	return &logger.Config{
		LogFile:     c.Log.File,
		MaxSize:     c.Log.MaxSize,
		MaxAge:      c.Log.MaxAge,
		MaxBackups:  c.Log.MaxBackups,
		Compress:    c.Log.Compress,
		Development: c.Log.Development,
		Console:     c.Log.Console,
	}
}

// AuthorizedKey returns the decoded auth.public_key, zero when unset.
func (c *Config) AuthorizedKey() solana.PublicKey {
	if c.Auth.PublicKey == "" {
		return solana.PublicKey{}
	}
	key, _ := decodeKey(c.Auth.PublicKey)
	return key
}

// Genesis builds Core's initial configuration. fallbackOwner is used when
// core.owner is not configured. The settlement address is left unset.
func (c *Config) Genesis(fallbackOwner solana.PublicKey) (domain.CoreConfig, error) {
	owner := fallbackOwner
	if c.Core.Owner != "" {
		key, err := decodeKey(c.Core.Owner)
		if err != nil {
			return domain.CoreConfig{}, fmt.Errorf("core.owner: %w", err)
		}
		owner = key
	}
	if owner.IsZero() {
		return domain.CoreConfig{}, errors.New("core.owner is not configured")
	}
	platform := owner
	if c.Core.PlatformAddress != "" {
		key, err := decodeKey(c.Core.PlatformAddress)
		if err != nil {
			return domain.CoreConfig{}, fmt.Errorf("core.platform_address: %w", err)
		}
		platform = key
	}
	return domain.CoreConfig{
		Owner:               owner,
		PlatformFee:         c.Core.PlatformFee,
		GroupFee:            c.Core.GroupFee,
		ReferralFee:         c.Core.ReferralFee,
		GasConsumption:      c.Core.GasConsumption,
		LogicGasConsumption: c.Core.LogicGasConsumption,
		RefGasConsumption:   c.Core.RefGasConsumption,
		MaxKeys:             c.Core.MaxKeys,
		GlobalPause:         c.Core.GlobalPause,
		PlatformAddress:     platform,
		AuthorizedKey:       c.AuthorizedKey(),
	}, nil
}
