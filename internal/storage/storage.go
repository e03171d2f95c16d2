// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/friendkeys/internal/domain"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("storage: not found")

// Store persists actor state and the value ledger, keyed by actor address.
type Store interface {
	// Core
	SaveCoreState(ctx context.Context, core solana.PublicKey, state *domain.CoreState) error
	LoadCoreState(ctx context.Context, core solana.PublicKey) (*domain.CoreState, error)

	// Groups
	SaveMarket(ctx context.Context, addr solana.PublicKey, market *domain.Market) error
	LoadMarket(ctx context.Context, addr solana.PublicKey) (*domain.Market, error)

	// Balance
	SaveHolder(ctx context.Context, addr solana.PublicKey, holder *domain.HolderBalance) error
	LoadHolder(ctx context.Context, addr solana.PublicKey) (*domain.HolderBalance, error)

	// Ledger
	SaveAccounts(ctx context.Context, accounts []domain.Account) error
	LoadAccounts(ctx context.Context) ([]domain.Account, error)

	Close() error
}

func cloneCoreState(s *domain.CoreState) *domain.CoreState {
	out := &domain.CoreState{
		Config:    s.Config,
		Markets:   make(map[uint64]*domain.MarketView, len(s.Markets)),
		Unclaimed: make(map[solana.PublicKey]uint64, len(s.Unclaimed)),
		GasPool:   s.GasPool,
	}
	for id, m := range s.Markets {
		cp := *m
		out.Markets[id] = &cp
	}
	for addr, v := range s.Unclaimed {
		out.Unclaimed[addr] = v
	}
	return out
}
