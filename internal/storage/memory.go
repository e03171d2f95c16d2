// internal/storage/memory.go
package storage

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/friendkeys/internal/domain"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	cores    map[solana.PublicKey]*domain.CoreState
	markets  map[solana.PublicKey]domain.Market
	holders  map[solana.PublicKey]domain.HolderBalance
	accounts map[solana.PublicKey]uint64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cores:    make(map[solana.PublicKey]*domain.CoreState),
		markets:  make(map[solana.PublicKey]domain.Market),
		holders:  make(map[solana.PublicKey]domain.HolderBalance),
		accounts: make(map[solana.PublicKey]uint64),
	}
}

func (s *MemoryStore) SaveCoreState(_ context.Context, core solana.PublicKey, state *domain.CoreState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cores[core] = cloneCoreState(state)
	return nil
}

func (s *MemoryStore) LoadCoreState(_ context.Context, core solana.PublicKey) (*domain.CoreState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.cores[core]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCoreState(st), nil
}

func (s *MemoryStore) SaveMarket(_ context.Context, addr solana.PublicKey, market *domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[addr] = *market
	return nil
}

func (s *MemoryStore) LoadMarket(_ context.Context, addr solana.PublicKey) (*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) SaveHolder(_ context.Context, addr solana.PublicKey, holder *domain.HolderBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders[addr] = *holder
	return nil
}

func (s *MemoryStore) LoadHolder(_ context.Context, addr solana.PublicKey) (*domain.HolderBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holders[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return &h, nil
}

func (s *MemoryStore) SaveAccounts(_ context.Context, accounts []domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		s.accounts[a.Address] = a.Balance
	}
	return nil
}

func (s *MemoryStore) LoadAccounts(context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for addr, bal := range s.accounts {
		out = append(out, domain.Account{Address: addr, Balance: bal})
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
