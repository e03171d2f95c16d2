// internal/storage/bolt.go
package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"go.etcd.io/bbolt"

	"github.com/rovshanmuradov/friendkeys/internal/domain"
)

var (
	bucketCore     = []byte("core")
	bucketMarkets  = []byte("markets")
	bucketHolders  = []byte("holders")
	bucketAccounts = []byte("accounts")
)

// BoltStore persists state in a single bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the database at path, creating parent directories.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("storage: create directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketCore, bucketMarkets, bucketHolders, bucketAccounts} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) SaveCoreState(_ context.Context, core solana.PublicKey, state *domain.CoreState) error {
	return s.put(bucketCore, core.Bytes(), state)
}

func (s *BoltStore) LoadCoreState(_ context.Context, core solana.PublicKey) (*domain.CoreState, error) {
	var st domain.CoreState
	if err := s.get(bucketCore, core.Bytes(), &st); err != nil {
		return nil, err
	}
	if st.Markets == nil {
		st.Markets = make(map[uint64]*domain.MarketView)
	}
	if st.Unclaimed == nil {
		st.Unclaimed = make(map[solana.PublicKey]uint64)
	}
	return &st, nil
}

func (s *BoltStore) SaveMarket(_ context.Context, addr solana.PublicKey, market *domain.Market) error {
	return s.put(bucketMarkets, addr.Bytes(), market)
}

func (s *BoltStore) LoadMarket(_ context.Context, addr solana.PublicKey) (*domain.Market, error) {
	var m domain.Market
	if err := s.get(bucketMarkets, addr.Bytes(), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *BoltStore) SaveHolder(_ context.Context, addr solana.PublicKey, holder *domain.HolderBalance) error {
	return s.put(bucketHolders, addr.Bytes(), holder)
}

func (s *BoltStore) LoadHolder(_ context.Context, addr solana.PublicKey) (*domain.HolderBalance, error) {
	var h domain.HolderBalance
	if err := s.get(bucketHolders, addr.Bytes(), &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// SaveAccounts writes balances as 8-byte big-endian values in one transaction.
func (s *BoltStore) SaveAccounts(_ context.Context, accounts []domain.Account) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		for _, a := range accounts {
			var v [8]byte
			binary.BigEndian.PutUint64(v[:], a.Balance)
			if err := b.Put(a.Address.Bytes(), v[:]); err != nil {
				return fmt.Errorf("storage: put account %s: %w", a.Address, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) LoadAccounts(context.Context) ([]domain.Account, error) {
	var out []domain.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(k, v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("storage: corrupt account %x", k)
			}
			out = append(out, domain.Account{
				Address: solana.PublicKeyFromBytes(k),
				Balance: binary.BigEndian.Uint64(v),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) put(bucket, key []byte, v interface{}) error {
	data, err := encodeGob(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", bucket, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucket).Put(key, data); err != nil {
			return fmt.Errorf("storage: put %s: %w", bucket, err)
		}
		return nil
	})
}

func (s *BoltStore) get(bucket, key []byte, v interface{}) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return ErrNotFound
		}
		if err := decodeGob(data, v); err != nil {
			return fmt.Errorf("storage: decode %s: %w", bucket, err)
		}
		return nil
	})
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
