// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/rovshanmuradov/friendkeys/internal/auth"
)

// Wallet is a named ed25519 keypair: a trader, an owner or the create signer.
type Wallet struct {
	Name       string
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// NewWallet creates a wallet from a base58-encoded 64-byte private key.
func NewWallet(name, privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	privateKey := solana.PrivateKey(privateKeyBytes)
	return &Wallet{
		Name:       name,
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}, nil
}

// Generate creates a wallet with a fresh random key.
func Generate(name string) (*Wallet, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Wallet{Name: name, PrivateKey: key, PublicKey: key.PublicKey()}, nil
}

// Encoded returns the base58 private key, the format NewWallet accepts.
func (w *Wallet) Encoded() string {
	return base58.Encode(w.PrivateKey)
}

// AuthorizeCreate signs the permission for sender to create market groupID
// until validUntil (unix seconds).
func (w *Wallet) AuthorizeCreate(sender solana.PublicKey, groupID, validUntil uint64) (solana.Signature, error) {
	return auth.SignCreate(w.PrivateKey, sender, groupID, validUntil)
}

// LoadWallets reads a CSV file with columns [Name, PrivateKeyBase58] and a header row.
func LoadWallets(path string) (map[string]*Wallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file is empty or missing data")
	}

	wallets := make(map[string]*Wallet)
	for i, record := range records[1:] {
		if len(record) != 2 {
			return nil, fmt.Errorf("line %d: expected 2 columns, got %d", i+2, len(record))
		}
		w, err := NewWallet(record[0], record[1])
		if err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", i+2, record[0], err)
		}
		wallets[w.Name] = w
	}
	return wallets, nil
}

// SaveWallets writes wallets in the format LoadWallets reads, sorted by name.
func SaveWallets(path string, wallets map[string]*Wallet) error {
	names := make([]string, 0, len(wallets))
	for name := range wallets {
		names = append(names, name)
	}
	sort.Strings(names)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"name", "private_key"}); err != nil {
		return err
	}
	for _, name := range names {
		if err := writer.Write([]string{name, wallets[name].Encoded()}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
