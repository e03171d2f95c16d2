package wallet

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/friendkeys/internal/auth"
	"github.com/rovshanmuradov/friendkeys/internal/protocol"
)

func TestNewWallet_RoundTrip(t *testing.T) {
	w, err := Generate("alice")
	require.NoError(t, err)

	restored, err := NewWallet("alice", w.Encoded())
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey, restored.PublicKey)
	assert.Equal(t, "alice", restored.Name)
}

func TestNewWallet_Invalid(t *testing.T) {
	_, err := NewWallet("x", "0OIl")
	assert.Error(t, err)

	_, err = NewWallet("x", "3yZe7d")
	assert.ErrorContains(t, err, "invalid private key length")
}

func TestSaveAndLoadWallets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.csv")
	alice, err := Generate("alice")
	require.NoError(t, err)
	bob, err := Generate("bob")
	require.NoError(t, err)

	require.NoError(t, SaveWallets(path, map[string]*Wallet{"bob": bob, "alice": alice}))

	loaded, err := LoadWallets(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, alice.PublicKey, loaded["alice"].PublicKey)
	assert.Equal(t, bob.PublicKey, loaded["bob"].PublicKey)
}

func TestLoadWallets_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadWallets(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)

	headerOnly := filepath.Join(dir, "header.csv")
	require.NoError(t, os.WriteFile(headerOnly, []byte("name,private_key\n"), 0o600))
	_, err = LoadWallets(headerOnly)
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.csv")
	require.NoError(t, os.WriteFile(broken, []byte("name,private_key\ncarol,abc\n"), 0o600))
	_, err = LoadWallets(broken)
	assert.ErrorContains(t, err, "carol")
}

func TestAuthorizeCreate(t *testing.T) {
	backend, err := Generate("backend")
	require.NoError(t, err)
	creator, err := Generate("creator")
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	validUntil := uint64(now.Add(time.Hour).Unix())
	sig, err := backend.AuthorizeCreate(creator.PublicKey, 7, validUntil)
	require.NoError(t, err)

	msg := protocol.Create{GroupID: 7, Power: 2, Constant: 1, ValidUntil: validUntil, Signature: sig}
	assert.NoError(t, auth.CheckCreate(backend.PublicKey, creator.PublicKey, msg, now))
	assert.ErrorIs(t, auth.CheckCreate(backend.PublicKey, backend.PublicKey, msg, now), protocol.ErrAuth)
}
