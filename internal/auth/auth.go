// internal/auth/auth.go
package auth

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/friendkeys/internal/protocol"
)

// CreateHash is the canonical digest a backend signs to authorize market creation:
// sha256(sender || groupID (uint64 BE) || validUntil (uint64 BE)).
func CreateHash(sender solana.PublicKey, groupID, validUntil uint64) [32]byte {
	buf := make([]byte, 0, solana.PublicKeyLength+16)
	buf = append(buf, sender.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, groupID)
	buf = binary.BigEndian.AppendUint64(buf, validUntil)
	return sha256.Sum256(buf)
}

// Verify reports whether sig is key's ed25519 signature over hash.
func Verify(key solana.PublicKey, hash [32]byte, sig solana.Signature) bool {
	if key.IsZero() || sig.IsZero() {
		return false
	}
	return sig.Verify(key, hash[:])
}

// SignCreate produces the authorization for sender to create groupID.
func SignCreate(key solana.PrivateKey, sender solana.PublicKey, groupID, validUntil uint64) (solana.Signature, error) {
	hash := CreateHash(sender, groupID, validUntil)
	sig, err := key.Sign(hash[:])
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign create authorization: %w", err)
	}
	return sig, nil
}

// CheckCreate validates a create request against the authorized key at now.
func CheckCreate(key solana.PublicKey, sender solana.PublicKey, msg protocol.Create, now time.Time) error {
	if key.IsZero() {
		return fmt.Errorf("%w: no authorized key configured", protocol.ErrAuth)
	}
	if uint64(now.Unix()) > msg.ValidUntil {
		return fmt.Errorf("%w: authorization expired at %d", protocol.ErrAuth, msg.ValidUntil)
	}
	if !Verify(key, CreateHash(sender, msg.GroupID, msg.ValidUntil), msg.Signature) {
		return fmt.Errorf("%w: signature does not verify", protocol.ErrAuth)
	}
	return nil
}
