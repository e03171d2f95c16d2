// internal/network/types.go
package network

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/rovshanmuradov/friendkeys/internal/domain"
)

var (
	ErrInsufficientFunds = errors.New("network: insufficient funds")
	ErrAddressMismatch   = errors.New("network: init does not derive destination address")
	ErrAddressInUse      = errors.New("network: address already bound")
	ErrUnknownKind       = errors.New("network: no factory for actor kind")
	ErrRejected          = errors.New("network: destination rejected transfer")
	ErrNotWallet         = errors.New("network: sender is an actor, not a wallet")
	ErrRunning           = errors.New("network: already running")
	ErrForgedBounce      = errors.New("network: bounces are produced by the network only")
)

// Message is any payload carried by an envelope.
type Message interface {
	Kind() string
}

// Actor processes one message at a time. Returning an error discards every
// send the handler made and, for bounceable envelopes, returns the attached
// value to the sender inside a Bounced message.
type Actor interface {
	Receive(ctx *Context, msg Message) error
}

// Init lets a sender address an actor that does not exist yet.
type Init struct {
	Kind   string
	Params any
}

// Factory builds the actor described by init and returns its derived address.
type Factory func(init Init) (solana.PublicKey, Actor, error)

// Bounced is delivered to the sender of a bounceable envelope whose handler failed.
type Bounced struct {
	Original Message
	Reason   error
}

func (Bounced) Kind() string { return "bounced" }

// Envelope is one in-flight message.
type Envelope struct {
	ID     uuid.UUID
	From   solana.PublicKey
	To     solana.PublicKey
	Value  uint64
	Body   Message
	Bounce bool
	Init   *Init
}

func (e *Envelope) isBounce() bool {
	_, ok := e.Body.(Bounced)
	return ok
}

// Transaction records one processed delivery.
type Transaction struct {
	ID      uuid.UUID
	From    solana.PublicKey
	To      solana.PublicKey
	Value   uint64
	Kind    string
	Success bool
	Bounced bool
	Err     error
	At      time.Time
}

// Recorder receives per-message processing observations.
type Recorder interface {
	ObserveMessage(actor, kind string, success bool, took time.Duration)
	SetMailboxDepth(actor string, depth int)
}

// AccountStore persists the value ledger.
type AccountStore interface {
	SaveAccounts(ctx context.Context, accounts []domain.Account) error
	LoadAccounts(ctx context.Context) ([]domain.Account, error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveMessage(string, string, bool, time.Duration) {}
func (nopRecorder) SetMailboxDepth(string, int)                        {}
