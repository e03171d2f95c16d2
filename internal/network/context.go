// internal/network/context.go
package network

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// Context is handed to an actor for the duration of one message.
// Sends are buffered and only leave the actor when Receive returns nil.
type Context struct {
	ctx       context.Context
	env       *Envelope
	self      solana.PublicKey
	available uint64
	spent     uint64
	outbox    []*Envelope
	now       time.Time
}

// SendOption adjusts an outgoing envelope.
type SendOption func(*Envelope)

// WithInit attaches an init descriptor so the destination is created on first delivery.
func WithInit(init Init) SendOption {
	return func(e *Envelope) {
		e.Init = &init
	}
}

// NoBounce marks the envelope as not returning value on failure.
func NoBounce() SendOption {
	return func(e *Envelope) {
		e.Bounce = false
	}
}

func (c *Context) Context() context.Context { return c.ctx }
func (c *Context) Self() solana.PublicKey   { return c.self }
func (c *Context) Sender() solana.PublicKey { return c.env.From }
func (c *Context) Value() uint64            { return c.env.Value }
func (c *Context) EnvelopeID() uuid.UUID    { return c.env.ID }
func (c *Context) Now() time.Time           { return c.now }
func (c *Context) Available() uint64        { return c.available - c.spent }

// Send queues value and body for delivery to to.
func (c *Context) Send(to solana.PublicKey, value uint64, body Message, opts ...SendOption) error {
	if value > c.Available() {
		return fmt.Errorf("%w: send %d, available %d", ErrInsufficientFunds, value, c.Available())
	}
	env := &Envelope{
		ID:     uuid.New(),
		From:   c.self,
		To:     to,
		Value:  value,
		Body:   body,
		Bounce: true,
	}
	for _, opt := range opts {
		opt(env)
	}
	c.spent += value
	c.outbox = append(c.outbox, env)
	return nil
}
