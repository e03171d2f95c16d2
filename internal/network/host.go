// internal/network/host.go
package network

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// host owns one actor and its mailbox.
type host struct {
	kind  string
	addr  solana.PublicKey
	actor Actor

	mu     sync.Mutex
	queue  []*Envelope
	signal chan struct{}

	// guarded by Network.runMu
	started bool
}

func newHost(kind string, addr solana.PublicKey, actor Actor) *host {
	return &host{
		kind:   kind,
		addr:   addr,
		actor:  actor,
		signal: make(chan struct{}, 1),
	}
}

func (h *host) push(env *Envelope) int {
	h.mu.Lock()
	h.queue = append(h.queue, env)
	depth := len(h.queue)
	h.mu.Unlock()

	select {
	case h.signal <- struct{}{}:
	default:
	}
	return depth
}

func (h *host) pop() (*Envelope, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return nil, false
	}
	env := h.queue[0]
	h.queue[0] = nil
	h.queue = h.queue[1:]
	return env, true
}

func (h *host) run(ctx context.Context, n *Network) error {
	for {
		for {
			if ctx.Err() != nil {
				return nil
			}
			env, ok := h.pop()
			if !ok {
				break
			}
			n.process(ctx, h, env)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-h.signal:
		}
	}
}

// receive runs the handler and turns a panic into a failed message.
func (h *host) receive(c *Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s handler panic: %v\n%s", h.kind, r, debug.Stack())
		}
	}()
	return h.actor.Receive(c, msg)
}
