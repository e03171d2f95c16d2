// internal/events/types.go
package events

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// EventType represents the type of event.
type EventType string

const (
	MarketCreated EventType = "market.created"

	// Trade lifecycle
	TradeCompleted EventType = "trade.completed"
	TradeRefunded  EventType = "trade.refunded"
	TradeFailed    EventType = "trade.failed"

	PayoutFailed  EventType = "payout.failed"
	ConfigChanged EventType = "config.changed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// NewBase stamps an event of type t at the given time.
func NewBase(t EventType, at time.Time) BaseEvent {
	return BaseEvent{EventType: t, EventTime: at}
}

// MarketCreatedEvent is emitted when Core registers a new market.
type MarketCreatedEvent struct {
	BaseEvent
	GroupID  uint64
	Groups   solana.PublicKey
	Creator  solana.PublicKey
	Referrer solana.PublicKey
	Power    uint64
	Constant uint64
}

// TradeCompletedEvent is emitted once Groups confirmed the supply change
// and Core issued the credit and payouts.
type TradeCompletedEvent struct {
	BaseEvent
	TradeID     uuid.UUID
	Op          string // "buy" or "sell"
	GroupID     uint64
	Trader      solana.PublicKey
	Keys        uint64
	Price       uint64
	PlatformFee uint64
	GroupFee    uint64
	ReferralFee uint64
	Gas         uint64
	Supply      uint64
}

// TradeRefundedEvent is emitted when a trade is rejected and its value returned.
type TradeRefundedEvent struct {
	BaseEvent
	TradeID uuid.UUID
	Op      string
	GroupID uint64
	Trader  solana.PublicKey
	Amount  uint64
	Code    string
	Error   error
}

// TradeFailedEvent is emitted when a trade fails without a refund.
type TradeFailedEvent struct {
	BaseEvent
	TradeID  uuid.UUID
	Op       string
	GroupID  uint64
	Trader   solana.PublicKey
	Retained uint64
	Code     string
	Error    error
}

// PayoutFailedEvent is emitted when a recipient rejects a payout and the
// amount is booked as unclaimed.
type PayoutFailedEvent struct {
	BaseEvent
	TradeID   uuid.UUID
	Recipient solana.PublicKey
	Role      string
	Amount    uint64
}

// ConfigChangedEvent is emitted after an administrative setter succeeds.
type ConfigChangedEvent struct {
	BaseEvent
	Field string
	By    solana.PublicKey
}
