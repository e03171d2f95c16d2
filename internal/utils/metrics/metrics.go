// internal/utils/metrics/metrics.go
package metrics

import (
	"time"
)

// Trade outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeRefunded  = "refunded"
	OutcomeFailed    = "failed"
)

// ObserveMessage records one processed message.
func (c *Collector) ObserveMessage(actor, kind string, success bool, took time.Duration) {
	status := "success"
	if !success {
		status = "failed"
	}
	c.messages.WithLabelValues(actor, kind, status).Inc()
	c.duration.WithLabelValues(actor, kind).Observe(took.Seconds())
}

// SetMailboxDepth records the queue length seen when a message was enqueued.
func (c *Collector) SetMailboxDepth(actor string, depth int) {
	c.mailbox.WithLabelValues(actor).Set(float64(depth))
}

// RecordTrade counts a trade outcome; volume is only added for completed trades.
func (c *Collector) RecordTrade(op, outcome string, volume uint64) {
	c.trades.WithLabelValues(op, outcome).Inc()
	if outcome == OutcomeCompleted {
		c.volume.WithLabelValues(op).Add(float64(volume))
	}
}

// RecordPayoutFailure counts a payout that bounced back from its recipient.
func (c *Collector) RecordPayoutFailure(role string) {
	c.payouts.WithLabelValues(role).Inc()
}
