// internal/utils/metrics/collector.go
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricType names one metric family owned by the Collector.
type MetricType string

const (
	MessageCounterType  MetricType = "message_counter"
	MessageDurationType MetricType = "message_duration"
	MailboxDepthType    MetricType = "mailbox_depth"
	TradeCounterType    MetricType = "trade_counter"
	TradeVolumeType     MetricType = "trade_volume"
	PayoutFailureType   MetricType = "payout_failure"
)

const namespace = "friendkeys"

// Collector owns the protocol's Prometheus metrics. It satisfies
// network.Recorder and the trade recorder used by Core.
type Collector struct {
	metrics sync.Map

	messages *prometheus.CounterVec
	duration *prometheus.HistogramVec
	mailbox  *prometheus.GaugeVec
	trades   *prometheus.CounterVec
	volume   *prometheus.CounterVec
	payouts  *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them with reg.
// A nil reg uses a fresh private registry.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Messages processed per actor kind and message kind",
			},
			[]string{"actor", "kind", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "message_duration_seconds",
				Help:      "Handler processing time in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"actor", "kind"},
		),
		mailbox: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mailbox_depth",
				Help:      "Last observed mailbox depth per actor kind",
			},
			[]string{"actor"},
		),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_total",
				Help:      "Trades by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		volume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trade_volume_nanoton_total",
				Help:      "Curve price of completed trades in nanoTON",
			},
			[]string{"op"},
		),
		payouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payout_failures_total",
				Help:      "Payouts rejected by their recipient",
			},
			[]string{"role"},
		),
	}

	metricsMap := map[MetricType]prometheus.Collector{
		MessageCounterType:  c.messages,
		MessageDurationType: c.duration,
		MailboxDepthType:    c.mailbox,
		TradeCounterType:    c.trades,
		TradeVolumeType:     c.volume,
		PayoutFailureType:   c.payouts,
	}
	for metricType, metric := range metricsMap {
		if err := reg.Register(metric); err != nil {
			return nil, fmt.Errorf("register %s: %w", metricType, err)
		}
		c.metrics.Store(metricType, metric)
	}
	return c, nil
}

// Reset clears every metric (useful for testing).
func (c *Collector) Reset() {
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		}
		return true
	})
}
