package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks message flow through the bus queues.
type Metrics struct {
	inboundPublished  prometheus.Counter
	inboundConsumed   prometheus.Counter
	outboundPublished prometheus.Counter
	outboundConsumed  prometheus.Counter
	outboundDropped   prometheus.Counter
}

var (
	metricsOnce *Metrics
)

// newMetrics registers the bus counters with the default registry. The
// counters are process-wide, so registration happens once even if several
// buses are created in tests.
func newMetrics() *Metrics {
	if metricsOnce != nil {
		return metricsOnce
	}
	metricsOnce = &Metrics{
		inboundPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nanobot_bus_inbound_published_total",
			Help: "Inbound messages published to the bus.",
		}),
		inboundConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nanobot_bus_inbound_consumed_total",
			Help: "Inbound messages consumed by the agent loop.",
		}),
		outboundPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nanobot_bus_outbound_published_total",
			Help: "Outbound messages published to the bus.",
		}),
		outboundConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nanobot_bus_outbound_consumed_total",
			Help: "Outbound messages dispatched to channel handlers.",
		}),
		outboundDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nanobot_bus_outbound_dropped_total",
			Help: "Outbound messages dropped (queue full or no handler).",
		}),
	}
	return metricsOnce
}
