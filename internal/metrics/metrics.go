package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "community"

// Metrics groups the collectors of the realtime server.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	RoomMembers       *prometheus.GaugeVec
	Requests          *prometheus.CounterVec
	Broadcasts        *prometheus.CounterVec
	SlowConsumers     prometheus.Counter
	ReplayDuration    prometheus.Histogram
}

// New registers the collectors on reg. Passing nil uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of open websocket connections.",
		}),
		RoomMembers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "room_members",
			Help:      "Number of local connections joined to each room.",
		}, []string{"room"}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Client messages handled, by event and outcome.",
		}, []string{"event", "status"}),
		Broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Events fanned out to rooms, by event.",
		}, []string{"event"}),
		SlowConsumers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumer_disconnects_total",
			Help:      "Connections dropped because their send buffer was full.",
		}),
		ReplayDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replay_duration_seconds",
			Help:      "Time spent building the join replay.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
