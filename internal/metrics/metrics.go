// Package metrics exposes the process's Prometheus collectors: agent
// channel message/decoder counters, table route-reach/unreach counters
// and route-count gauges, replication activity, scheduler queue depth,
// and the optional journal/bus write paths.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/routectl/ctlplane/internal/prefix"
)

var (
	XMPPMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctlplane_xmpp_messages_total",
			Help: "Agent channel messages handled, by direction and action.",
		},
		[]string{"direction", "action"},
	)

	XMPPDecoderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctlplane_xmpp_decoder_errors_total",
			Help: "Item decode failures, by family and error kind.",
		},
		[]string{"family", "kind"},
	)

	RoutesReachedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctlplane_routes_reached_total",
			Help: "Route publish/add events committed, by instance and family.",
		},
		[]string{"instance", "family"},
	)

	RoutesUnreachedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctlplane_routes_unreached_total",
			Help: "Route withdraw/delete events committed, by instance and family.",
		},
		[]string{"instance", "family"},
	)

	TableRouteCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ctlplane_table_route_count",
			Help: "Current route count per table.",
		},
		[]string{"instance", "family"},
	)

	ReplicationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctlplane_replication_events_total",
			Help: "Replication events, by direction (vrf_to_vpn/vpn_to_vrf) and op.",
		},
		[]string{"direction", "op"},
	)

	SchedulerQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ctlplane_scheduler_queue_depth",
			Help: "Pending tasks per scheduler group.",
		},
		[]string{"group"},
	)

	JournalWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ctlplane_journal_write_duration_seconds",
			Help:    "Config-delta/peer-counter journal write latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	BusPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctlplane_bus_publish_total",
			Help: "Telemetry events published to the export bus, by event type and result.",
		},
		[]string{"event_type", "result"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call
// more than once; only the first call takes effect.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			XMPPMessagesTotal,
			XMPPDecoderErrorsTotal,
			RoutesReachedTotal,
			RoutesUnreachedTotal,
			TableRouteCount,
			ReplicationEventsTotal,
			SchedulerQueueDepth,
			JournalWriteDuration,
			BusPublishTotal,
		)
	})
}

// XMPPMetrics adapts the package-level collectors to internal/xmpp's
// Metrics interface without internal/xmpp needing to depend on
// Prometheus directly.
type XMPPMetrics struct{}

// IncDecoderError implements internal/xmpp's Metrics interface.
func (XMPPMetrics) IncDecoderError(family prefix.Family, kind string) {
	XMPPDecoderErrorsTotal.WithLabelValues(family.String(), kind).Inc()
}

// IncMessage implements internal/xmpp's Metrics interface, counting
// messages the channel handles by direction ("rx"/"tx") and action.
func (XMPPMetrics) IncMessage(direction, action string) {
	XMPPMessagesTotal.WithLabelValues(direction, action).Inc()
}

// TableMetrics adapts the package-level collectors to internal/table's
// Metrics interface.
type TableMetrics struct{}

// IncRouteReached implements internal/table's Metrics interface.
func (TableMetrics) IncRouteReached(instance, family string) {
	RoutesReachedTotal.WithLabelValues(instance, family).Inc()
}

// IncRouteUnreached implements internal/table's Metrics interface.
func (TableMetrics) IncRouteUnreached(instance, family string) {
	RoutesUnreachedTotal.WithLabelValues(instance, family).Inc()
}

// SetRouteCount implements internal/table's Metrics interface.
func (TableMetrics) SetRouteCount(instance, family string, count int) {
	TableRouteCount.WithLabelValues(instance, family).Set(float64(count))
}

// ReplicationMetrics adapts the package-level collector to
// internal/replication's Metrics interface.
type ReplicationMetrics struct{}

// IncReplicationEvent implements internal/replication's Metrics interface.
func (ReplicationMetrics) IncReplicationEvent(direction, op string) {
	ReplicationEventsTotal.WithLabelValues(direction, op).Inc()
}

// SchedulerMetrics adapts the package-level gauge to internal/sched's
// Metrics interface.
type SchedulerMetrics struct{}

// SetQueueDepth implements internal/sched's Metrics interface.
func (SchedulerMetrics) SetQueueDepth(group string, depth int) {
	SchedulerQueueDepth.WithLabelValues(group).Set(float64(depth))
}

// StoreMetrics adapts the package-level histogram to internal/store's
// Metrics interface.
type StoreMetrics struct{}

// ObserveJournalWrite implements internal/store's Metrics interface.
func (StoreMetrics) ObserveJournalWrite(op string, seconds float64) {
	JournalWriteDuration.WithLabelValues(op).Observe(seconds)
}

// BusMetrics adapts the package-level counter to internal/bus's
// Metrics interface.
type BusMetrics struct{}

// IncBusPublish implements internal/bus's Metrics interface.
func (BusMetrics) IncBusPublish(eventType, result string) {
	BusPublishTotal.WithLabelValues(eventType, result).Inc()
}
