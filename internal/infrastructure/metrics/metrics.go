// Package metrics holds the Prometheus collectors for HomeState Core.
// Collectors register with the default registry on package init and are
// exposed by Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	StateUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homestate_state_updates_total",
		Help: "State updates applied through a device channel, by result",
	}, []string{"result"})
	StateReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homestate_state_reads_total",
		Help: "Snapshot reads, by source (cache or store)",
	}, []string{"source"})
	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homestate_broadcasts_total",
		Help: "Snapshots fanned out to device subscribers",
	})
	ListenerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homestate_listener_failures_total",
		Help: "Subscriber callbacks that returned an error or panicked",
	})
	Channels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "homestate_state_channels",
		Help: "Device channels currently held in memory",
	})
	ActiveStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "homestate_active_streams",
		Help: "Open push streams, by transport",
	}, []string{"transport"})
	StreamDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homestate_stream_dropped_total",
		Help: "Queued snapshots discarded because a subscriber fell behind",
	}, []string{"transport"})
	StreamWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homestate_stream_write_errors_total",
		Help: "Failed writes that closed a push stream",
	}, []string{"transport"})
	ObserverDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homestate_observer_dropped_total",
		Help: "Snapshots discarded from a background observer queue",
	}, []string{"observer"})
	FeedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homestate_feed_messages_total",
		Help: "Cross-instance change notifications, by direction",
	}, []string{"direction"})
	DeviceReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homestate_device_reports_total",
		Help: "State reports received from devices over MQTT, by result",
	}, []string{"result"})
	ApplyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "homestate_apply_latency_seconds",
		Help:    "Time from apply start to broadcast completion",
		Buckets: prometheus.DefBuckets,
	})
)

// ObserveApplyLatency records the time elapsed since start.
func ObserveApplyLatency(start time.Time) {
	ApplyLatency.Observe(time.Since(start).Seconds())
}

// Handler serves the default registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
