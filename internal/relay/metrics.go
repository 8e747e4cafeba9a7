package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kartrelay_frames_received_total",
		Help: "Raw messages received from the upstream timing feed.",
	})

	metricFramesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kartrelay_frames_rejected_total",
		Help: "Upstream messages discarded by the frame parser.",
	})

	metricFramesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kartrelay_frames_broadcast_total",
		Help: "Valid frames fanned out to downstream clients.",
	})

	metricLapsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kartrelay_laps_detected_total",
		Help: "Lap completion events derived from the feed.",
	})

	metricStatsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kartrelay_session_stats_recorded_total",
		Help: "Billable session stats calls triggered.",
	})

	metricPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kartrelay_persist_failures_total",
		Help: "Outbound persistence calls which failed and were dropped.",
	})

	metricUpstreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kartrelay_upstream_reconnects_total",
		Help: "Reconnect attempts made to the upstream timing provider.",
	})

	metricConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kartrelay_connected_clients",
		Help: "Downstream WebSocket clients currently registered.",
	})
)
