package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atmostrack_readings_ingested_total",
			Help: "Total readings successfully ingested",
		},
		[]string{"device"},
	)

	PayloadsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atmostrack_payloads_rejected_total",
			Help: "Total unparseable payloads rejected at the ingestion boundary",
		},
	)

	ClassifyCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atmostrack_classify_calls_total",
			Help: "Total classifier calls by terminal state",
		},
		[]string{"state"},
	)

	ClassifyLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "atmostrack_classify_latency_seconds",
			Help:    "Classifier call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atmostrack_ws_clients",
			Help: "Currently connected WebSocket viewers",
		},
	)

	DroppedUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atmostrack_live_dropped_updates_total",
			Help: "Live updates dropped because a subscriber's buffer was full",
		},
	)
)
