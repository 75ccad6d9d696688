package ingest

import (
	"log"
	"time"

	"github.com/atmostrack/atmostrack/internal/classify"
	"github.com/atmostrack/atmostrack/internal/live"
	"github.com/atmostrack/atmostrack/internal/metrics"
	"github.com/atmostrack/atmostrack/internal/store"
)

// DefaultDeviceID covers firmware builds that predate the deviceId field.
const DefaultDeviceID = "esp32-01"

// Pipeline orchestrates one ingestion: normalize, aggregate, persist,
// publish, then hand off to enrichment. The synchronous path never blocks
// on the classifier; persistence failures are logged, not propagated, to
// keep the stream flowing.
type Pipeline struct {
	agg     *Aggregator
	live    *live.Store
	db      *store.Store
	gateway *classify.Gateway
}

// NewPipeline wires the ingestion path. db may be nil when running
// without persistence.
func NewPipeline(agg *Aggregator, liveStore *live.Store, db *store.Store, gateway *classify.Gateway) *Pipeline {
	return &Pipeline{
		agg:     agg,
		live:    liveStore,
		db:      db,
		gateway: gateway,
	}
}

// Ingest processes one payload at the given ingestion time and returns
// the tuple broadcast synchronously plus the enrichment task handle.
func (p *Pipeline) Ingest(payload Payload, now time.Time) (live.Tuple, *classify.Task) {
	if payload.DeviceID == "" {
		payload.DeviceID = DefaultDeviceID
	}

	reading := Normalize(payload, now)
	features := p.agg.Ingest(reading)

	if p.db != nil {
		if err := p.db.InsertReading(reading); err != nil {
			log.Printf("pipeline: persist reading %s: %v", reading.ID, err)
		}
	}

	tuple := live.Tuple{Reading: reading, Features: features}
	p.live.Update(tuple)

	task := p.gateway.Enrich(reading, features)

	metrics.ReadingsIngested.WithLabelValues(reading.DeviceID).Inc()
	return tuple, task
}
