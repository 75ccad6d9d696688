package ingest

import (
	"database/sql"
	"sync"

	"github.com/atmostrack/atmostrack/internal/models"
	"github.com/atmostrack/atmostrack/internal/window"
)

// VibrationEventThreshold is the raw accelerometer magnitude above which a
// sample counts as a vibration event. 15000 sits just under the MPU6050's
// typical full-scale range at ±2g; it is a fixed constant, not
// auto-calibrated.
const VibrationEventThreshold = 15000

// Aggregator owns one sliding window per device and derives the
// FeatureVector for each ingested reading. Window mutation is serialized
// per device so concurrent ingestions for independent devices never
// contend.
type Aggregator struct {
	mu       sync.Mutex
	devices  map[string]*deviceWindow
	capacity int
}

type deviceWindow struct {
	mu  sync.Mutex
	win *window.Window
}

func NewAggregator(capacity int) *Aggregator {
	return &Aggregator{
		devices:  make(map[string]*deviceWindow),
		capacity: capacity,
	}
}

func (a *Aggregator) device(deviceID string) *deviceWindow {
	a.mu.Lock()
	defer a.mu.Unlock()
	dw, ok := a.devices[deviceID]
	if !ok {
		dw = &deviceWindow{win: window.New(a.capacity)}
		a.devices[deviceID] = dw
	}
	return dw
}

// Ingest pushes the reading into its device's window and computes the
// rolling FeatureVector. The hour of day comes from the reading's
// ingestion timestamp, which the normalizer takes from the process clock.
func (a *Aggregator) Ingest(r models.Reading) models.FeatureVector {
	dw := a.device(r.DeviceID)
	dw.mu.Lock()
	defer dw.mu.Unlock()

	dw.win.Push(r)

	fv := models.FeatureVector{
		HourOfDay: r.ReceivedAt.Hour(),
	}

	if v, ok := dw.win.Mean(selVOC); ok {
		fv.VocAvg = sql.NullFloat64{Float64: v, Valid: true}
	}
	if v, ok := dw.win.Stddev(selVOC); ok {
		fv.VocStd = sql.NullFloat64{Float64: v, Valid: true}
	}
	if v, ok := dw.win.Mean(selCO2); ok {
		fv.CO2Avg = sql.NullFloat64{Float64: v, Valid: true}
	}
	if v, ok := dw.win.Stddev(selCO2); ok {
		fv.CO2Std = sql.NullFloat64{Float64: v, Valid: true}
	}
	if v, ok := dw.win.Mean(vibrationSample); ok {
		fv.VibrationAmplitude = sql.NullFloat64{Float64: v, Valid: true}
	}

	for _, wr := range dw.win.Readings() {
		if m, ok := accelPeak(wr); ok && m > VibrationEventThreshold {
			fv.VibrationEventCount++
		}
	}

	return fv
}

func selVOC(r models.Reading) (float64, bool) {
	return r.MQ135Raw.Float64, r.MQ135Raw.Valid
}

func selCO2(r models.Reading) (float64, bool) {
	return r.CO2Ppm.Float64, r.CO2Ppm.Valid
}

// vibrationSample is the per-reading vibration amplitude,
// (|ax|+|ay|+|az|)/3. A reading missing any axis contributes no sample.
func vibrationSample(r models.Reading) (float64, bool) {
	if !r.AccelX.Valid || !r.AccelY.Valid || !r.AccelZ.Valid {
		return 0, false
	}
	return (absInt(r.AccelX.Int64) + absInt(r.AccelY.Int64) + absInt(r.AccelZ.Int64)) / 3, true
}

// accelPeak is max(|ax|,|ay|,|az|); it needs all three axes so event
// counting and amplitude agree on which samples exist.
func accelPeak(r models.Reading) (float64, bool) {
	if !r.AccelX.Valid || !r.AccelY.Valid || !r.AccelZ.Valid {
		return 0, false
	}
	m := absInt(r.AccelX.Int64)
	if v := absInt(r.AccelY.Int64); v > m {
		m = v
	}
	if v := absInt(r.AccelZ.Int64); v > m {
		m = v
	}
	return m, true
}

func absInt(v int64) float64 {
	if v < 0 {
		v = -v
	}
	return float64(v)
}
