// Package window implements the fixed-capacity FIFO buffer of recent
// readings used for feature smoothing. The window is a smoothing aid, not
// a record of truth: it lives in memory only and resets on restart.
package window

import (
	"math"

	"github.com/atmostrack/atmostrack/internal/models"
)

// DefaultCapacity is the number of readings the feature window retains.
const DefaultCapacity = 12

// Selector extracts one numeric field from a reading. ok=false marks the
// field as absent for that reading, which excludes it from statistics.
type Selector func(models.Reading) (value float64, ok bool)

// Window holds the last N readings in arrival order. It is not safe for
// concurrent use; the owner serializes access per device.
type Window struct {
	capacity int
	readings []models.Reading
}

func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{capacity: capacity}
}

// Push appends a reading, evicting the oldest once past capacity.
// Arrival order is preserved even for out-of-order timestamps; duplicates
// are legitimate distinct entries.
func (w *Window) Push(r models.Reading) {
	w.readings = append(w.readings, r)
	if len(w.readings) > w.capacity {
		w.readings = w.readings[1:]
	}
}

func (w *Window) Len() int {
	return len(w.readings)
}

// Readings returns the windowed readings oldest-first.
func (w *Window) Readings() []models.Reading {
	out := make([]models.Reading, len(w.readings))
	copy(out, w.readings)
	return out
}

// Mean returns the arithmetic mean of the selector over readings where it
// is present. ok=false when the window has zero such readings.
func (w *Window) Mean(sel Selector) (float64, bool) {
	var sum float64
	var count int
	for _, r := range w.readings {
		v, ok := sel(r)
		if !ok {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// Stddev returns the population standard deviation (divide by count) of
// the selector over present values, using the two-pass formula so results
// are reproducible across implementations. ok=false with zero survivors.
func (w *Window) Stddev(sel Selector) (float64, bool) {
	mean, ok := w.Mean(sel)
	if !ok {
		return 0, false
	}
	var sumSq float64
	var count int
	for _, r := range w.readings {
		v, ok := sel(r)
		if !ok {
			continue
		}
		d := v - mean
		sumSq += d * d
		count++
	}
	return math.Sqrt(sumSq / float64(count)), true
}
