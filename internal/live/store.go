// Package live holds the latest tuple and a bounded in-memory history per
// device, and fans updates out to subscribers. It is an injected
// instance, owned by main and shared by the ingestion and query paths.
package live

import (
	"sync"
	"time"

	"github.com/atmostrack/atmostrack/internal/metrics"
	"github.com/atmostrack/atmostrack/internal/models"
)

// StaleAfter is the age past which a device is considered offline by
// viewers. The check must be identical wherever it is implemented:
// online = (now - timestamp) < 30s.
const StaleAfter = 30 * time.Second

// DefaultHistory is how many readings each device retains in memory.
const DefaultHistory = 300

// Tuple is what the broadcast boundary emits: the reading, its derived
// features, and the classification once (if ever) enrichment resolves.
type Tuple struct {
	Reading        models.Reading               `json:"reading"`
	Features       models.FeatureVector         `json:"features"`
	Classification *models.ClassificationResult `json:"classification,omitempty"`
}

// Online reports whether a reading timestamp is fresh enough for viewers
// to treat the device as connected.
func Online(now, timestamp time.Time) bool {
	return now.Sub(timestamp) < StaleAfter
}

type deviceState struct {
	latest  *Tuple
	history []Tuple // oldest first, capped
}

// Store is the live reading store. Mutation is serialized per device;
// subscriber delivery is non-blocking so a slow viewer can never stall
// ingestion or other viewers.
type Store struct {
	mu          sync.RWMutex
	capacity    int
	devices     map[string]*deviceState
	subscribers map[int]chan Tuple
	nextSub     int
}

func NewStore(historyCapacity int) *Store {
	if historyCapacity <= 0 {
		historyCapacity = DefaultHistory
	}
	return &Store{
		capacity:    historyCapacity,
		devices:     make(map[string]*deviceState),
		subscribers: make(map[int]chan Tuple),
	}
}

// Update stores the tuple as the device's latest, appends it to history,
// and notifies subscribers.
func (s *Store) Update(t Tuple) {
	s.mu.Lock()
	ds, ok := s.devices[t.Reading.DeviceID]
	if !ok {
		ds = &deviceState{}
		s.devices[t.Reading.DeviceID] = ds
	}
	ds.latest = &t
	ds.history = append(ds.history, t)
	if len(ds.history) > s.capacity {
		ds.history = ds.history[1:]
	}
	s.mu.Unlock()

	s.notify(t)
}

// ApplyClassification patches the stored tuple for the given reading
// identity with a copy carrying the classification, then re-broadcasts
// it. It reports false when the reading is no longer held (already
// evicted), in which case nothing is emitted.
func (s *Store) ApplyClassification(deviceID, readingID string, res models.ClassificationResult) (Tuple, bool) {
	s.mu.Lock()
	ds, ok := s.devices[deviceID]
	if !ok {
		s.mu.Unlock()
		return Tuple{}, false
	}

	var patched *Tuple
	for i := range ds.history {
		if ds.history[i].Reading.ID == readingID {
			t := ds.history[i]
			r := res
			t.Classification = &r
			ds.history[i] = t
			patched = &t
			break
		}
	}
	if patched != nil && ds.latest != nil && ds.latest.Reading.ID == readingID {
		ds.latest = patched
	}
	s.mu.Unlock()

	if patched == nil {
		return Tuple{}, false
	}
	s.notify(*patched)
	return *patched, true
}

// Latest returns the device's most recent tuple.
func (s *Store) Latest(deviceID string) (Tuple, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.devices[deviceID]
	if !ok || ds.latest == nil {
		return Tuple{}, false
	}
	return *ds.latest, true
}

// History returns up to k readings for the device, newest first.
func (s *Store) History(deviceID string, k int) []models.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.devices[deviceID]
	if !ok {
		return nil
	}
	n := len(ds.history)
	if k <= 0 || k > n {
		k = n
	}
	out := make([]models.Reading, 0, k)
	for i := n - 1; i >= n-k; i-- {
		out = append(out, ds.history[i].Reading)
	}
	return out
}

// Devices returns the IDs of devices with at least one reading.
func (s *Store) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	return ids
}

// Subscribe registers a fan-out channel. The returned cancel func must be
// called when the subscriber goes away. Each subscriber gets its own
// buffer; when it is full, updates are dropped for that subscriber only.
func (s *Store) Subscribe(buffer int) (<-chan Tuple, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Tuple, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify(t Tuple) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- t:
		default:
			// Subscriber is behind; drop rather than block ingestion.
			metrics.DroppedUpdates.Inc()
		}
	}
}
