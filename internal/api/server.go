// Package api is the transport boundary: HTTP ingestion, JSON queries,
// health, metrics, and the WebSocket fan-out of live tuples.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atmostrack/atmostrack/internal/ingest"
	"github.com/atmostrack/atmostrack/internal/insight"
	"github.com/atmostrack/atmostrack/internal/live"
	"github.com/atmostrack/atmostrack/internal/metrics"
	"github.com/atmostrack/atmostrack/internal/store"
)

const maxPayloadBytes = 64 << 10

type Server struct {
	pipeline *ingest.Pipeline
	live     *live.Store
	db       *store.Store
	insight  *insight.Service
	port     string
	hub      *Hub
}

// NewServer wires the HTTP boundary. db and insightSvc may be nil.
func NewServer(pipeline *ingest.Pipeline, liveStore *live.Store, db *store.Store, insightSvc *insight.Service, port string) *Server {
	return &Server{
		pipeline: pipeline,
		live:     liveStore,
		db:       db,
		insight:  insightSvc,
		port:     port,
		hub:      NewHub(liveStore),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ingest", s.handleIngest)
	mux.HandleFunc("/api/current", s.handleCurrent)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/insight", s.handleInsight)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.hub.HandleWS)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleIngest receives one device payload. The only rejection is a body
// that is not JSON at all; wrong-typed fields coerce to null so one bad
// sensor never stalls the stream.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var payload ingest.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			metrics.PayloadsRejected.Inc()
			log.Printf("api: rejected unparseable payload: %v", err)
			http.Error(w, "unparseable payload", http.StatusBadRequest)
			return
		}
		// Type mismatch on individual fields: already coerced to null.
	}

	tuple, _ := s.pipeline.Ingest(payload, time.Now())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newTupleView(tuple, time.Now()))
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device")
	if deviceID == "" {
		deviceID = ingest.DefaultDeviceID
	}

	now := time.Now()
	if tuple, ok := s.live.Latest(deviceID); ok {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(newTupleView(tuple, now))
		return
	}

	// Cold start: fall back to the last persisted reading.
	if s.db != nil {
		reading, res, err := s.db.GetLatestReading(deviceID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if reading != nil {
			tuple := live.Tuple{Reading: *reading, Classification: res}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(newTupleView(tuple, now))
			return
		}
	}

	http.Error(w, "no readings for device", http.StatusNotFound)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device")
	if deviceID == "" {
		deviceID = ingest.DefaultDeviceID
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	readings := s.live.History(deviceID, limit)
	if len(readings) == 0 && s.db != nil {
		dbReadings, err := s.db.GetReadings(deviceID, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		readings = dbReadings
	}

	views := make([]ReadingView, 0, len(readings))
	for _, reading := range readings {
		views = append(views, newReadingView(reading))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

type DeviceStatus struct {
	DeviceID   string     `json:"deviceId"`
	Name       string     `json:"name,omitempty"`
	Online     bool       `json:"online"`
	LastSeen   *time.Time `json:"lastSeen,omitempty"`
	AgeSeconds int        `json:"ageSeconds"`
}

func (s *Server) deviceStatuses(now time.Time) []DeviceStatus {
	names := make(map[string]string)
	if s.db != nil {
		if devices, err := s.db.GetDevices(); err == nil {
			for _, d := range devices {
				names[d.DeviceID] = d.Name
			}
		}
	}

	seen := make(map[string]bool)
	var statuses []DeviceStatus
	for _, id := range s.live.Devices() {
		seen[id] = true
		status := DeviceStatus{DeviceID: id, Name: names[id], AgeSeconds: -1}
		if tuple, ok := s.live.Latest(id); ok {
			ts := tuple.Reading.ReceivedAt
			status.LastSeen = &ts
			status.AgeSeconds = int(now.Sub(ts).Seconds())
			status.Online = live.Online(now, ts)
		}
		statuses = append(statuses, status)
	}
	for id, name := range names {
		if !seen[id] {
			statuses = append(statuses, DeviceStatus{DeviceID: id, Name: name, AgeSeconds: -1})
		}
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].DeviceID < statuses[j].DeviceID })
	return statuses
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.deviceStatuses(time.Now()))
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	if s.insight == nil {
		http.Error(w, "insight disabled", http.StatusNotFound)
		return
	}
	summary, generatedAt, err := s.insight.Summary(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"summary":     summary,
		"generatedAt": generatedAt,
	})
}

type HealthStatus struct {
	Status  string         `json:"status"`
	Devices []DeviceStatus `json:"devices"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.deviceStatuses(time.Now())

	health := HealthStatus{Status: "ok", Devices: statuses}
	for _, d := range statuses {
		if !d.Online {
			health.Status = "degraded"
			break
		}
	}
	if len(statuses) == 0 {
		health.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("health: write response: %v", err)
	}
}
