package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atmostrack/atmostrack/internal/classify"
	"github.com/atmostrack/atmostrack/internal/ingest"
	"github.com/atmostrack/atmostrack/internal/live"
)

func newTestServer(t *testing.T) (*Server, *live.Store) {
	t.Helper()
	liveStore := live.NewStore(live.DefaultHistory)
	agg := ingest.NewAggregator(0)
	gateway := classify.NewGateway(nil, liveStore, nil, 0)
	pipeline := ingest.NewPipeline(agg, liveStore, nil, gateway)
	return NewServer(pipeline, liveStore, nil, nil, "0"), liveStore
}

func TestIngestHappyPath(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	body := `{
		"deviceId": "esp32-01",
		"environment": {"temperature": 27.5, "humidity": 61.2},
		"gas": {"mq135Raw": 820, "mq135Volt": 0.66},
		"imu": {"ax": 120, "ay": -80, "az": 16400, "gx": 3, "gy": -2, "gz": 1},
		"location": {"lat": 28.61, "lng": 77.21, "speedKmh": 0}
	}`

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ingest returned %d: %s", rec.Code, rec.Body.String())
	}

	var view TupleView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Reading.DeviceID != "esp32-01" {
		t.Errorf("deviceId = %q, want esp32-01", view.Reading.DeviceID)
	}
	if view.Reading.Temperature == nil || *view.Reading.Temperature != 27.5 {
		t.Errorf("temperature = %v, want 27.5", view.Reading.Temperature)
	}
	if view.Reading.AQI == nil {
		t.Error("expected AQI derived from mq135Raw")
	}
	if !view.Online {
		t.Error("a reading ingested just now should be online")
	}
}

func TestIngestRejectsUnparseableBody(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader("not json at all"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unparseable body returned %d, want 400", rec.Code)
	}
}

func TestIngestToleratesWrongTypedField(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	// Firmware bug: temperature arrives as a string. The field nulls out
	// but the reading is still accepted, with humidity intact.
	body := `{"deviceId": "esp32-01", "environment": {"temperature": "27.5", "humidity": 55}}`

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("wrong-typed field returned %d, want 200", rec.Code)
	}

	var view TupleView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Reading.Temperature != nil {
		t.Errorf("temperature = %v, want null", view.Reading.Temperature)
	}
	if view.Reading.Humidity == nil || *view.Reading.Humidity != 55 {
		t.Errorf("humidity = %v, want 55", view.Reading.Humidity)
	}
}

func TestIngestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/ingest", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET ingest returned %d, want 405", rec.Code)
	}
}

func TestCurrentNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/current?device=unknown", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("current for unknown device returned %d, want 404", rec.Code)
	}
}

func TestCurrentDefaultsDevice(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	ingestBody := `{"environment": {"temperature": 22}}`
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(ingestBody))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/current", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("current returned %d: %s", rec.Code, rec.Body.String())
	}
	var view TupleView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Reading.DeviceID != ingest.DefaultDeviceID {
		t.Errorf("deviceId = %q, want %q", view.Reading.DeviceID, ingest.DefaultDeviceID)
	}
}

func TestHistoryNewestFirstWithLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	for i := 0; i < 5; i++ {
		body := fmt.Sprintf(`{"environment": {"temperature": %d}}`, 20+i)
		req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(body))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=3", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("history returned %d: %s", rec.Code, rec.Body.String())
	}
	var views []ReadingView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("history returned %d readings, want 3", len(views))
	}
	if views[0].Temperature == nil || *views[0].Temperature != 24 {
		t.Errorf("first history entry temperature = %v, want newest (24)", views[0].Temperature)
	}
}

func TestHealthDegradedWithoutDevices(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("health with no devices returned %d, want 503", rec.Code)
	}
	var health HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if health.Status != "degraded" {
		t.Errorf("status = %q, want degraded", health.Status)
	}
}

func TestHealthOKWithFreshReading(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/ingest",
		strings.NewReader(`{"environment": {"temperature": 25}}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDevicesListsLiveDevices(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/ingest",
		strings.NewReader(`{"deviceId": "esp32-02", "environment": {"temperature": 25}}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("devices returned %d: %s", rec.Code, rec.Body.String())
	}
	var statuses []DeviceStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(statuses) != 1 || statuses[0].DeviceID != "esp32-02" {
		t.Fatalf("statuses = %+v, want single esp32-02", statuses)
	}
	if !statuses[0].Online {
		t.Error("just-seen device should report online")
	}
}

func TestInsightDisabled(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/insight", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("insight without service returned %d, want 404", rec.Code)
	}
}
