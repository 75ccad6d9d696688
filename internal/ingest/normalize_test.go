package ingest

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestNormalizeFullPayload(t *testing.T) {
	var p Payload
	body := `{
		"deviceId": "esp32-01",
		"environment": {"temperature": 31.4, "humidity": 48},
		"gas": {"mq135Raw": 812, "mq135Volt": 0.654},
		"imu": {"ax": 120, "ay": -340, "az": 16200, "gx": 10, "gy": -5, "gz": 3},
		"location": {"lat": 28.6139, "lng": 77.2090, "speedKmh": 12.5},
		"purificationOn": true
	}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	r := Normalize(p, now)

	if r.ID == "" {
		t.Error("reading ID not assigned")
	}
	if r.DeviceID != "esp32-01" {
		t.Errorf("DeviceID = %q, want esp32-01", r.DeviceID)
	}
	if !r.ReceivedAt.Equal(now) {
		t.Errorf("ReceivedAt = %v, want %v", r.ReceivedAt, now)
	}
	if !r.Temperature.Valid || r.Temperature.Float64 != 31.4 {
		t.Errorf("Temperature = %+v, want 31.4", r.Temperature)
	}
	if !r.MQ135Volt.Valid || r.MQ135Volt.Float64 != 0.654 {
		t.Errorf("MQ135Volt = %+v, want 0.654 (supplied, not derived)", r.MQ135Volt)
	}
	if r.CO2Ppm.Valid {
		t.Error("CO2Ppm should be null when absent")
	}
	if !r.AccelZ.Valid || r.AccelZ.Int64 != 16200 {
		t.Errorf("AccelZ = %+v, want 16200", r.AccelZ)
	}
	if !r.PurificationOn {
		t.Error("PurificationOn = false, want true")
	}
}

func TestNormalizeEmptyPayload(t *testing.T) {
	r := Normalize(Payload{}, time.Now())

	if r.Temperature.Valid || r.Humidity.Valid || r.MQ135Raw.Valid ||
		r.CO2Ppm.Valid || r.AccelX.Valid || r.Latitude.Valid {
		t.Error("empty payload should normalize to all-null sensor fields")
	}
}

func TestNormalizeDerivesVoltageFromRaw(t *testing.T) {
	raw := 812.0
	p := Payload{}
	p.Gas = &struct {
		MQ135Raw  *float64 `json:"mq135Raw"`
		MQ135Volt *float64 `json:"mq135Volt"`
		CO2Ppm    *float64 `json:"co2Ppm"`
	}{MQ135Raw: &raw}

	r := Normalize(p, time.Now())
	if !r.MQ135Volt.Valid {
		t.Fatal("MQ135Volt should be derived from the raw count")
	}
	want := 812.0 / 4095 * 3.3
	if math.Abs(r.MQ135Volt.Float64-want) > 1e-9 {
		t.Errorf("MQ135Volt = %v, want %v", r.MQ135Volt.Float64, want)
	}
}

func TestPayloadToleratesWrongTypedFields(t *testing.T) {
	// A wrong-typed field coerces to null; the rest of the payload
	// survives. Only a body that is not JSON at all is rejected.
	var p Payload
	body := `{
		"deviceId": "esp32-01",
		"environment": {"temperature": "garbled", "humidity": 48},
		"gas": {"mq135Raw": 812}
	}`
	err := json.Unmarshal([]byte(body), &p)

	var typeErr *json.UnmarshalTypeError
	if err != nil && !errors.As(err, &typeErr) {
		t.Fatalf("unexpected error kind: %v", err)
	}

	r := Normalize(p, time.Now())
	if r.Temperature.Valid {
		t.Error("wrong-typed temperature should coerce to null")
	}
	if !r.Humidity.Valid || r.Humidity.Float64 != 48 {
		t.Errorf("Humidity = %+v, want 48 (survives sibling coercion)", r.Humidity)
	}
	if !r.MQ135Raw.Valid || r.MQ135Raw.Float64 != 812 {
		t.Errorf("MQ135Raw = %+v, want 812", r.MQ135Raw)
	}
}

func TestReadingIDsAreUnique(t *testing.T) {
	now := time.Now()
	a := Normalize(Payload{}, now)
	b := Normalize(Payload{}, now)
	if a.ID == b.ID {
		t.Error("two readings normalized at the same instant share an ID")
	}
}
