package ingest

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/atmostrack/atmostrack/internal/convert"
	"github.com/atmostrack/atmostrack/internal/models"
)

// Payload is the already-decoded device payload at the ingestion boundary.
// Every sensor field is optional: the ESP32's sensors fail independently,
// so absence is the dominant, expected case. A wrong-typed field decodes
// to nil (the transport tolerates json.UnmarshalTypeError) rather than
// rejecting the whole reading.
type Payload struct {
	DeviceID    string `json:"deviceId"`
	Environment *struct {
		Temperature *float64 `json:"temperature"`
		Humidity    *float64 `json:"humidity"`
	} `json:"environment"`
	Gas *struct {
		MQ135Raw  *float64 `json:"mq135Raw"`
		MQ135Volt *float64 `json:"mq135Volt"`
		CO2Ppm    *float64 `json:"co2Ppm"`
	} `json:"gas"`
	IMU *struct {
		AX *int64 `json:"ax"`
		AY *int64 `json:"ay"`
		AZ *int64 `json:"az"`
		GX *int64 `json:"gx"`
		GY *int64 `json:"gy"`
		GZ *int64 `json:"gz"`
	} `json:"imu"`
	Location *struct {
		Lat      *float64 `json:"lat"`
		Lng      *float64 `json:"lng"`
		SpeedKmh *float64 `json:"speedKmh"`
	} `json:"location"`
	PurificationOn bool `json:"purificationOn"`
}

// Normalize converts a payload into an immutable Reading. This is the one
// place the nullable-field shape is produced; everything downstream
// consumes typed data. The reading timestamp is the process clock, not
// anything device-supplied.
func Normalize(p Payload, now time.Time) models.Reading {
	r := models.Reading{
		ID:             uuid.NewString(),
		DeviceID:       p.DeviceID,
		ReceivedAt:     now,
		PurificationOn: p.PurificationOn,
	}

	if p.Environment != nil {
		if p.Environment.Temperature != nil {
			r.Temperature = sql.NullFloat64{Float64: *p.Environment.Temperature, Valid: true}
		}
		if p.Environment.Humidity != nil {
			r.Humidity = sql.NullFloat64{Float64: *p.Environment.Humidity, Valid: true}
		}
	}

	if p.Gas != nil {
		if p.Gas.MQ135Raw != nil {
			r.MQ135Raw = sql.NullFloat64{Float64: *p.Gas.MQ135Raw, Valid: true}
		}
		if p.Gas.MQ135Volt != nil {
			r.MQ135Volt = sql.NullFloat64{Float64: *p.Gas.MQ135Volt, Valid: true}
		} else if p.Gas.MQ135Raw != nil {
			// Voltage is a pure function of the raw count; fill it in when
			// the firmware omits it.
			r.MQ135Volt = sql.NullFloat64{Float64: convert.VoltageFromRaw(*p.Gas.MQ135Raw), Valid: true}
		}
		if p.Gas.CO2Ppm != nil {
			r.CO2Ppm = sql.NullFloat64{Float64: *p.Gas.CO2Ppm, Valid: true}
		}
	}

	if p.IMU != nil {
		if p.IMU.AX != nil {
			r.AccelX = sql.NullInt64{Int64: *p.IMU.AX, Valid: true}
		}
		if p.IMU.AY != nil {
			r.AccelY = sql.NullInt64{Int64: *p.IMU.AY, Valid: true}
		}
		if p.IMU.AZ != nil {
			r.AccelZ = sql.NullInt64{Int64: *p.IMU.AZ, Valid: true}
		}
		if p.IMU.GX != nil {
			r.GyroX = sql.NullInt64{Int64: *p.IMU.GX, Valid: true}
		}
		if p.IMU.GY != nil {
			r.GyroY = sql.NullInt64{Int64: *p.IMU.GY, Valid: true}
		}
		if p.IMU.GZ != nil {
			r.GyroZ = sql.NullInt64{Int64: *p.IMU.GZ, Valid: true}
		}
	}

	if p.Location != nil {
		if p.Location.Lat != nil {
			r.Latitude = sql.NullFloat64{Float64: *p.Location.Lat, Valid: true}
		}
		if p.Location.Lng != nil {
			r.Longitude = sql.NullFloat64{Float64: *p.Location.Lng, Valid: true}
		}
		if p.Location.SpeedKmh != nil {
			r.SpeedKmh = sql.NullFloat64{Float64: *p.Location.SpeedKmh, Valid: true}
		}
	}

	return r
}
