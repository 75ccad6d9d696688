package api

import (
	"database/sql"
	"time"

	"github.com/atmostrack/atmostrack/internal/convert"
	"github.com/atmostrack/atmostrack/internal/live"
	"github.com/atmostrack/atmostrack/internal/models"
)

// JSON views of the domain types: nullable fields become pointers so
// absent sensors serialize as null instead of sql.Null* structs.

type ReadingView struct {
	ID             string   `json:"id"`
	DeviceID       string   `json:"deviceId"`
	ReceivedAt     time.Time `json:"receivedAt"`
	Temperature    *float64 `json:"temperature"`
	Humidity       *float64 `json:"humidity"`
	MQ135Raw       *float64 `json:"mq135Raw"`
	MQ135Volt      *float64 `json:"mq135Volt"`
	CO2Ppm         *float64 `json:"co2Ppm"`
	AccelX         *int64   `json:"ax"`
	AccelY         *int64   `json:"ay"`
	AccelZ         *int64   `json:"az"`
	GyroX          *int64   `json:"gx"`
	GyroY          *int64   `json:"gy"`
	GyroZ          *int64   `json:"gz"`
	Latitude       *float64 `json:"lat"`
	Longitude      *float64 `json:"lng"`
	SpeedKmh       *float64 `json:"speedKmh"`
	PurificationOn bool     `json:"purificationOn"`
	AQI            *int     `json:"aqi"`
}

type FeaturesView struct {
	VocAvg              *float64 `json:"vocAvg"`
	VocStd              *float64 `json:"vocStd"`
	CO2Avg              *float64 `json:"co2Avg"`
	CO2Std              *float64 `json:"co2Std"`
	VibrationAmplitude  *float64 `json:"vibrationAmplitude"`
	VibrationEventCount int      `json:"vibrationEventCount"`
	HourOfDay           int      `json:"hourOfDay"`
}

type TupleView struct {
	Online         bool                         `json:"online"`
	Reading        ReadingView                  `json:"reading"`
	Features       FeaturesView                 `json:"features"`
	Classification *models.ClassificationResult `json:"classification,omitempty"`
}

func fptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func iptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func newReadingView(r models.Reading) ReadingView {
	view := ReadingView{
		ID:             r.ID,
		DeviceID:       r.DeviceID,
		ReceivedAt:     r.ReceivedAt,
		Temperature:    fptr(r.Temperature),
		Humidity:       fptr(r.Humidity),
		MQ135Raw:       fptr(r.MQ135Raw),
		MQ135Volt:      fptr(r.MQ135Volt),
		CO2Ppm:         fptr(r.CO2Ppm),
		AccelX:         iptr(r.AccelX),
		AccelY:         iptr(r.AccelY),
		AccelZ:         iptr(r.AccelZ),
		GyroX:          iptr(r.GyroX),
		GyroY:          iptr(r.GyroY),
		GyroZ:          iptr(r.GyroZ),
		Latitude:       fptr(r.Latitude),
		Longitude:      fptr(r.Longitude),
		SpeedKmh:       fptr(r.SpeedKmh),
		PurificationOn: r.PurificationOn,
	}
	if r.MQ135Raw.Valid {
		aqi := convert.RawToAQI(r.MQ135Raw.Float64)
		view.AQI = &aqi
	}
	return view
}

func newFeaturesView(f models.FeatureVector) FeaturesView {
	return FeaturesView{
		VocAvg:              fptr(f.VocAvg),
		VocStd:              fptr(f.VocStd),
		CO2Avg:              fptr(f.CO2Avg),
		CO2Std:              fptr(f.CO2Std),
		VibrationAmplitude:  fptr(f.VibrationAmplitude),
		VibrationEventCount: f.VibrationEventCount,
		HourOfDay:           f.HourOfDay,
	}
}

func newTupleView(t live.Tuple, now time.Time) TupleView {
	return TupleView{
		Online:         live.Online(now, t.Reading.ReceivedAt),
		Reading:        newReadingView(t.Reading),
		Features:       newFeaturesView(t.Features),
		Classification: t.Classification,
	}
}
