package models

import (
	"database/sql"
	"time"
)

type Device struct {
	DeviceID string
	Name     string
	Active   bool
}

// Reading is one normalized ingestion event from a device. Any sensor can
// fail independently, so every measured field is nullable. A Reading is
// immutable once constructed; classification is attached by copying, never
// by mutating a stored Reading from another goroutine.
type Reading struct {
	ID             string
	DeviceID       string
	ReceivedAt     time.Time
	Temperature    sql.NullFloat64
	Humidity       sql.NullFloat64
	MQ135Raw       sql.NullFloat64
	MQ135Volt      sql.NullFloat64
	CO2Ppm         sql.NullFloat64
	AccelX         sql.NullInt64
	AccelY         sql.NullInt64
	AccelZ         sql.NullInt64
	GyroX          sql.NullInt64
	GyroY          sql.NullInt64
	GyroZ          sql.NullInt64
	Latitude       sql.NullFloat64
	Longitude      sql.NullFloat64
	SpeedKmh       sql.NullFloat64
	PurificationOn bool
	CreatedAt      time.Time
}

// FeatureVector holds the rolling statistics derived from the reading
// window at ingestion time. Fields are null when the window had zero
// non-null samples for the underlying sensor.
type FeatureVector struct {
	VocAvg              sql.NullFloat64
	VocStd              sql.NullFloat64
	CO2Avg              sql.NullFloat64
	CO2Std              sql.NullFloat64
	VibrationAmplitude  sql.NullFloat64
	VibrationEventCount int
	HourOfDay           int
}

// Complete reports whether every input the classifier needs is present.
func (f FeatureVector) Complete() bool {
	return f.VocAvg.Valid && f.CO2Avg.Valid && f.VibrationAmplitude.Valid
}

// Pollution source labels returned by the classifier.
const (
	SourceVehicle      = "Vehicle"
	SourceIndustry     = "Industry"
	SourceConstruction = "Construction"
	SourceClean        = "Clean"
)

// ClassificationResult is the classifier's verdict for one Reading,
// attached asynchronously after the enrichment call resolves.
// Confidence is normalized to [0,1].
type ClassificationResult struct {
	Label        string    `json:"label"`
	Confidence   float64   `json:"confidence"`
	ClassifiedAt time.Time `json:"classifiedAt"`
}
