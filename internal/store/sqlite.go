// Package store persists readings to sqlite with a bounded retention
// window. It is a cold-start and short-history backstop; the live store
// remains the source for real-time reads.
package store

import (
	"database/sql"
	"time"

	"github.com/atmostrack/atmostrack/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) UpsertDevice(d models.Device) error {
	_, err := s.db.Exec(`
		INSERT INTO devices (device_id, name, active)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active
	`, d.DeviceID, d.Name, d.Active)
	return err
}

func (s *Store) GetDevices() ([]models.Device, error) {
	rows, err := s.db.Query(`SELECT device_id, name, active FROM devices WHERE active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.DeviceID, &d.Name, &d.Active); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (s *Store) InsertReading(r models.Reading) error {
	_, err := s.db.Exec(`
		INSERT INTO readings (id, device_id, received_at, temperature, humidity, mq135_raw, mq135_volt, co2_ppm, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, latitude, longitude, speed_kmh, purification_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.DeviceID, r.ReceivedAt, r.Temperature, r.Humidity, r.MQ135Raw, r.MQ135Volt, r.CO2Ppm,
		r.AccelX, r.AccelY, r.AccelZ, r.GyroX, r.GyroY, r.GyroZ,
		r.Latitude, r.Longitude, r.SpeedKmh, r.PurificationOn)
	return err
}

// UpdateClassification attaches a resolved classification to the stored
// reading. A missing row is not an error; the reading may have been
// pruned while the call was in flight.
func (s *Store) UpdateClassification(readingID string, res models.ClassificationResult) error {
	_, err := s.db.Exec(`
		UPDATE readings
		SET classification_label = ?, classification_confidence = ?, classified_at = ?
		WHERE id = ?
	`, res.Label, res.Confidence, res.ClassifiedAt, readingID)
	return err
}

func (s *Store) GetLatestReading(deviceID string) (*models.Reading, *models.ClassificationResult, error) {
	row := s.db.QueryRow(`
		SELECT id, device_id, received_at, temperature, humidity, mq135_raw, mq135_volt, co2_ppm, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, latitude, longitude, speed_kmh, purification_on, classification_label, classification_confidence, classified_at, created_at
		FROM readings
		WHERE device_id = ?
		ORDER BY received_at DESC
		LIMIT 1
	`, deviceID)

	r, res, err := scanReading(row)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return r, res, nil
}

func (s *Store) GetReadings(deviceID string, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, device_id, received_at, temperature, humidity, mq135_raw, mq135_volt, co2_ppm, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, latitude, longitude, speed_kmh, purification_on, classification_label, classification_confidence, classified_at, created_at
		FROM readings
		WHERE device_id = ?
		ORDER BY received_at DESC
		LIMIT ?
	`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		r, _, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *r)
	}
	return readings, rows.Err()
}

// PruneBefore deletes readings older than the cutoff, enforcing the
// retention window. Returns the number of rows removed.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM readings WHERE received_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReading(row scanner) (*models.Reading, *models.ClassificationResult, error) {
	var r models.Reading
	var label sql.NullString
	var confidence sql.NullFloat64
	var classifiedAt sql.NullTime

	err := row.Scan(&r.ID, &r.DeviceID, &r.ReceivedAt, &r.Temperature, &r.Humidity,
		&r.MQ135Raw, &r.MQ135Volt, &r.CO2Ppm,
		&r.AccelX, &r.AccelY, &r.AccelZ, &r.GyroX, &r.GyroY, &r.GyroZ,
		&r.Latitude, &r.Longitude, &r.SpeedKmh, &r.PurificationOn,
		&label, &confidence, &classifiedAt, &r.CreatedAt)
	if err != nil {
		return nil, nil, err
	}

	var res *models.ClassificationResult
	if label.Valid {
		res = &models.ClassificationResult{
			Label:      label.String,
			Confidence: confidence.Float64,
		}
		if classifiedAt.Valid {
			res.ClassifiedAt = classifiedAt.Time
		}
	}
	return &r, res, nil
}
