package store

import (
	"context"
	"fmt"

	"github.com/abnzrdev/tynys-ingest/internal/domain"
)

// HasFingerprint reports whether a reading with the given content fingerprint
// has already been ingested.
func (s *Store) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sensor_readings WHERE data_hash = ?`, fingerprint).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check fingerprint: %w", err)
	}
	return n > 0, nil
}

// InsertReading appends one reading row and returns its identity. When the
// reading carries a fingerprint and another ingestion won the race on the
// unique data_hash index, the error is domain.ErrDuplicateFingerprint so the
// caller can report an idempotent replay instead of a failure.
func (s *Store) InsertReading(ctx context.Context, r *domain.Reading) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_readings (
			sensor_id, timestamp, server_received_at,
			pm1, pm25, pm10, co2, co, o3, no2, voc, ch2o,
			temperature, humidity, pressure,
			battery_level, signal_strength, error_code,
			aqi_category, aqi_rule,
			value, location, transport_type, data_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SensorID, r.Timestamp, r.ServerReceivedAt,
		r.PM1, r.PM25, r.PM10, r.CO2, r.CO, r.O3, r.NO2, r.VOC, r.CH2O,
		r.Temp, r.Hum, r.Pressure,
		r.Battery, r.Signal, nullString(r.ErrorCode),
		nullString(string(r.AqiCategory)), nullString(r.AqiRule),
		r.Value, nullString(r.Location), nullString(r.TransportType),
		nullString(r.Fingerprint))
	if err != nil {
		if isDuplicateKey(err) {
			return 0, domain.ErrDuplicateFingerprint
		}
		return 0, fmt.Errorf("insert reading: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert reading id: %w", err)
	}
	return id, nil
}
