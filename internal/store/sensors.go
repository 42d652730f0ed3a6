package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/abnzrdev/tynys-ingest/internal/domain"
)

// ResolveSensor returns the sensor registered under the given device
// identifier, creating it on first sight with the supplied site binding.
// Site binding is fixed at creation; firmware is the one field live-updated
// afterwards, and only when a different version is reported. Sensors are
// never deleted here.
func (s *Store) ResolveSensor(ctx context.Context, deviceID string, siteID *int64, firmware string) (domain.Sensor, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT IGNORE INTO sensors (device_id, site_id, sensor_type, firmware_version, is_active)
		 VALUES (?, ?, 'air_quality', ?, 1)`,
		deviceID, siteID, nullString(firmware))
	if err != nil {
		return domain.Sensor{}, fmt.Errorf("insert sensor %q: %w", deviceID, err)
	}

	sensor, err := s.sensorByDeviceID(ctx, deviceID)
	if err != nil {
		return domain.Sensor{}, err
	}

	if firmware != "" && (sensor.FirmwareVersion == nil || *sensor.FirmwareVersion != firmware) {
		_, err = s.db.ExecContext(ctx,
			`UPDATE sensors SET firmware_version = ?, updated_at = NOW() WHERE sensor_id = ?`,
			firmware, sensor.ID)
		if err != nil {
			return domain.Sensor{}, fmt.Errorf("update sensor %q firmware: %w", deviceID, err)
		}
		sensor.FirmwareVersion = &firmware
	}

	return sensor, nil
}

func (s *Store) sensorByDeviceID(ctx context.Context, deviceID string) (domain.Sensor, error) {
	var (
		sensor   domain.Sensor
		siteID   sql.NullInt64
		firmware sql.NullString
		lat, lon sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT sensor_id, device_id, site_id, sensor_type, firmware_version,
		        latitude, longitude, is_active, created_at, updated_at
		 FROM sensors WHERE device_id = ?`, deviceID).Scan(
		&sensor.ID, &sensor.DeviceID, &siteID, &sensor.SensorType, &firmware,
		&lat, &lon, &sensor.IsActive, &sensor.CreatedAt, &sensor.UpdatedAt)
	if err != nil {
		return domain.Sensor{}, fmt.Errorf("select sensor %q: %w", deviceID, err)
	}

	if siteID.Valid {
		sensor.SiteID = &siteID.Int64
	}
	if firmware.Valid {
		sensor.FirmwareVersion = &firmware.String
	}
	if lat.Valid {
		sensor.Latitude = &lat.Float64
	}
	if lon.Valid {
		sensor.Longitude = &lon.Float64
	}
	return sensor, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
