package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/abnzrdev/tynys-ingest/internal/domain"
)

// Bucket selects the truncation granularity for rollup queries.
type Bucket string

const (
	BucketHour Bucket = "hour"
	BucketDay  Bucket = "day"
)

// bucketExpr returns the MySQL expression that truncates a timestamp to the
// bucket boundary.
func bucketExpr(b Bucket) (string, error) {
	switch b {
	case BucketHour:
		return `DATE_FORMAT(timestamp, '%Y-%m-%d %H:00:00')`, nil
	case BucketDay:
		return `DATE_FORMAT(timestamp, '%Y-%m-%d 00:00:00')`, nil
	default:
		return "", fmt.Errorf("unknown rollup bucket %q", b)
	}
}

// LatestReading is one row of the latest-readings projection, joined with
// its sensor and site for display.
type LatestReading struct {
	ReadingID   int64       `json:"readingId"`
	SensorID    int64       `json:"sensorId"`
	DeviceID    string      `json:"deviceId"`
	SiteName    *string     `json:"siteName,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	PM25        *float64    `json:"pm25,omitempty"`
	PM10        *float64    `json:"pm10,omitempty"`
	CO2         *float64    `json:"co2,omitempty"`
	Temp        *float64    `json:"temp,omitempty"`
	Hum         *float64    `json:"hum,omitempty"`
	Battery     *float64    `json:"battery,omitempty"`
	Signal      *float64    `json:"signal,omitempty"`
	AqiCategory domain.AqiCategory `json:"aqiCategory,omitempty"`
}

// LatestReadings returns the most recent readings across all active sensors,
// newest first.
func (s *Store) LatestReadings(ctx context.Context, limit int) ([]LatestReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.reading_id, r.sensor_id, sn.device_id, st.site_name,
		       r.timestamp, r.pm25, r.pm10, r.co2, r.temperature, r.humidity,
		       r.battery_level, r.signal_strength, r.aqi_category
		FROM sensor_readings r
		JOIN sensors sn ON sn.sensor_id = r.sensor_id
		LEFT JOIN sites st ON st.site_id = sn.site_id
		WHERE sn.is_active = 1
		ORDER BY r.timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("latest readings: %w", err)
	}
	defer rows.Close()

	var out []LatestReading
	for rows.Next() {
		var (
			lr       LatestReading
			siteName sql.NullString
			category sql.NullString
		)
		if err := rows.Scan(&lr.ReadingID, &lr.SensorID, &lr.DeviceID, &siteName,
			&lr.Timestamp, &lr.PM25, &lr.PM10, &lr.CO2, &lr.Temp, &lr.Hum,
			&lr.Battery, &lr.Signal, &category); err != nil {
			return nil, fmt.Errorf("scan latest reading: %w", err)
		}
		if siteName.Valid {
			lr.SiteName = &siteName.String
		}
		if category.Valid {
			lr.AqiCategory = domain.AqiCategory(category.String)
		}
		out = append(out, lr)
	}
	return out, rows.Err()
}

// DeviceReadings returns all readings for one device within [from, to],
// newest first.
func (s *Store) DeviceReadings(ctx context.Context, deviceID string, from, to time.Time) ([]domain.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.reading_id, r.sensor_id, sn.device_id, r.timestamp, r.server_received_at,
		       r.pm1, r.pm25, r.pm10, r.co2, r.co, r.o3, r.no2, r.voc, r.ch2o,
		       r.temperature, r.humidity, r.pressure,
		       r.battery_level, r.signal_strength, r.error_code,
		       r.aqi_category, r.aqi_rule, r.value, r.location, r.transport_type
		FROM sensor_readings r
		JOIN sensors sn ON sn.sensor_id = r.sensor_id
		WHERE sn.device_id = ? AND r.timestamp >= ? AND r.timestamp <= ?
		ORDER BY r.timestamp DESC`, deviceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("device readings: %w", err)
	}
	defer rows.Close()

	var out []domain.Reading
	for rows.Next() {
		var (
			r                                  domain.Reading
			errorCode, category, rule          sql.NullString
			location, transport                sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.SensorID, &r.DeviceID, &r.Timestamp, &r.ServerReceivedAt,
			&r.PM1, &r.PM25, &r.PM10, &r.CO2, &r.CO, &r.O3, &r.NO2, &r.VOC, &r.CH2O,
			&r.Temp, &r.Hum, &r.Pressure,
			&r.Battery, &r.Signal, &errorCode,
			&category, &rule, &r.Value, &location, &transport); err != nil {
			return nil, fmt.Errorf("scan device reading: %w", err)
		}
		r.ErrorCode = errorCode.String
		r.AqiCategory = domain.AqiCategory(category.String)
		r.AqiRule = rule.String
		r.Location = location.String
		r.TransportType = transport.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Rollup is one time bucket of aggregated quantities for a sensor.
type Rollup struct {
	Bucket  string   `json:"bucket"`
	Count   int64    `json:"count"`
	AvgPM25 *float64 `json:"avgPm25,omitempty"`
	MinPM25 *float64 `json:"minPm25,omitempty"`
	MaxPM25 *float64 `json:"maxPm25,omitempty"`
	AvgPM10 *float64 `json:"avgPm10,omitempty"`
	AvgCO2  *float64 `json:"avgCo2,omitempty"`
	AvgTemp *float64 `json:"avgTemp,omitempty"`
	AvgHum  *float64 `json:"avgHum,omitempty"`
}

// Rollups returns hourly or daily avg/min/max aggregates for one device over
// [from, to], grouped by the truncated observation timestamp.
func (s *Store) Rollups(ctx context.Context, deviceID string, bucket Bucket, from, to time.Time) ([]Rollup, error) {
	expr, err := bucketExpr(bucket)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s AS bucket, COUNT(*),
		       AVG(r.pm25), MIN(r.pm25), MAX(r.pm25),
		       AVG(r.pm10), AVG(r.co2), AVG(r.temperature), AVG(r.humidity)
		FROM sensor_readings r
		JOIN sensors sn ON sn.sensor_id = r.sensor_id
		WHERE sn.device_id = ? AND r.timestamp >= ? AND r.timestamp <= ?
		GROUP BY bucket
		ORDER BY bucket`, expr)

	rows, err := s.db.QueryContext(ctx, query, deviceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("rollups: %w", err)
	}
	defer rows.Close()

	var out []Rollup
	for rows.Next() {
		var r Rollup
		if err := rows.Scan(&r.Bucket, &r.Count,
			&r.AvgPM25, &r.MinPM25, &r.MaxPM25,
			&r.AvgPM10, &r.AvgCO2, &r.AvgTemp, &r.AvgHum); err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// NearbySensor is one sensor within a radius query, with its great-circle
// distance from the query center.
type NearbySensor struct {
	SensorID   int64    `json:"sensorId"`
	DeviceID   string   `json:"deviceId"`
	SiteName   *string  `json:"siteName,omitempty"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	DistanceKM float64  `json:"distanceKm"`
}

// haversine computes great-circle distance in kilometers between the query
// point and a sensor's stored position, in SQL so filtering happens in the
// database.
const haversine = `6371 * ACOS(
	COS(RADIANS(?)) * COS(RADIANS(sn.latitude)) * COS(RADIANS(sn.longitude) - RADIANS(?))
	+ SIN(RADIANS(?)) * SIN(RADIANS(sn.latitude))
)`

// SensorsWithinRadius returns active, positioned sensors within radiusKM
// kilometers of the given point, nearest first.
func (s *Store) SensorsWithinRadius(ctx context.Context, lat, lon, radiusKM float64) ([]NearbySensor, error) {
	query := fmt.Sprintf(`
		SELECT sn.sensor_id, sn.device_id, st.site_name, sn.latitude, sn.longitude,
		       %[1]s AS distance_km
		FROM sensors sn
		LEFT JOIN sites st ON st.site_id = sn.site_id
		WHERE sn.is_active = 1
		  AND sn.latitude IS NOT NULL AND sn.longitude IS NOT NULL
		HAVING distance_km <= ?
		ORDER BY distance_km`, haversine)

	rows, err := s.db.QueryContext(ctx, query, lat, lon, lat, radiusKM)
	if err != nil {
		return nil, fmt.Errorf("sensors within radius: %w", err)
	}
	defer rows.Close()

	var out []NearbySensor
	for rows.Next() {
		var (
			ns       NearbySensor
			siteName sql.NullString
		)
		if err := rows.Scan(&ns.SensorID, &ns.DeviceID, &siteName,
			&ns.Latitude, &ns.Longitude, &ns.DistanceKM); err != nil {
			return nil, fmt.Errorf("scan nearby sensor: %w", err)
		}
		if siteName.Valid {
			ns.SiteName = &siteName.String
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// ExceedFilter selects readings whose quantities exceed caller-supplied
// thresholds, optionally within a date range. Nil thresholds are not applied;
// supplied thresholds are combined with OR, matching "any pollutant over its
// limit".
type ExceedFilter struct {
	PM25 *float64
	PM10 *float64
	CO2  *float64
	From *time.Time
	To   *time.Time
}

// ExceedingReading is one row of the threshold-exceedance projection.
type ExceedingReading struct {
	ReadingID int64     `json:"readingId"`
	SensorID  int64     `json:"sensorId"`
	DeviceID  string    `json:"deviceId"`
	SiteName  *string   `json:"siteName,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	PM25      *float64  `json:"pm25,omitempty"`
	PM10      *float64  `json:"pm10,omitempty"`
	CO2       *float64  `json:"co2,omitempty"`
}

// ReadingsExceeding returns readings where any supplied threshold is
// exceeded, newest first.
func (s *Store) ReadingsExceeding(ctx context.Context, f ExceedFilter) ([]ExceedingReading, error) {
	var (
		over []string
		args []any
	)
	if f.PM25 != nil {
		over = append(over, "r.pm25 > ?")
		args = append(args, *f.PM25)
	}
	if f.PM10 != nil {
		over = append(over, "r.pm10 > ?")
		args = append(args, *f.PM10)
	}
	if f.CO2 != nil {
		over = append(over, "r.co2 > ?")
		args = append(args, *f.CO2)
	}
	if len(over) == 0 {
		return nil, fmt.Errorf("at least one threshold is required")
	}

	conds := []string{"(" + strings.Join(over, " OR ") + ")"}
	if f.From != nil {
		conds = append(conds, "r.timestamp >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		conds = append(conds, "r.timestamp <= ?")
		args = append(args, *f.To)
	}

	query := fmt.Sprintf(`
		SELECT r.reading_id, r.sensor_id, sn.device_id, st.site_name,
		       r.timestamp, r.pm25, r.pm10, r.co2
		FROM sensor_readings r
		JOIN sensors sn ON sn.sensor_id = r.sensor_id
		LEFT JOIN sites st ON st.site_id = sn.site_id
		WHERE %s
		ORDER BY r.timestamp DESC`, strings.Join(conds, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("readings exceeding thresholds: %w", err)
	}
	defer rows.Close()

	var out []ExceedingReading
	for rows.Next() {
		var (
			er       ExceedingReading
			siteName sql.NullString
		)
		if err := rows.Scan(&er.ReadingID, &er.SensorID, &er.DeviceID, &siteName,
			&er.Timestamp, &er.PM25, &er.PM10, &er.CO2); err != nil {
			return nil, fmt.Errorf("scan exceeding reading: %w", err)
		}
		if siteName.Valid {
			er.SiteName = &siteName.String
		}
		out = append(out, er)
	}
	return out, rows.Err()
}

// LowBatterySensor is one sensor whose most recent battery report sits below
// the queried threshold.
type LowBatterySensor struct {
	SensorID  int64     `json:"sensorId"`
	DeviceID  string    `json:"deviceId"`
	SiteName  *string   `json:"siteName,omitempty"`
	Battery   float64   `json:"battery"`
	Timestamp time.Time `json:"timestamp"`
}

// LowBatterySensors returns active sensors whose latest battery-bearing
// reading is below threshold percent.
func (s *Store) LowBatterySensors(ctx context.Context, threshold float64) ([]LowBatterySensor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.sensor_id, sn.device_id, st.site_name, r.battery_level, r.timestamp
		FROM sensor_readings r
		JOIN (
			SELECT sensor_id, MAX(timestamp) AS latest
			FROM sensor_readings
			WHERE battery_level IS NOT NULL
			GROUP BY sensor_id
		) last ON last.sensor_id = r.sensor_id AND last.latest = r.timestamp
		JOIN sensors sn ON sn.sensor_id = r.sensor_id
		LEFT JOIN sites st ON st.site_id = sn.site_id
		WHERE sn.is_active = 1 AND r.battery_level < ?
		ORDER BY r.battery_level`, threshold)
	if err != nil {
		return nil, fmt.Errorf("low battery sensors: %w", err)
	}
	defer rows.Close()

	var out []LowBatterySensor
	for rows.Next() {
		var (
			lb       LowBatterySensor
			siteName sql.NullString
		)
		if err := rows.Scan(&lb.SensorID, &lb.DeviceID, &siteName, &lb.Battery, &lb.Timestamp); err != nil {
			return nil, fmt.Errorf("scan low battery sensor: %w", err)
		}
		if siteName.Valid {
			lb.SiteName = &siteName.String
		}
		out = append(out, lb)
	}
	return out, rows.Err()
}
