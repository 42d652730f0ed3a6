// Package store persists sites, sensors, and readings in MySQL and serves
// the read-side aggregation queries. Uniqueness invariants (site name, device
// identifier, reading fingerprint) are enforced by the database, so
// concurrent first-sightings degrade to re-reads instead of races.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Store wraps the MySQL connection pool.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to MySQL with the given DSN, configures the pool, and
// verifies the connection with a ping.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema applies the table definitions. Statements are idempotent
// (CREATE TABLE IF NOT EXISTS) so startup can run this unconditionally.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// isDuplicateKey reports whether err is a MySQL unique-constraint violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

const schema = `
CREATE TABLE IF NOT EXISTS sites (
	site_id          BIGINT AUTO_INCREMENT PRIMARY KEY,
	site_name        VARCHAR(255) NOT NULL,
	city             VARCHAR(255) NULL,
	country          VARCHAR(8)   NULL DEFAULT 'KZ',
	transit_type     VARCHAR(32)  NULL,
	site_description TEXT         NULL,
	contact_person   VARCHAR(255) NULL,
	contact_email    VARCHAR(255) NULL,
	created_at       DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY sites_site_name_uq (site_name)
);

CREATE TABLE IF NOT EXISTS sensors (
	sensor_id             BIGINT AUTO_INCREMENT PRIMARY KEY,
	device_id             VARCHAR(255) NOT NULL,
	site_id               BIGINT       NULL,
	sensor_type           VARCHAR(64)  NOT NULL DEFAULT 'air_quality',
	hardware_version      VARCHAR(64)  NULL,
	firmware_version      VARCHAR(64)  NULL,
	installation_date     DATETIME     NULL,
	last_calibration_date DATETIME     NULL,
	latitude              DOUBLE       NULL,
	longitude             DOUBLE       NULL,
	altitude              DOUBLE       NULL,
	is_active             TINYINT(1)   NOT NULL DEFAULT 1,
	metadata_json         JSON         NULL,
	created_at            DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at            DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY sensors_device_id_uq (device_id),
	KEY sensors_site_id_idx (site_id),
	CONSTRAINT sensors_site_fk FOREIGN KEY (site_id) REFERENCES sites (site_id)
);

CREATE TABLE IF NOT EXISTS sensor_readings (
	reading_id         BIGINT AUTO_INCREMENT PRIMARY KEY,
	sensor_id          BIGINT   NOT NULL,
	timestamp          DATETIME NOT NULL,
	server_received_at DATETIME NOT NULL,
	pm1                DOUBLE NULL,
	pm25               DOUBLE NULL,
	pm10               DOUBLE NULL,
	co2                DOUBLE NULL,
	co                 DOUBLE NULL,
	o3                 DOUBLE NULL,
	no2                DOUBLE NULL,
	voc                DOUBLE NULL,
	ch2o               DOUBLE NULL,
	temperature        DOUBLE NULL,
	humidity           DOUBLE NULL,
	pressure           DOUBLE NULL,
	battery_level      DOUBLE NULL,
	signal_strength    DOUBLE NULL,
	error_code         VARCHAR(64) NULL,
	aqi_category       VARCHAR(16) NULL,
	aqi_rule           VARCHAR(128) NULL,
	value              DOUBLE NULL,
	location           VARCHAR(255) NULL,
	transport_type     VARCHAR(64) NULL,
	ingested_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	data_hash          CHAR(64) NULL,
	UNIQUE KEY sensor_readings_data_hash_uq (data_hash),
	KEY sensor_readings_sensor_ts_idx (sensor_id, timestamp),
	KEY sensor_readings_ts_idx (timestamp),
	CONSTRAINT sensor_readings_sensor_fk FOREIGN KEY (sensor_id) REFERENCES sensors (sensor_id)
)
`
