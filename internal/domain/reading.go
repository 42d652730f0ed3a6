package domain

import "time"

// Site is a physical deployment location for sensors. Sites are created
// lazily the first time a reading references an unseen site name and are
// never deleted by the ingestion core.
type Site struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	City          *string    `json:"city,omitempty"`
	Country       *string    `json:"country,omitempty"`
	TransitType   *string    `json:"transit_type,omitempty"` // "bus", "metro", nil for fixed sites
	Description   *string    `json:"description,omitempty"`
	ContactPerson *string    `json:"contact_person,omitempty"`
	ContactEmail  *string    `json:"contact_email,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Sensor is a physical field device, keyed by its externally supplied
// device identifier. After creation only the firmware version (and the
// updated-at marker) may change.
type Sensor struct {
	ID                  int64      `json:"id"`
	DeviceID            string     `json:"device_id"`
	SiteID              *int64     `json:"site_id,omitempty"`
	SensorType          string     `json:"sensor_type"`
	HardwareVersion     *string    `json:"hardware_version,omitempty"`
	FirmwareVersion     *string    `json:"firmware_version,omitempty"`
	InstallationDate    *time.Time `json:"installation_date,omitempty"`
	LastCalibrationDate *time.Time `json:"last_calibration_date,omitempty"`
	Latitude            *float64   `json:"latitude,omitempty"`
	Longitude           *float64   `json:"longitude,omitempty"`
	Altitude            *float64   `json:"altitude,omitempty"`
	IsActive            bool       `json:"is_active"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Quantities is the sparse set of measured quantities a device may report.
// Devices ship heterogeneous sensor arrays, so every field is optional.
type Quantities struct {
	PM1      *float64 `json:"pm1,omitempty"`      // μg/m³
	PM25     *float64 `json:"pm25,omitempty"`     // μg/m³
	PM10     *float64 `json:"pm10,omitempty"`     // μg/m³
	CO2      *float64 `json:"co2,omitempty"`      // ppm
	CO       *float64 `json:"co,omitempty"`       // ppm
	O3       *float64 `json:"o3,omitempty"`       // ppb
	NO2      *float64 `json:"no2,omitempty"`      // ppb
	VOC      *float64 `json:"voc,omitempty"`      // ppm
	CH2O     *float64 `json:"ch2o,omitempty"`     // formaldehyde, ppm
	Temp     *float64 `json:"temp,omitempty"`     // °C
	Hum      *float64 `json:"hum,omitempty"`      // %
	Pressure *float64 `json:"pressure,omitempty"` // hPa
}

// quantityField pairs a quantity name with its value for iteration over the
// sparse struct. The order here is the order validation messages appear in.
type quantityField struct {
	name  string
	value *float64
}

func (q Quantities) fields() []quantityField {
	return []quantityField{
		{"pm1", q.PM1},
		{"pm25", q.PM25},
		{"pm10", q.PM10},
		{"co2", q.CO2},
		{"co", q.CO},
		{"o3", q.O3},
		{"no2", q.NO2},
		{"voc", q.VOC},
		{"ch2o", q.CH2O},
		{"temp", q.Temp},
		{"hum", q.Hum},
		{"pressure", q.Pressure},
	}
}

// DeviceMetadata is optional device telemetry attached to a structured payload.
type DeviceMetadata struct {
	Battery   *float64 `json:"battery,omitempty"` // %
	Signal    *float64 `json:"signal,omitempty"`  // dBm
	Firmware  string   `json:"firmware,omitempty"`
	ErrorCode string   `json:"error_code,omitempty"`
}

// ReadingPayload is one structured wire payload from a device. The timestamp
// is kept as the raw string the device sent: validation parses it, and the
// content fingerprint hashes it verbatim.
type ReadingPayload struct {
	DeviceID  string          `json:"device_id"`
	Site      string          `json:"site,omitempty"`
	Timestamp string          `json:"timestamp"`
	Readings  Quantities      `json:"readings"`
	Metadata  *DeviceMetadata `json:"metadata,omitempty"`
}

// Reading is one persisted observation event. Readings are append-only:
// the core never updates or deletes them.
type Reading struct {
	ID               int64     `json:"id"`
	SensorID         int64     `json:"sensor_id"`
	DeviceID         string    `json:"device_id"`
	Timestamp        time.Time `json:"timestamp"`
	ServerReceivedAt time.Time `json:"server_received_at"`

	Quantities

	Battery   *float64 `json:"battery,omitempty"`
	Signal    *float64 `json:"signal,omitempty"`
	ErrorCode string   `json:"error_code,omitempty"`

	AqiCategory AqiCategory `json:"aqi_category,omitempty"`
	AqiRule     string      `json:"aqi_rule,omitempty"`

	// Legacy batch-path fields: one generic value plus free-text location.
	Value         *float64 `json:"value,omitempty"`
	Location      string   `json:"location,omitempty"`
	TransportType string   `json:"transport_type,omitempty"`

	Fingerprint string `json:"-"`
}

// ValidationOutcome aggregates the result of validating one structured
// payload. Errors block ingestion; warnings never do.
type ValidationOutcome struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
