// Package domain models air-quality telemetry from untrusted field devices.
//
// # Wire Formats
//
// Devices report over two formats. Legacy loggers upload delimited-text
// batches with an advisory header and either 3 or 5 comma-separated fields:
//
//	timestamp,sensor_id,value
//	timestamp,sensor_id,value,location,transport_type
//
// Timestamps are RFC 3339. The header is matched case- and whitespace-
// insensitively; a bad header is recorded as a skip but does not abort the
// batch. Each data line stands alone: malformed lines become skip entries
// with a line number and reason while the rest of the batch proceeds.
// See [ParseBatch].
//
// Current-generation devices send one structured JSON payload per
// observation: a device identifier, an optional site name, a timestamp, a
// sparse map of measured quantities, and optional device telemetry (battery,
// signal, firmware, error code). The payload is validated as a unit by
// [StructuredValidator]: any hard error rejects it whole.
//
// # Plausibility Ranges
//
// Each quantity has a fixed [min, max] interval reflecting physical sensor
// limits (humidity 0-100 %, CO2 300-5000 ppm, and so on; see
// [DefaultRanges]). Values strictly outside the interval are invalid. Values
// at or above 90 % of the interval ceiling are valid but flagged with a
// near-saturation warning, so degrading sensors surface in monitoring
// without their data being discarded. NaN and infinities are always invalid.
//
// # Timestamp Freshness
//
// Device clocks are cheap and drift. [TimestampPolicy] accepts observation
// times from 5 minutes in the past (rejecting stale backlog dumps) through
// 1 hour in the future (tolerating forward drift), relative to server time.
//
// # Deduplication
//
// Field devices retry on timeouts, so the same observation can arrive twice.
// [Fingerprint] hashes the device identifier, the raw timestamp string, and
// a fixed quantity subset (PM2.5, CO2, temperature) into a stable SHA-256
// digest. A repeat fingerprint means "already ingested", never an error.
//
// # AQI Classification
//
// [AqiThresholds.Classify] maps particulate concentrations to a coarse
// exposure band (low, medium, high, unknown). The high band requires a
// strict exceedance, so a reading exactly at the high threshold classifies
// as medium.
package domain
