package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

// ErrDuplicateFingerprint reports that a reading with the same content
// fingerprint has already been ingested. It marks an idempotent replay of a
// retried device transmission, not a failure.
var ErrDuplicateFingerprint = errors.New("reading fingerprint already ingested")

// Fingerprint derives the content identity hash used for idempotent
// deduplication on the structured ingestion path. It covers the device
// identifier, the raw timestamp string, and a fixed subset of quantities
// (PM2.5, CO2, temperature): two payloads agreeing on those fields fingerprint
// identically regardless of JSON field ordering or other quantities present.
//
// The digest is for replay detection, not integrity: resubmitting an
// identical payload after a timeout must be recognizable as the same reading.
func Fingerprint(p ReadingPayload) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s",
		p.DeviceID,
		p.Timestamp,
		encodeQuantity(p.Readings.PM25),
		encodeQuantity(p.Readings.CO2),
		encodeQuantity(p.Readings.Temp),
	)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// encodeQuantity renders an optional value canonically. Absent fields encode
// as "-" so a missing quantity never collides with a reported zero.
func encodeQuantity(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
