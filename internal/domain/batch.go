package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	batchHeaderShort = "timestamp,sensor_id,value"
	batchHeaderLong  = "timestamp,sensor_id,value,location,transport_type"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// BatchRecord is one structurally valid row from a delimited-text batch.
// Only well-formedness is guaranteed here; plausibility and policy checks
// happen downstream during persistence.
type BatchRecord struct {
	Timestamp     time.Time
	SensorID      string
	Value         float64
	Location      string
	TransportType string
}

// SkippedLine records one rejected input line with its 1-based line number
// and the reason it was skipped.
type SkippedLine struct {
	LineNumber int    `json:"lineNumber"`
	Line       string `json:"line"`
	Reason     string `json:"reason"`
}

// BatchResult summarizes one parsed batch: the structurally valid records,
// the skip records, and the total number of lines seen (header and blank
// lines included).
type BatchResult struct {
	Records    []BatchRecord
	Skipped    []SkippedLine
	TotalLines int
}

// ParseBatch parses a newline-delimited text batch with an advisory header
// line and either 3 fields (timestamp, sensor_id, value) or 5 fields (adding
// location, transport_type).
//
// Each line is evaluated independently: a malformed line becomes a skip entry
// and parsing continues, so one bad row never poisons a batch. Blank lines
// are ignored silently. The header is matched case- and whitespace-
// insensitively; a non-matching header is itself recorded as a skip, but the
// data rows after it are still parsed.
func ParseBatch(text string) BatchResult {
	var result BatchResult
	headerSeen := false

	for _, line := range strings.Split(text, "\n") {
		result.TotalLines++
		line = strings.TrimSpace(line)

		if line == "" {
			continue
		}

		if !headerSeen {
			headerSeen = true
			normalized := whitespaceRe.ReplaceAllString(strings.ToLower(line), "")
			if normalized != batchHeaderShort && normalized != batchHeaderLong {
				result.Skipped = append(result.Skipped, SkippedLine{
					LineNumber: result.TotalLines,
					Line:       line,
					Reason:     fmt.Sprintf("invalid header, expected %q or %q", batchHeaderShort, batchHeaderLong),
				})
			}
			continue
		}

		record, reason := parseBatchLine(line)
		if reason != "" {
			result.Skipped = append(result.Skipped, SkippedLine{
				LineNumber: result.TotalLines,
				Line:       line,
				Reason:     reason,
			})
			continue
		}
		result.Records = append(result.Records, record)
	}

	return result
}

// parseBatchLine validates one data row. It returns a zero record and a
// non-empty reason on the first structural problem found.
func parseBatchLine(line string) (BatchRecord, string) {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) != 3 && len(parts) != 5 {
		return BatchRecord{}, fmt.Sprintf("invalid number of fields, expected 3 or 5, got %d", len(parts))
	}

	ts, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return BatchRecord{}, fmt.Sprintf("invalid ISO-8601 timestamp %q", parts[0])
	}

	if parts[1] == "" {
		return BatchRecord{}, "empty sensor_id"
	}

	value, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return BatchRecord{}, fmt.Sprintf("invalid numeric value %q", parts[2])
	}

	record := BatchRecord{
		Timestamp: ts,
		SensorID:  parts[1],
		Value:     value,
	}
	if len(parts) == 5 {
		record.Location = parts[3]
		record.TransportType = parts[4]
	}
	return record, ""
}
