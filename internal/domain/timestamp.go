package domain

import (
	"fmt"
	"time"
)

// TimestampPolicy bounds how far a device-reported observation time may drift
// from server time. The past bound rejects stale backlog dumps; the future
// bound tolerates forward clock drift on cheap embedded clocks.
type TimestampPolicy struct {
	MaxPast   time.Duration
	MaxFuture time.Duration
}

// DefaultTimestampPolicy accepts observation times from 5 minutes in the past
// through 1 hour in the future.
func DefaultTimestampPolicy() TimestampPolicy {
	return TimestampPolicy{
		MaxPast:   5 * time.Minute,
		MaxFuture: time.Hour,
	}
}

// Validate parses a device-supplied RFC 3339 timestamp and checks it against
// the freshness window relative to the current server time. A nil return
// means the timestamp is acceptable.
func (p TimestampPolicy) Validate(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format")
	}

	now := clock.Now()
	if ts.Before(now.Add(-p.MaxPast)) {
		return time.Time{}, fmt.Errorf("timestamp is too old (more than %s ago)", p.MaxPast)
	}
	if ts.After(now.Add(p.MaxFuture)) {
		return time.Time{}, fmt.Errorf("timestamp is in the future (more than %s ahead)", p.MaxFuture)
	}

	return ts, nil
}
