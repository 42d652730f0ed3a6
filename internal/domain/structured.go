package domain

import "fmt"

// StructuredValidator validates one structured payload as a unit against the
// plausibility ranges and the timestamp freshness policy. The decision is
// atomic: a payload with any hard error is rejected whole, unlike the batch
// parser which accepts per-line.
type StructuredValidator struct {
	Ranges     Ranges
	Timestamps TimestampPolicy
}

// NewStructuredValidator builds a validator over the given rule tables.
func NewStructuredValidator(ranges Ranges, policy TimestampPolicy) StructuredValidator {
	return StructuredValidator{Ranges: ranges, Timestamps: policy}
}

// Validate aggregates all checks on a payload into one outcome. IsValid is
// true iff there are no hard errors; warnings (near-saturation notices) are
// collected but never block.
func (v StructuredValidator) Validate(p ReadingPayload) ValidationOutcome {
	var outcome ValidationOutcome

	if p.DeviceID == "" {
		outcome.Errors = append(outcome.Errors, "device_id is required and must be a non-empty string")
	}

	if p.Timestamp == "" {
		outcome.Errors = append(outcome.Errors, "timestamp is required")
	} else if _, err := v.Timestamps.Validate(p.Timestamp); err != nil {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("timestamp: %s", err))
	}

	for _, f := range p.Readings.fields() {
		v.collect(&outcome, f.name, f.value)
	}

	if p.Metadata != nil {
		v.collect(&outcome, "battery", p.Metadata.Battery)
		v.collect(&outcome, "signal", p.Metadata.Signal)
	}

	outcome.IsValid = len(outcome.Errors) == 0
	return outcome
}

func (v StructuredValidator) collect(outcome *ValidationOutcome, name string, value *float64) {
	switch result := v.Ranges.Check(name, value); result.Status {
	case RangeInvalid:
		outcome.Errors = append(outcome.Errors, result.Message)
	case RangeWarning:
		outcome.Warnings = append(outcome.Warnings, result.Message)
	}
}
