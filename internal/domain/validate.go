package domain

import (
	"fmt"
	"math"
)

// Range is the physically plausible [Min, Max] interval for one measured
// quantity. Values strictly outside it are rejected; values in the top of the
// interval are accepted with a near-saturation warning.
type Range struct {
	Min float64
	Max float64
}

// Ranges maps quantity names to their plausibility intervals. The table is
// built once at startup and injected wherever range checks happen, so
// deployments can vary limits without code changes.
type Ranges map[string]Range

// DefaultRanges returns the stock plausibility table. Limits reflect the
// physical measurement ranges of common low-cost air-quality sensor modules.
func DefaultRanges() Ranges {
	return Ranges{
		"pm1":      {Min: 0, Max: 1000},  // μg/m³
		"pm25":     {Min: 0, Max: 1000},  // μg/m³
		"pm10":     {Min: 0, Max: 1000},  // μg/m³
		"co2":      {Min: 300, Max: 5000}, // ppm
		"co":       {Min: 0, Max: 100},   // ppm
		"o3":       {Min: 0, Max: 500},   // ppb
		"no2":      {Min: 0, Max: 500},   // ppb
		"voc":      {Min: 0, Max: 100},   // ppm
		"ch2o":     {Min: 0, Max: 10},    // ppm
		"temp":     {Min: -40, Max: 60},  // °C
		"hum":      {Min: 0, Max: 100},   // %
		"pressure": {Min: 800, Max: 1200}, // hPa
		"battery":  {Min: 0, Max: 100},   // %
		"signal":   {Min: -120, Max: 0},  // dBm
	}
}

// RangeStatus classifies a single quantity check.
type RangeStatus int

const (
	// RangeAbsent means the quantity was not supplied. Devices report
	// heterogeneous subsets, so absence is always acceptable.
	RangeAbsent RangeStatus = iota
	// RangeValid means the value is inside the plausibility interval.
	RangeValid
	// RangeWarning means the value is valid but near the interval ceiling,
	// a possible sensor-saturation signal. Does not block ingestion.
	RangeWarning
	// RangeInvalid means the value is outside the interval or not a finite
	// number. Blocks ingestion of the payload.
	RangeInvalid
)

// RangeResult is the outcome of checking one quantity. Message carries the
// rejection reason for RangeInvalid or the notice for RangeWarning.
type RangeResult struct {
	Status  RangeStatus
	Message string
}

// Check classifies an optional value for the named quantity. Quantities with
// no configured range are accepted as-is: the table is a policy allowlist of
// known limits, not a registry of every field.
func (rs Ranges) Check(name string, value *float64) RangeResult {
	if value == nil {
		return RangeResult{Status: RangeAbsent}
	}

	v := *value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return RangeResult{
			Status:  RangeInvalid,
			Message: fmt.Sprintf("%s must be a valid number", name),
		}
	}

	r, ok := rs[name]
	if !ok {
		return RangeResult{Status: RangeValid}
	}

	if v < r.Min {
		return RangeResult{
			Status:  RangeInvalid,
			Message: fmt.Sprintf("%s (%v) is below minimum (%v)", name, v, r.Min),
		}
	}
	if v > r.Max {
		return RangeResult{
			Status:  RangeInvalid,
			Message: fmt.Sprintf("%s (%v) exceeds maximum (%v)", name, v, r.Max),
		}
	}

	// Near-saturation band: valid but worth surfacing so operators can watch
	// sensor degradation without losing usable data.
	if v >= r.Max*0.9 {
		return RangeResult{
			Status:  RangeWarning,
			Message: fmt.Sprintf("%s is near maximum range (%v of %v)", name, v, r.Max),
		}
	}

	return RangeResult{Status: RangeValid}
}
