package domain

import (
	"fmt"
	"math"
)

// AqiCategory is the coarse exposure band derived from particulate readings.
type AqiCategory string

const (
	AqiLow     AqiCategory = "low"
	AqiMedium  AqiCategory = "medium"
	AqiHigh    AqiCategory = "high"
	AqiUnknown AqiCategory = "unknown"
)

// AqiThresholds holds the particulate concentration bands (μg/m³) separating
// the exposure categories. Injected rather than read from package state so
// deployments can tune bands without code changes.
type AqiThresholds struct {
	PM25Medium float64
	PM25High   float64
	PM10Medium float64
	PM10High   float64
}

// DefaultAqiThresholds returns the stock classification bands.
func DefaultAqiThresholds() AqiThresholds {
	return AqiThresholds{
		PM25Medium: 25,
		PM25High:   50,
		PM10Medium: 50,
		PM10High:   100,
	}
}

// Classify maps optional PM2.5 and PM10 concentrations to an exposure
// category plus the rule text that produced it. First match wins: high
// (strictly above the high threshold), then the inclusive medium band, then
// low when every supplied pollutant sits below its medium threshold.
// With neither pollutant supplied the category is unknown.
//
// Boundary behavior is deliberate: a value exactly at the high threshold
// falls in the medium band, since high requires a strict exceedance.
func (t AqiThresholds) Classify(pm25, pm10 *float64) (AqiCategory, string) {
	hasPM25 := isFinite(pm25)
	hasPM10 := isFinite(pm10)

	if (hasPM25 && *pm25 > t.PM25High) || (hasPM10 && *pm10 > t.PM10High) {
		return AqiHigh, fmt.Sprintf("PM2.5 > %g or PM10 > %g", t.PM25High, t.PM10High)
	}

	inMediumBand := (hasPM25 && *pm25 >= t.PM25Medium && *pm25 <= t.PM25High) ||
		(hasPM10 && *pm10 >= t.PM10Medium && *pm10 <= t.PM10High)
	if inMediumBand {
		return AqiMedium, fmt.Sprintf("PM2.5 %g-%g or PM10 %g-%g",
			t.PM25Medium, t.PM25High, t.PM10Medium, t.PM10High)
	}

	if hasPM25 || hasPM10 {
		pm25LowOK := !hasPM25 || *pm25 < t.PM25Medium
		pm10LowOK := !hasPM10 || *pm10 < t.PM10Medium
		if pm25LowOK && pm10LowOK {
			return AqiLow, fmt.Sprintf("PM2.5 < %g and PM10 < %g", t.PM25Medium, t.PM10Medium)
		}
	}

	return AqiUnknown, "insufficient particulate data"
}

func isFinite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
