package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/abnzrdev/tynys-ingest/internal/store"
)

const (
	defaultLatestLimit = 50
	maxLatestLimit     = 500
)

func (s *Server) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	limit := defaultLatestLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		if n > maxLatestLimit {
			n = maxLatestLimit
		}
		limit = n
	}

	readings, err := s.queries.LatestReadings(r.Context(), limit)
	if err != nil {
		s.logger.Error("latest readings query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(readings), "readings": readings})
}

func (s *Server) handleDeviceReadings(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")

	from, to, ok := parseTimeRange(w, r)
	if !ok {
		return
	}

	readings, err := s.queries.DeviceReadings(r.Context(), deviceID, from, to)
	if err != nil {
		s.logger.Error("device readings query failed", "device_id", deviceID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deviceId": deviceID,
		"count":    len(readings),
		"readings": readings,
	})
}

func (s *Server) handleRollups(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")

	bucket := store.Bucket(r.URL.Query().Get("bucket"))
	if bucket == "" {
		bucket = store.BucketHour
	}
	if bucket != store.BucketHour && bucket != store.BucketDay {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bucket must be 'hour' or 'day'"})
		return
	}

	from, to, ok := parseTimeRange(w, r)
	if !ok {
		return
	}

	rollups, err := s.queries.Rollups(r.Context(), deviceID, bucket, from, to)
	if err != nil {
		s.logger.Error("rollups query failed", "device_id", deviceID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deviceId": deviceID,
		"bucket":   bucket,
		"count":    len(rollups),
		"rollups":  rollups,
	})
}

func (s *Server) handleSensorsNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lat must be a number between -90 and 90"})
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lon must be a number between -180 and 180"})
		return
	}

	radiusKM := 10.0
	if raw := q.Get("radius_km"); raw != "" {
		radiusKM, err = strconv.ParseFloat(raw, 64)
		if err != nil || radiusKM <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "radius_km must be a positive number"})
			return
		}
	}

	sensors, err := s.queries.SensorsWithinRadius(r.Context(), lat, lon, radiusKM)
	if err != nil {
		s.logger.Error("nearby sensors query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(sensors), "sensors": sensors})
}

func (s *Server) handleReadingsExceeding(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f store.ExceedFilter
	for _, p := range []struct {
		name string
		dst  **float64
	}{
		{"pm25", &f.PM25},
		{"pm10", &f.PM10},
		{"co2", &f.CO2},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": p.name + " must be a number"})
			return
		}
		*p.dst = &v
	}
	if f.PM25 == nil && f.PM10 == nil && f.CO2 == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one threshold (pm25, pm10, co2) is required",
		})
		return
	}

	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be an RFC 3339 timestamp"})
			return
		}
		f.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to must be an RFC 3339 timestamp"})
			return
		}
		f.To = &t
	}

	readings, err := s.queries.ReadingsExceeding(r.Context(), f)
	if err != nil {
		s.logger.Error("exceeding readings query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(readings), "readings": readings})
}

func (s *Server) handleLowBattery(w http.ResponseWriter, r *http.Request) {
	threshold := 20.0
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 100 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "threshold must be a percentage between 0 and 100"})
			return
		}
		threshold = v
	}

	sensors, err := s.queries.LowBatterySensors(r.Context(), threshold)
	if err != nil {
		s.logger.Error("low battery query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"threshold": threshold,
		"count":     len(sensors),
		"sensors":   sensors,
	})
}

// parseTimeRange reads optional from/to query params, defaulting to the last
// 24 hours. It writes the error response itself and returns ok=false on bad
// input.
func parseTimeRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	q := r.URL.Query()
	now := time.Now().UTC()
	from, to = now.Add(-24*time.Hour), now

	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be an RFC 3339 timestamp"})
			return from, to, false
		}
		from = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to must be an RFC 3339 timestamp"})
			return from, to, false
		}
		to = t
	}
	if !from.Before(to) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be earlier than to"})
		return from, to, false
	}
	return from, to, true
}
