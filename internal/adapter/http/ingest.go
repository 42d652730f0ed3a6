package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/abnzrdev/tynys-ingest/internal/domain"
	"github.com/abnzrdev/tynys-ingest/internal/pipeline"
)

// authorize checks the bearer credential on an ingestion request. It writes
// the error response itself and returns false when the request must not
// proceed. An unset server secret is a deployment fault and surfaces as a
// generic server error, indistinguishable from other 500s by design.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if s.secret == "" {
		s.logger.Error("ingest device secret is not configured")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Server configuration error",
		})
		return false
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized - Missing Authorization header",
		})
		return false
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token != s.secret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized - Invalid credentials",
		})
		return false
	}

	return true
}

// handleBatchIngest accepts a raw delimited-text batch. Skipped lines are
// partial success, reported in the summary with a 200; only an empty body
// (400) or a storage failure (500, no partial summary) is an error.
func (s *Server) handleBatchIngest(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read request body"})
		return
	}
	if strings.TrimSpace(string(body)) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Empty request body"})
		return
	}

	summary, err := s.ingestor.IngestBatch(r.Context(), string(body))
	if err != nil {
		s.logger.Error("batch ingest failed", "request_id", requestID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Failed to store sensor readings",
		})
		return
	}

	resp := map[string]any{
		"success": true,
		"message": "Data ingested successfully",
		"summary": map[string]any{
			"totalLines":    summary.TotalLines,
			"validReadings": summary.ValidRecords,
			"skippedLines":  len(summary.Skipped),
			"inserted":      summary.Inserted,
		},
	}
	if len(summary.Skipped) > 0 {
		resp["summary"].(map[string]any)["errors"] = summary.Skipped
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStructuredIngest accepts one JSON payload. Decoding fails closed:
// unknown fields and type mismatches are structural errors, same as missing
// required fields.
func (s *Server) handleStructuredIngest(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	var payload domain.ReadingPayload
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON in request body"})
		return
	}

	result, err := s.ingestor.IngestStructured(r.Context(), payload)
	if err != nil {
		var vErr *pipeline.ValidationError
		if errors.As(err, &vErr) {
			resp := map[string]any{
				"error":  "Validation failed",
				"errors": vErr.Outcome.Errors,
			}
			if len(vErr.Outcome.Warnings) > 0 {
				resp["warnings"] = vErr.Outcome.Warnings
			}
			writeJSON(w, http.StatusBadRequest, resp)
			return
		}

		s.logger.Error("structured ingest failed", "request_id", requestID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	if result.Duplicate {
		resp := map[string]any{
			"success":   true,
			"message":   "Duplicate reading detected and skipped",
			"duplicate": true,
		}
		if len(result.Warnings) > 0 {
			resp["warnings"] = result.Warnings
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp := map[string]any{
		"success": true,
		"message": "Sensor data ingested successfully",
		"data": map[string]any{
			"readingId": result.ReadingID,
			"sensorId":  result.SensorID,
			"deviceId":  result.DeviceID,
			"timestamp": result.Timestamp,
		},
	}
	if len(result.Warnings) > 0 {
		resp["warnings"] = result.Warnings
	}
	writeJSON(w, http.StatusCreated, resp)
}
