package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/abnzrdev/tynys-ingest/internal/adapter/http"
	"github.com/abnzrdev/tynys-ingest/internal/domain"
	"github.com/abnzrdev/tynys-ingest/internal/pipeline"
	"github.com/abnzrdev/tynys-ingest/internal/store"
)

const testSecret = "test-device-secret"

// --- stubs ---

type stubIngestor struct {
	batchSummary pipeline.BatchSummary
	batchErr     error

	structuredResult pipeline.StructuredResult
	structuredErr    error

	gotBody    string
	gotPayload domain.ReadingPayload
}

func (s *stubIngestor) IngestBatch(_ context.Context, body string) (pipeline.BatchSummary, error) {
	s.gotBody = body
	return s.batchSummary, s.batchErr
}

func (s *stubIngestor) IngestStructured(_ context.Context, payload domain.ReadingPayload) (pipeline.StructuredResult, error) {
	s.gotPayload = payload
	return s.structuredResult, s.structuredErr
}

type stubQueries struct {
	latest    []store.LatestReading
	device    []domain.Reading
	rollups   []store.Rollup
	nearby    []store.NearbySensor
	exceeding []store.ExceedingReading
	battery   []store.LowBatterySensor
	err       error

	gotLimit     int
	gotDeviceID  string
	gotBucket    store.Bucket
	gotFilter    store.ExceedFilter
	gotThreshold float64
	gotLat       float64
	gotLon       float64
	gotRadius    float64
}

func (s *stubQueries) LatestReadings(_ context.Context, limit int) ([]store.LatestReading, error) {
	s.gotLimit = limit
	return s.latest, s.err
}

func (s *stubQueries) DeviceReadings(_ context.Context, deviceID string, _, _ time.Time) ([]domain.Reading, error) {
	s.gotDeviceID = deviceID
	return s.device, s.err
}

func (s *stubQueries) Rollups(_ context.Context, deviceID string, bucket store.Bucket, _, _ time.Time) ([]store.Rollup, error) {
	s.gotDeviceID = deviceID
	s.gotBucket = bucket
	return s.rollups, s.err
}

func (s *stubQueries) SensorsWithinRadius(_ context.Context, lat, lon, radiusKM float64) ([]store.NearbySensor, error) {
	s.gotLat, s.gotLon, s.gotRadius = lat, lon, radiusKM
	return s.nearby, s.err
}

func (s *stubQueries) ReadingsExceeding(_ context.Context, f store.ExceedFilter) ([]store.ExceedingReading, error) {
	s.gotFilter = f
	return s.exceeding, s.err
}

func (s *stubQueries) LowBatterySensors(_ context.Context, threshold float64) ([]store.LowBatterySensor, error) {
	s.gotThreshold = threshold
	return s.battery, s.err
}

type stubPinger struct{ err error }

func (s *stubPinger) Ping(context.Context) error { return s.err }

func newTestServer(ingestor httpadapter.Ingestor, queries httpadapter.QueryStore, db httpadapter.Pinger, secret string) *httpadapter.Server {
	if ingestor == nil {
		ingestor = &stubIngestor{}
	}
	if queries == nil {
		queries = &stubQueries{}
	}
	if db == nil {
		db = &stubPinger{}
	}
	return httpadapter.NewServer(":0", ingestor, queries, db, secret, slog.Default())
}

func doRequest(t *testing.T, srv *httpadapter.Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// --- auth ---

func TestIngestAuth(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, testSecret)
		rec := doRequest(t, srv, http.MethodPost, "/api/ingest", "", "data")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, decodeBody(t, rec)["error"], "Missing Authorization header")
	})

	t.Run("wrong token", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, testSecret)
		rec := doRequest(t, srv, http.MethodPost, "/api/ingest", "wrong", "data")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, decodeBody(t, rec)["error"], "Invalid credentials")
	})

	t.Run("token without bearer prefix accepted", func(t *testing.T) {
		ing := &stubIngestor{}
		srv := newTestServer(ing, nil, nil, testSecret)

		req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader("timestamp,sensor_id,value"))
		req.Header.Set("Authorization", testSecret)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unset secret is a server error", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, "")
		rec := doRequest(t, srv, http.MethodPost, "/api/ingest", testSecret, "data")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Server configuration error", decodeBody(t, rec)["error"])
	})

	t.Run("both ingest routes require auth", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, testSecret)
		rec := doRequest(t, srv, http.MethodPost, "/api/v1/sensor-data", "", "{}")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("query routes need no auth", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, testSecret)
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/readings/latest", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

// --- batch ingest ---

func TestHandleBatchIngest(t *testing.T) {
	t.Run("success with summary", func(t *testing.T) {
		ing := &stubIngestor{batchSummary: pipeline.BatchSummary{
			TotalLines:   4,
			ValidRecords: 2,
			Skipped: []domain.SkippedLine{
				{LineNumber: 3, Line: "bad", Reason: `invalid numeric value "x"`},
			},
			Inserted: 2,
		}}
		srv := newTestServer(ing, nil, nil, testSecret)

		rec := doRequest(t, srv, http.MethodPost, "/api/ingest", testSecret,
			"timestamp,sensor_id,value\n2025-03-15T12:00:00Z,dev-001,1")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		summary := body["summary"].(map[string]any)
		assert.Equal(t, float64(4), summary["totalLines"])
		assert.Equal(t, float64(2), summary["validReadings"])
		assert.Equal(t, float64(1), summary["skippedLines"])
		assert.Equal(t, float64(2), summary["inserted"])
		require.Len(t, summary["errors"], 1)
	})

	t.Run("no errors key on a clean batch", func(t *testing.T) {
		ing := &stubIngestor{batchSummary: pipeline.BatchSummary{TotalLines: 2, ValidRecords: 1, Inserted: 1}}
		srv := newTestServer(ing, nil, nil, testSecret)

		rec := doRequest(t, srv, http.MethodPost, "/api/ingest", testSecret, "data")

		summary := decodeBody(t, rec)["summary"].(map[string]any)
		assert.NotContains(t, summary, "errors")
	})

	t.Run("empty body", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, testSecret)
		rec := doRequest(t, srv, http.MethodPost, "/api/ingest", testSecret, "   \n  ")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Empty request body", decodeBody(t, rec)["error"])
	})

	t.Run("storage failure hides partial progress", func(t *testing.T) {
		ing := &stubIngestor{batchErr: &pipeline.PersistenceError{Err: errors.New("disk full")}}
		srv := newTestServer(ing, nil, nil, testSecret)

		rec := doRequest(t, srv, http.MethodPost, "/api/ingest", testSecret, "data")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "Failed to store sensor readings", body["error"])
		assert.NotContains(t, body, "summary")
	})
}

// --- structured ingest ---

func TestHandleStructuredIngest(t *testing.T) {
	payload := `{"device_id":"dev-001","timestamp":"2025-03-15T12:00:00Z","readings":{"pm25":42.5}}`

	t.Run("created", func(t *testing.T) {
		ing := &stubIngestor{structuredResult: pipeline.StructuredResult{
			ReadingID: 7,
			SensorID:  3,
			DeviceID:  "dev-001",
			Timestamp: "2025-03-15T12:00:00Z",
		}}
		srv := newTestServer(ing, nil, nil, testSecret)

		rec := doRequest(t, srv, http.MethodPost, "/api/v1/sensor-data", testSecret, payload)

		assert.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		data := body["data"].(map[string]any)
		assert.Equal(t, float64(7), data["readingId"])
		assert.Equal(t, "dev-001", data["deviceId"])
		assert.NotContains(t, body, "warnings")
		assert.Equal(t, "dev-001", ing.gotPayload.DeviceID)
	})

	t.Run("created with warnings", func(t *testing.T) {
		ing := &stubIngestor{structuredResult: pipeline.StructuredResult{
			ReadingID: 7,
			Warnings:  []string{"pm25 is near maximum range (950 of 1000)"},
		}}
		srv := newTestServer(ing, nil, nil, testSecret)

		rec := doRequest(t, srv, http.MethodPost, "/api/v1/sensor-data", testSecret, payload)

		assert.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, decodeBody(t, rec)["warnings"], 1)
	})

	t.Run("duplicate is 200 not 201", func(t *testing.T) {
		ing := &stubIngestor{structuredResult: pipeline.StructuredResult{Duplicate: true}}
		srv := newTestServer(ing, nil, nil, testSecret)

		rec := doRequest(t, srv, http.MethodPost, "/api/v1/sensor-data", testSecret, payload)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["duplicate"])
		assert.NotContains(t, body, "data")
	})

	t.Run("validation failure itemizes errors", func(t *testing.T) {
		ing := &stubIngestor{structuredErr: &pipeline.ValidationError{
			Outcome: domain.ValidationOutcome{
				Errors:   []string{"co2 (6000) exceeds maximum (5000)"},
				Warnings: []string{"pm25 is near maximum range (950 of 1000)"},
			},
		}}
		srv := newTestServer(ing, nil, nil, testSecret)

		rec := doRequest(t, srv, http.MethodPost, "/api/v1/sensor-data", testSecret, payload)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "Validation failed", body["error"])
		require.Len(t, body["errors"], 1)
		require.Len(t, body["warnings"], 1)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, testSecret)
		rec := doRequest(t, srv, http.MethodPost, "/api/v1/sensor-data", testSecret, "{not json")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid JSON in request body", decodeBody(t, rec)["error"])
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, testSecret)
		rec := doRequest(t, srv, http.MethodPost, "/api/v1/sensor-data", testSecret,
			`{"device_id":"dev-001","timestamp":"2025-03-15T12:00:00Z","surprise":1}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("persistence failure", func(t *testing.T) {
		ing := &stubIngestor{structuredErr: &pipeline.PersistenceError{Err: errors.New("deadlock")}}
		srv := newTestServer(ing, nil, nil, testSecret)

		rec := doRequest(t, srv, http.MethodPost, "/api/v1/sensor-data", testSecret, payload)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal server error", decodeBody(t, rec)["error"])
	})
}

// --- query routes ---

func TestQueryHandlers(t *testing.T) {
	t.Run("latest readings default limit", func(t *testing.T) {
		q := &stubQueries{latest: []store.LatestReading{{ReadingID: 1, DeviceID: "dev-001"}}}
		srv := newTestServer(nil, q, nil, testSecret)

		rec := doRequest(t, srv, http.MethodGet, "/api/v1/readings/latest", "", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 50, q.gotLimit)
		assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
	})

	t.Run("latest readings limit clamped", func(t *testing.T) {
		q := &stubQueries{}
		srv := newTestServer(nil, q, nil, testSecret)

		doRequest(t, srv, http.MethodGet, "/api/v1/readings/latest?limit=9999", "", "")
		assert.Equal(t, 500, q.gotLimit)
	})

	t.Run("latest readings bad limit", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, testSecret)
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/readings/latest?limit=-1", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("device readings", func(t *testing.T) {
		q := &stubQueries{device: []domain.Reading{{ID: 1}, {ID: 2}}}
		srv := newTestServer(nil, q, nil, testSecret)

		rec := doRequest(t, srv, http.MethodGet, "/api/v1/sensors/dev-001/readings", "", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "dev-001", q.gotDeviceID)
		assert.Equal(t, float64(2), decodeBody(t, rec)["count"])
	})

	t.Run("device readings inverted range", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, testSecret)
		rec := doRequest(t, srv, http.MethodGet,
			"/api/v1/sensors/dev-001/readings?from=2025-03-15T12:00:00Z&to=2025-03-15T11:00:00Z", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rollups default to hourly", func(t *testing.T) {
		q := &stubQueries{}
		srv := newTestServer(nil, q, nil, testSecret)

		rec := doRequest(t, srv, http.MethodGet, "/api/v1/sensors/dev-001/rollups", "", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, store.BucketHour, q.gotBucket)
	})

	t.Run("rollups reject unknown bucket", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, testSecret)
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/sensors/dev-001/rollups?bucket=week", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("nearby sensors", func(t *testing.T) {
		q := &stubQueries{nearby: []store.NearbySensor{{DeviceID: "dev-001", DistanceKM: 2.4}}}
		srv := newTestServer(nil, q, nil, testSecret)

		rec := doRequest(t, srv, http.MethodGet,
			"/api/v1/sensors/nearby?lat=43.238&lon=76.945&radius_km=5", "", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 43.238, q.gotLat)
		assert.Equal(t, 76.945, q.gotLon)
		assert.Equal(t, 5.0, q.gotRadius)
	})

	t.Run("nearby sensors validate coordinates", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, testSecret)
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/sensors/nearby?lat=91&lon=0", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doRequest(t, srv, http.MethodGet, "/api/v1/sensors/nearby?lat=0&lon=181", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("exceeding readings require a threshold", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, testSecret)
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/readings/exceeding", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("exceeding readings pass thresholds through", func(t *testing.T) {
		q := &stubQueries{}
		srv := newTestServer(nil, q, nil, testSecret)

		rec := doRequest(t, srv, http.MethodGet, "/api/v1/readings/exceeding?pm25=50&co2=1000", "", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, q.gotFilter.PM25)
		assert.Equal(t, 50.0, *q.gotFilter.PM25)
		require.NotNil(t, q.gotFilter.CO2)
		assert.Nil(t, q.gotFilter.PM10)
	})

	t.Run("low battery default threshold", func(t *testing.T) {
		q := &stubQueries{}
		srv := newTestServer(nil, q, nil, testSecret)

		rec := doRequest(t, srv, http.MethodGet, "/api/v1/sensors/low-battery", "", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 20.0, q.gotThreshold)
	})

	t.Run("query failure is a 500", func(t *testing.T) {
		q := &stubQueries{err: errors.New("timeout")}
		srv := newTestServer(nil, q, nil, testSecret)

		rec := doRequest(t, srv, http.MethodGet, "/api/v1/readings/latest", "", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

// --- health ---

func TestHealthRoutes(t *testing.T) {
	t.Run("healthz always ok", func(t *testing.T) {
		srv := newTestServer(nil, nil, &stubPinger{err: errors.New("down")}, testSecret)
		rec := doRequest(t, srv, http.MethodGet, "/healthz", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz reflects database health", func(t *testing.T) {
		srv := newTestServer(nil, nil, &stubPinger{}, testSecret)
		rec := doRequest(t, srv, http.MethodGet, "/readyz", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		srv = newTestServer(nil, nil, &stubPinger{err: errors.New("no route to host")}, testSecret)
		rec = doRequest(t, srv, http.MethodGet, "/readyz", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "not ready", decodeBody(t, rec)["status"])
	})
}
