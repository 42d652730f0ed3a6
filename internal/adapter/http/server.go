// Package http exposes the device-facing ingestion endpoints, the read-side
// query API, and the health, readiness, and metrics routes.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abnzrdev/tynys-ingest/internal/domain"
	"github.com/abnzrdev/tynys-ingest/internal/pipeline"
	"github.com/abnzrdev/tynys-ingest/internal/store"
)

// Ingestor accepts wire payloads on both ingestion paths.
type Ingestor interface {
	IngestBatch(ctx context.Context, body string) (pipeline.BatchSummary, error)
	IngestStructured(ctx context.Context, payload domain.ReadingPayload) (pipeline.StructuredResult, error)
}

// QueryStore serves the read-side projections over persisted readings.
type QueryStore interface {
	LatestReadings(ctx context.Context, limit int) ([]store.LatestReading, error)
	DeviceReadings(ctx context.Context, deviceID string, from, to time.Time) ([]domain.Reading, error)
	Rollups(ctx context.Context, deviceID string, bucket store.Bucket, from, to time.Time) ([]store.Rollup, error)
	SensorsWithinRadius(ctx context.Context, lat, lon, radiusKM float64) ([]store.NearbySensor, error)
	ReadingsExceeding(ctx context.Context, f store.ExceedFilter) ([]store.ExceedingReading, error)
	LowBatterySensors(ctx context.Context, threshold float64) ([]store.LowBatterySensor, error)
}

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the ingestion and query HTTP API.
type Server struct {
	httpServer *http.Server
	ingestor   Ingestor
	queries    QueryStore
	db         Pinger
	secret     string
	logger     *slog.Logger
}

// NewServer creates the HTTP server and wires all routes. secret is the
// shared bearer credential required on the ingestion endpoints; when empty,
// those endpoints refuse all traffic with a generic server error.
func NewServer(addr string, ingestor Ingestor, queries QueryStore, db Pinger, secret string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		ingestor: ingestor,
		queries:  queries,
		db:       db,
		secret:   secret,
		logger:   logger,
	}

	mux.HandleFunc("POST /api/ingest", s.handleBatchIngest)
	mux.HandleFunc("POST /api/v1/sensor-data", s.handleStructuredIngest)

	mux.HandleFunc("GET /api/v1/readings/latest", s.handleLatestReadings)
	mux.HandleFunc("GET /api/v1/readings/exceeding", s.handleReadingsExceeding)
	mux.HandleFunc("GET /api/v1/sensors/nearby", s.handleSensorsNearby)
	mux.HandleFunc("GET /api/v1/sensors/low-battery", s.handleLowBattery)
	mux.HandleFunc("GET /api/v1/sensors/{deviceID}/readings", s.handleDeviceReadings)
	mux.HandleFunc("GET /api/v1/sensors/{deviceID}/rollups", s.handleRollups)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}
