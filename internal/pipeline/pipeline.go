// Package pipeline orchestrates telemetry ingestion: parse or validate a
// wire payload, deduplicate, resolve registry entities, classify, persist,
// and optionally publish. Each ingestion call runs to completion
// independently; storage uniqueness constraints resolve races between
// concurrent calls.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/abnzrdev/tynys-ingest/internal/domain"
	"github.com/abnzrdev/tynys-ingest/internal/observability"
)

// Registry resolves (or lazily creates) the Site and Sensor rows referenced
// by incoming readings.
type Registry interface {
	ResolveSite(ctx context.Context, name string) (int64, error)
	ResolveSensor(ctx context.Context, deviceID string, siteID *int64, firmware string) (domain.Sensor, error)
}

// ReadingStore persists readings and answers fingerprint lookups.
type ReadingStore interface {
	HasFingerprint(ctx context.Context, fingerprint string) (bool, error)
	InsertReading(ctx context.Context, r *domain.Reading) (int64, error)
}

// Publisher emits persisted readings to the live feed. Publishing is
// best-effort: failures never roll back an ingestion.
type Publisher interface {
	PublishReading(ctx context.Context, r domain.Reading) error
}

// Rules bundles the injected policy tables the pipeline validates against.
type Rules struct {
	Ranges     domain.Ranges
	Timestamps domain.TimestampPolicy
	Aqi        domain.AqiThresholds
}

// DefaultRules returns the stock plausibility, freshness, and AQI tables.
func DefaultRules() Rules {
	return Rules{
		Ranges:     domain.DefaultRanges(),
		Timestamps: domain.DefaultTimestampPolicy(),
		Aqi:        domain.DefaultAqiThresholds(),
	}
}

// Pipeline is the ingestion orchestrator shared by both wire formats.
type Pipeline struct {
	registry  Registry
	readings  ReadingStore
	publisher Publisher // nil when live-feed publishing is disabled
	validator domain.StructuredValidator
	rules     Rules
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Pipeline. Pass a nil publisher to disable live-feed
// publishing.
func New(registry Registry, readings ReadingStore, publisher Publisher, rules Rules, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		registry:  registry,
		readings:  readings,
		publisher: publisher,
		validator: domain.NewStructuredValidator(rules.Ranges, rules.Timestamps),
		rules:     rules,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
	}
}

// SetClock swaps the receipt-time source, used by tests.
func (p *Pipeline) SetClock(c clockwork.Clock) { p.clock = c }

// ValidationError carries the itemized outcome of a rejected structured
// payload. It maps to a 4xx-class response: the data is bad, retrying the
// same payload will not help.
type ValidationError struct {
	Outcome domain.ValidationOutcome
}

func (e *ValidationError) Error() string {
	return "payload validation failed"
}

// PersistenceError marks a storage failure, reported distinctly from
// validation failures so callers can tell "your data is bad" from "try
// again".
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "persistence failed: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// BatchSummary reports the outcome of one batch ingestion. Partial success
// is normal: skipped lines are itemized, not fatal.
type BatchSummary struct {
	TotalLines   int                  `json:"totalLines"`
	ValidRecords int                  `json:"validReadings"`
	Skipped      []domain.SkippedLine `json:"-"`
	Inserted     int                  `json:"inserted"`
}

// StructuredResult reports the outcome of one structured ingestion. A
// duplicate is a success with no new identity.
type StructuredResult struct {
	Duplicate bool
	ReadingID int64
	SensorID  int64
	DeviceID  string
	Timestamp string
	Warnings  []string
}

// IngestBatch parses a delimited-text batch and persists every structurally
// valid record, resolving sites and sensors on the way. The batch path
// applies no fingerprint deduplication: legacy uploaders are trusted not to
// resubmit, and idempotency lives at a different layer for them.
//
// A storage failure aborts with a PersistenceError and no partial summary.
func (p *Pipeline) IngestBatch(ctx context.Context, body string) (BatchSummary, error) {
	start := time.Now()

	result := domain.ParseBatch(body)
	p.metrics.BatchLines.Add(float64(result.TotalLines))
	p.metrics.BatchLinesSkipped.Add(float64(len(result.Skipped)))

	inserted := 0
	for _, rec := range result.Records {
		var siteID *int64
		if rec.Location != "" {
			id, err := p.registry.ResolveSite(ctx, rec.Location)
			if err != nil {
				p.metrics.PersistenceErrors.Inc()
				return BatchSummary{}, &PersistenceError{Err: err}
			}
			siteID = &id
		}

		sensor, err := p.registry.ResolveSensor(ctx, rec.SensorID, siteID, "")
		if err != nil {
			p.metrics.PersistenceErrors.Inc()
			return BatchSummary{}, &PersistenceError{Err: err}
		}

		value := rec.Value
		reading := domain.Reading{
			SensorID:         sensor.ID,
			DeviceID:         sensor.DeviceID,
			Timestamp:        rec.Timestamp,
			ServerReceivedAt: p.clock.Now().UTC(),
			Value:            &value,
			Location:         rec.Location,
			TransportType:    rec.TransportType,
		}
		if _, err := p.readings.InsertReading(ctx, &reading); err != nil {
			p.metrics.PersistenceErrors.Inc()
			return BatchSummary{}, &PersistenceError{Err: err}
		}
		inserted++
	}

	p.metrics.ReadingsIngested.WithLabelValues("batch").Add(float64(inserted))
	p.metrics.IngestDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())

	p.logger.Info("batch ingested",
		"total_lines", result.TotalLines,
		"valid", len(result.Records),
		"skipped", len(result.Skipped),
		"inserted", inserted,
	)

	return BatchSummary{
		TotalLines:   result.TotalLines,
		ValidRecords: len(result.Records),
		Skipped:      result.Skipped,
		Inserted:     inserted,
	}, nil
}

// IngestStructured validates one structured payload as a unit and persists
// it exactly once per content fingerprint. Resubmitting an identical payload
// (a retried device transmission) is reported as a duplicate success, never
// an error and never a second row.
func (p *Pipeline) IngestStructured(ctx context.Context, payload domain.ReadingPayload) (StructuredResult, error) {
	start := time.Now()

	outcome := p.validator.Validate(payload)
	if !outcome.IsValid {
		p.metrics.ValidationFailures.Inc()
		return StructuredResult{}, &ValidationError{Outcome: outcome}
	}

	fingerprint := domain.Fingerprint(payload)

	seen, err := p.readings.HasFingerprint(ctx, fingerprint)
	if err != nil {
		p.metrics.PersistenceErrors.Inc()
		return StructuredResult{}, &PersistenceError{Err: err}
	}
	if seen {
		p.metrics.DuplicateReadings.Inc()
		p.logger.Info("duplicate reading skipped", "device_id", payload.DeviceID, "fingerprint", fingerprint)
		return StructuredResult{Duplicate: true, Warnings: outcome.Warnings}, nil
	}

	var siteID *int64
	if payload.Site != "" {
		id, err := p.registry.ResolveSite(ctx, payload.Site)
		if err != nil {
			p.metrics.PersistenceErrors.Inc()
			return StructuredResult{}, &PersistenceError{Err: err}
		}
		siteID = &id
	}

	var firmware string
	if payload.Metadata != nil {
		firmware = payload.Metadata.Firmware
	}
	sensor, err := p.registry.ResolveSensor(ctx, payload.DeviceID, siteID, firmware)
	if err != nil {
		p.metrics.PersistenceErrors.Inc()
		return StructuredResult{}, &PersistenceError{Err: err}
	}

	// Already validated; re-parse for the persisted value.
	ts, err := p.rules.Timestamps.Validate(payload.Timestamp)
	if err != nil {
		return StructuredResult{}, &ValidationError{Outcome: domain.ValidationOutcome{
			Errors: []string{"timestamp: " + err.Error()},
		}}
	}

	category, rule := p.rules.Aqi.Classify(payload.Readings.PM25, payload.Readings.PM10)

	reading := domain.Reading{
		SensorID:         sensor.ID,
		DeviceID:         sensor.DeviceID,
		Timestamp:        ts,
		ServerReceivedAt: p.clock.Now().UTC(),
		Quantities:       payload.Readings,
		AqiCategory:      category,
		AqiRule:          rule,
		Fingerprint:      fingerprint,
	}
	if payload.Metadata != nil {
		reading.Battery = payload.Metadata.Battery
		reading.Signal = payload.Metadata.Signal
		reading.ErrorCode = payload.Metadata.ErrorCode
	}

	id, err := p.readings.InsertReading(ctx, &reading)
	if err != nil {
		// Another ingestion won the insert race on the same fingerprint:
		// still an idempotent replay from the caller's point of view.
		if errors.Is(err, domain.ErrDuplicateFingerprint) {
			p.metrics.DuplicateReadings.Inc()
			return StructuredResult{Duplicate: true, Warnings: outcome.Warnings}, nil
		}
		p.metrics.PersistenceErrors.Inc()
		return StructuredResult{}, &PersistenceError{Err: err}
	}
	reading.ID = id

	p.publish(ctx, reading)

	p.metrics.ReadingsIngested.WithLabelValues("structured").Inc()
	p.metrics.IngestDuration.WithLabelValues("structured").Observe(time.Since(start).Seconds())

	p.logger.Info("reading ingested",
		"reading_id", id,
		"device_id", payload.DeviceID,
		"aqi_category", category,
		"warnings", len(outcome.Warnings),
	)

	return StructuredResult{
		ReadingID: id,
		SensorID:  sensor.ID,
		DeviceID:  payload.DeviceID,
		Timestamp: payload.Timestamp,
		Warnings:  outcome.Warnings,
	}, nil
}

// publish emits the reading to the live feed when a publisher is configured.
func (p *Pipeline) publish(ctx context.Context, reading domain.Reading) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishReading(ctx, reading); err != nil {
		p.metrics.PublishErrors.Inc()
		p.logger.Warn("live-feed publish failed", "error", err, "reading_id", reading.ID)
		return
	}
	p.metrics.ReadingsPublished.Inc()
}
