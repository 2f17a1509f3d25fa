package auditstore

import (
	"context"
	"errors"
	"time"
)

const (
	logMsgBatchIngested        = "ingestion batch processed"
	logMsgUnknownEventSkipped  = "skipping event with unknown event type"
	logMsgRecordDecodeFailed   = "decoding raw event failed"
	logMsgRecordAppendFailed   = "appending event to store failed"
	logAttrEventID             = "event_id"
	logAttrEventType           = "event_type"
	logAttrError               = "error"
	logAttrBatchSize           = "batch_size"
	logAttrStoredCount         = "stored"
	logAttrDeduplicatedCount   = "deduplicated"
	logAttrSkippedCount        = "skipped"
	logAttrFailedCount         = "failed"
	logAttrDurationMS          = "duration_ms"
	metricIngestedEvents       = "auditstore_ingested_events"
	metricIngestDuration       = "auditstore_ingest_duration_seconds"
	labelOutcome               = "outcome"
	outcomeStored              = "stored"
	outcomeDeduplicatedReplay  = "deduplicated"
	outcomeSkippedUnknown      = "skipped_unknown"
	outcomeFailed              = "failed"
)

// SkippedRecord identifies a raw record dropped because its discriminator
// is not known to the registry.
type SkippedRecord struct {
	ID        string
	EventType string
}

// FailedRecord identifies a raw record that could not be stored, together
// with the cause. A failed record never affects its batch siblings.
type FailedRecord struct {
	ID        string
	EventType string
	Err       error
}

// IngestionReport accounts for every record of one ingestion batch.
// Stored + Deduplicated + len(Skipped) + len(Failed) equals the batch size.
type IngestionReport struct {
	Stored       int
	Deduplicated int
	Skipped      []SkippedRecord
	Failed       []FailedRecord
}

// Pipeline consumes batches of raw polymorphic event records, classifies
// each against the Registry, and appends recognized ones to the Store.
// Records are processed independently: an unknown or invalid record is
// accounted for in the report and never aborts the rest of the batch.
type Pipeline struct {
	store            Store
	registry         *Registry
	logger           Logger
	metricsCollector MetricsCollector
}

// PipelineOption defines a functional option for configuring a Pipeline.
type PipelineOption func(*Pipeline) error

// WithPipelineLogger sets the logger for the Pipeline.
func WithPipelineLogger(logger Logger) PipelineOption {
	return func(p *Pipeline) error {
		p.logger = logger
		return nil
	}
}

// WithPipelineMetrics sets the metrics collector for the Pipeline.
func WithPipelineMetrics(collector MetricsCollector) PipelineOption {
	return func(p *Pipeline) error {
		p.metricsCollector = collector
		return nil
	}
}

// NewPipeline creates an ingestion Pipeline writing to the given store,
// classifying against the given registry.
func NewPipeline(store Store, registry *Registry, options ...PipelineOption) (*Pipeline, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	if registry == nil {
		return nil, ErrNilRegistry
	}

	p := &Pipeline{store: store, registry: registry}

	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Ingest processes one batch of raw records. For each record independently:
// unknown discriminators are dropped and counted as skipped, decode or
// validation failures are recorded as failed, recognized records are
// decoded and appended. A duplicate ID is an idempotent no-op counted as
// deduplicated. Ingest never returns an error for per-record problems; the
// report is the complete account of the batch.
func (p *Pipeline) Ingest(ctx context.Context, batch RawEvents) IngestionReport {
	start := time.Now()
	report := IngestionReport{}

	for _, raw := range batch {
		p.ingestOne(ctx, raw, &report)
	}

	duration := time.Since(start)

	if p.logger != nil {
		p.logger.Info(logMsgBatchIngested,
			logAttrBatchSize, len(batch),
			logAttrStoredCount, report.Stored,
			logAttrDeduplicatedCount, report.Deduplicated,
			logAttrSkippedCount, len(report.Skipped),
			logAttrFailedCount, len(report.Failed),
			logAttrDurationMS, durationToMilliseconds(duration),
		)
	}

	if p.metricsCollector != nil {
		p.metricsCollector.RecordDuration(metricIngestDuration, duration, nil)
	}

	return report
}

func (p *Pipeline) ingestOne(ctx context.Context, raw RawEvent, report *IngestionReport) {
	if _, known := p.registry.Classify(raw.EventType); !known {
		report.Skipped = append(report.Skipped, SkippedRecord{ID: raw.ID, EventType: raw.EventType})
		p.countOutcome(outcomeSkippedUnknown)

		if p.logger != nil {
			p.logger.Debug(logMsgUnknownEventSkipped, logAttrEventID, raw.ID, logAttrEventType, raw.EventType)
		}

		return
	}

	event, decodeErr := p.registry.Decode(raw)
	if decodeErr != nil {
		report.Failed = append(report.Failed, FailedRecord{ID: raw.ID, EventType: raw.EventType, Err: decodeErr})
		p.countOutcome(outcomeFailed)

		if p.logger != nil {
			p.logger.Warn(logMsgRecordDecodeFailed,
				logAttrEventID, raw.ID, logAttrEventType, raw.EventType, logAttrError, decodeErr.Error())
		}

		return
	}

	outcome, appendErr := p.store.Append(ctx, event)
	if appendErr != nil {
		report.Failed = append(report.Failed, FailedRecord{
			ID:        raw.ID,
			EventType: raw.EventType,
			Err:       errors.Join(ErrAppendingEventFailed, appendErr),
		})
		p.countOutcome(outcomeFailed)

		if p.logger != nil {
			p.logger.Error(logMsgRecordAppendFailed,
				logAttrEventID, raw.ID, logAttrEventType, raw.EventType, logAttrError, appendErr.Error())
		}

		return
	}

	if outcome == Deduplicated {
		report.Deduplicated++
		p.countOutcome(outcomeDeduplicatedReplay)

		return
	}

	report.Stored++
	p.countOutcome(outcomeStored)
}

func (p *Pipeline) countOutcome(outcome string) {
	if p.metricsCollector != nil {
		p.metricsCollector.IncrementCounter(metricIngestedEvents, map[string]string{labelOutcome: outcome})
	}
}
