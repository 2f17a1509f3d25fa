package postgresengine

import (
	"context"
	"math"
	"time"

	"github.com/flowtrail/runtime-audit-eventstore-go/auditstore"
)

const (
	spanAppend            = "auditstore.append"
	spanQuery             = "auditstore.query"
	spanGetByID           = "auditstore.get_by_id"
	spanPurge             = "auditstore.purge"
	spanAttrEventID       = "event_id"
	spanAttrEventType     = "event_type"
	spanAttrOperation     = "operation"
	spanAttrErrorType     = "error_type"
	operationAppend       = "append"
	operationQuery        = "query"
	operationGetByID      = "get_by_id"
	operationPurge        = "purge"
	statusOK              = "ok"
	statusError           = "error"
	statusNotFound        = "not_found"
	statusDeduplicated    = "deduplicated"
	metricAppendDuration  = "auditstore_append_duration_seconds"
	metricQueryDuration   = "auditstore_query_duration_seconds"
	metricDatabaseErrors  = "auditstore_database_errors_total"
	labelStatus           = "status"
	errorTypeDatabaseCall = "database"
)

// logQueryWithDuration logs SQL queries with execution time at debug
// level, preferring the context-aware logger so log records correlate
// with an active trace.
func (es *EventStore) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	if es.contextualLogger != nil {
		es.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action,
			logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)

		return
	}

	if es.logger != nil {
		es.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if a logger is
// configured.
func (es *EventStore) logOperation(action string, args ...any) {
	if es.logger != nil {
		es.logger.Info(logMsgOperation+action, args...)
	}
}

// logError logs error information at the error level if a logger is
// configured.
func (es *EventStore) logError(message string, err error, args ...any) {
	if es.logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		es.logger.Error(message, allArgs...)
	}
}

// startSpan opens a tracing span if a tracing collector is configured.
// It returns the (possibly span-carrying) context and the span, which may
// be nil.
func (es *EventStore) startSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, auditstore.SpanContext) {

	if es.tracingCollector == nil {
		return ctx, nil
	}

	return es.tracingCollector.StartSpan(ctx, name, attrs)
}

// finishSpan completes a span opened by startSpan; no-op for a nil span.
func (es *EventStore) finishSpan(span auditstore.SpanContext, status string) {
	if es.tracingCollector == nil || span == nil {
		return
	}

	es.tracingCollector.FinishSpan(span, status, nil)
}

// recordDurationMetrics records an operation duration, using the
// context-aware collector method when available.
func (es *EventStore) recordDurationMetrics(
	ctx context.Context,
	metricName string,
	duration time.Duration,
	operation string,
) {

	if es.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       statusOK,
	}

	if contextualCollector, ok := es.metricsCollector.(auditstore.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricName, duration, labels)
	} else {
		es.metricsCollector.RecordDuration(metricName, duration, labels)
	}
}

// recordErrorMetrics counts a database error, using the context-aware
// collector method when available.
func (es *EventStore) recordErrorMetrics(ctx context.Context, operation string) {
	if es.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       statusError,
		spanAttrErrorType: errorTypeDatabaseCall,
	}

	if contextualCollector, ok := es.metricsCollector.(auditstore.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricDatabaseErrors, labels)
	} else {
		es.metricsCollector.IncrementCounter(metricDatabaseErrors, labels)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3
// decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
