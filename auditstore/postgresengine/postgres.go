package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/flowtrail/runtime-audit-eventstore-go/auditstore"
	"github.com/flowtrail/runtime-audit-eventstore-go/auditstore/postgresengine/internal/adapters"
)

const (
	defaultEventTableName        = "audit_events"
	logMsgBuildSelectQueryFailed = "failed to build select query"
	logMsgBuildInsertQueryFailed = "failed to build insert query"
	logMsgBuildDeleteQueryFailed = "failed to build delete query"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgDBExecFailed           = "database execution failed"
	logMsgCloseRowsFailed        = "failed to close database rows"
	logMsgScanRowFailed          = "failed to scan database row"
	logMsgRebuildEventFailed     = "failed to rebuild runtime event from database row"
	logMsgRowsAffectedFailed     = "failed to get rows affected count"
	logMsgMarshalPayloadFailed   = "failed to serialize event payload"
	logMsgQueryCompleted         = "query completed"
	logMsgEventAppended          = "event appended"
	logMsgEventDeduplicated      = "duplicate event id, append was a no-op"
	logMsgEventsPurged           = "all events purged"
	logMsgSQLExecuted            = "executed sql for: "
	logMsgOperation              = "audit store operation: "
	logAttrError                 = "error"
	logAttrQuery                 = "query"
	logAttrEventID               = "event_id"
	logAttrEventType             = "event_type"
	logAttrEventCount            = "event_count"
	logAttrTotalCount            = "total_count"
	logAttrDurationMS            = "duration_ms"
	logActionQuery               = "query"
	logActionAppend              = "append"
	logActionPurge               = "purge"
	colSequenceNumber            = "sequence_number"
	colEventID                   = "event_id"
	colEventType                 = "event_type"
	colEntityID                  = "entity_id"
	colProcessInstanceID         = "process_instance_id"
	colProcessDefinitionID       = "process_definition_id"
	colOccurredAt                = "occurred_at"
	colServiceName               = "service_name"
	colServiceVersion            = "service_version"
	colPayload                   = "payload"
	dialectPostgres              = "postgres"
)

type (
	sqlQueryString    = string
	rowsAffectedInt64 = int64
)

// EventStore is the durable Postgres implementation of auditstore.Store.
// It leverages a database adapter and supports customizable logging,
// metrics, tracing and event table configuration.
type EventStore struct {
	db               adapters.DBAdapter
	registry         *auditstore.Registry
	eventTableName   string
	logger           auditstore.Logger
	contextualLogger auditstore.ContextualLogger
	metricsCollector auditstore.MetricsCollector
	tracingCollector auditstore.TracingCollector
}

type queryResultRow struct {
	eventID             string
	eventType           string
	entityID            string
	processInstanceID   string
	processDefinitionID string
	occurredAt          int64
	serviceName         string
	serviceVersion      string
	payload             []byte
}

// NewEventStoreFromPGXPool creates a new EventStore using a pgx pool with
// optional configuration.
func NewEventStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, auditstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapter(db), options...)
}

// NewEventStoreFromSQLDB creates a new EventStore using a sql.DB with
// optional configuration.
func NewEventStoreFromSQLDB(db *sql.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, auditstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLAdapter(db), options...)
}

// NewEventStoreFromSQLX creates a new EventStore using a sqlx.DB with
// optional configuration.
func NewEventStoreFromSQLX(db *sqlx.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, auditstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLXAdapter(db), options...)
}

func newEventStore(db adapters.DBAdapter, options ...Option) (*EventStore, error) {
	es := &EventStore{
		db:             db,
		registry:       auditstore.NewRegistry(),
		eventTableName: defaultEventTableName,
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// Append stores the event, or reports auditstore.Deduplicated if an event
// with the same ID is already present. The insert uses
// ON CONFLICT (event_id) DO NOTHING, so re-delivery from an at-least-once
// transport can never create a duplicate record.
func (es *EventStore) Append(ctx context.Context, event auditstore.RuntimeEvent) (auditstore.AppendOutcome, error) {
	ctx, span := es.startSpan(ctx, spanAppend, map[string]string{spanAttrEventType: event.EventType})

	sqlQuery, buildQueryErr := es.buildInsertQuery(event)
	if buildQueryErr != nil {
		es.finishSpan(span, statusError)
		return auditstore.Appended, buildQueryErr
	}

	rowsAffected, duration, execErr := es.executeStatement(ctx, sqlQuery, logActionAppend)
	if execErr != nil {
		es.finishSpan(span, statusError)
		es.recordErrorMetrics(ctx, operationAppend)

		return auditstore.Appended, errors.Join(auditstore.ErrAppendingEventFailed, execErr)
	}

	es.recordDurationMetrics(ctx, metricAppendDuration, duration, operationAppend)

	if rowsAffected == 0 {
		es.logOperation(logMsgEventDeduplicated, logAttrEventID, event.ID)
		es.finishSpan(span, statusDeduplicated)

		return auditstore.Deduplicated, nil
	}

	es.logOperation(
		logMsgEventAppended,
		logAttrEventID, event.ID,
		logAttrEventType, event.EventType,
		logAttrDurationMS, toMilliseconds(duration),
	)
	es.finishSpan(span, statusOK)

	return auditstore.Appended, nil
}

// GetByID returns the event with the given ID, or an error wrapping
// auditstore.ErrEventNotFound.
func (es *EventStore) GetByID(ctx context.Context, id string) (auditstore.RuntimeEvent, error) {
	ctx, span := es.startSpan(ctx, spanGetByID, map[string]string{spanAttrEventID: id})

	sqlQuery, buildQueryErr := es.buildSelectByIDQuery(id)
	if buildQueryErr != nil {
		es.finishSpan(span, statusError)
		return auditstore.RuntimeEvent{}, buildQueryErr
	}

	events, _, queryErr := es.executeSelect(ctx, sqlQuery)
	if queryErr != nil {
		es.finishSpan(span, statusError)
		es.recordErrorMetrics(ctx, operationGetByID)

		return auditstore.RuntimeEvent{}, queryErr
	}

	if len(events) == 0 {
		es.finishSpan(span, statusNotFound)
		return auditstore.RuntimeEvent{}, errors.Join(auditstore.ErrEventNotFound, fmt.Errorf("id: %s", id))
	}

	es.finishSpan(span, statusOK)

	return events[0], nil
}

// Query returns the page of events matching every predicate of the filter,
// in ascending insertion order, together with the total match count.
func (es *EventStore) Query(
	ctx context.Context,
	filter auditstore.QueryFilter,
	page auditstore.PageRequest,
) (auditstore.Page, error) {

	ctx, span := es.startSpan(ctx, spanQuery, nil)

	countQuery, pageQuery, buildQueryErr := es.buildSelectQueries(filter, page)
	if buildQueryErr != nil {
		es.finishSpan(span, statusError)
		return auditstore.Page{}, buildQueryErr
	}

	totalCount, countErr := es.executeCount(ctx, countQuery)
	if countErr != nil {
		es.finishSpan(span, statusError)
		es.recordErrorMetrics(ctx, operationQuery)

		return auditstore.Page{}, countErr
	}

	events, duration, queryErr := es.executeSelect(ctx, pageQuery)
	if queryErr != nil {
		es.finishSpan(span, statusError)
		es.recordErrorMetrics(ctx, operationQuery)

		return auditstore.Page{}, queryErr
	}

	es.recordDurationMetrics(ctx, metricQueryDuration, duration, operationQuery)
	es.logOperation(
		logMsgQueryCompleted,
		logAttrEventCount, len(events),
		logAttrTotalCount, totalCount,
		logAttrDurationMS, toMilliseconds(duration),
	)
	es.finishSpan(span, statusOK)

	return auditstore.Page{Events: events, TotalCount: totalCount, Request: page}, nil
}

// PurgeAll removes every record. Administrative resets only.
func (es *EventStore) PurgeAll(ctx context.Context) error {
	ctx, span := es.startSpan(ctx, spanPurge, nil)

	deleteStmt := goqu.Dialect(dialectPostgres).Delete(es.eventTableName)

	sqlQuery, _, toSQLErr := deleteStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildDeleteQueryFailed, toSQLErr)
		es.finishSpan(span, statusError)

		return errors.Join(auditstore.ErrBuildingQueryFailed, toSQLErr)
	}

	_, _, execErr := es.executeStatement(ctx, sqlQuery, logActionPurge)
	if execErr != nil {
		es.finishSpan(span, statusError)
		es.recordErrorMetrics(ctx, operationPurge)

		return errors.Join(auditstore.ErrPurgingEventsFailed, execErr)
	}

	es.logOperation(logMsgEventsPurged)
	es.finishSpan(span, statusOK)

	return nil
}

func (es *EventStore) buildInsertQuery(event auditstore.RuntimeEvent) (sqlQueryString, error) {
	payloadJSON, marshalErr := event.PayloadJSON()
	if marshalErr != nil {
		es.logError(logMsgMarshalPayloadFailed, marshalErr, logAttrEventID, event.ID)
		return "", errors.Join(auditstore.ErrBuildingQueryFailed, marshalErr)
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(es.eventTableName).
		Rows(goqu.Record{
			colEventID:             event.ID,
			colEventType:           event.EventType,
			colEntityID:            event.EntityID,
			colProcessInstanceID:   event.ProcessInstanceID,
			colProcessDefinitionID: event.ProcessDefinitionID,
			colOccurredAt:          event.Timestamp,
			colServiceName:         event.ServiceName,
			colServiceVersion:      event.ServiceVersion,
			colPayload:             string(payloadJSON),
		}).
		OnConflict(goqu.DoNothing())

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildInsertQueryFailed, toSQLErr, logAttrEventID, event.ID)
		return "", errors.Join(auditstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (es *EventStore) buildSelectByIDQuery(id string) (sqlQueryString, error) {
	selectStmt := es.selectDataset().
		Where(goqu.Ex{colEventID: id})

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildSelectQueryFailed, toSQLErr)
		return "", errors.Join(auditstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (es *EventStore) buildSelectQueries(
	filter auditstore.QueryFilter,
	page auditstore.PageRequest,
) (countQuery sqlQueryString, pageQuery sqlQueryString, err error) {

	whereClause, whereErr := es.whereClauseFor(filter)
	if whereErr != nil {
		return "", "", whereErr
	}

	countStmt := goqu.Dialect(dialectPostgres).
		From(es.eventTableName).
		Select(goqu.COUNT(goqu.Star()))

	pageStmt := es.selectDataset().
		Order(goqu.I(colSequenceNumber).Asc()).
		Limit(uint(page.Limit())).
		Offset(uint(page.Offset()))

	if whereClause != nil {
		countStmt = countStmt.Where(whereClause...)
		pageStmt = pageStmt.Where(whereClause...)
	}

	countQuery, _, toSQLErr := countStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildSelectQueryFailed, toSQLErr)
		return "", "", errors.Join(auditstore.ErrBuildingQueryFailed, toSQLErr)
	}

	pageQuery, _, toSQLErr = pageStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildSelectQueryFailed, toSQLErr)
		return "", "", errors.Join(auditstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return countQuery, pageQuery, nil
}

func (es *EventStore) selectDataset() *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).
		From(es.eventTableName).
		Select(
			colEventID,
			colEventType,
			colEntityID,
			colProcessInstanceID,
			colProcessDefinitionID,
			colOccurredAt,
			colServiceName,
			colServiceVersion,
			colPayload,
		)
}

// whereClauseFor maps filter predicates to column equality expressions.
// Predicate keys are validated at filter construction; the mapping still
// rejects unknown keys so a hand-built filter cannot reach the database.
func (es *EventStore) whereClauseFor(filter auditstore.QueryFilter) ([]goqu.Expression, error) {
	if filter.IsEmpty() {
		return nil, nil
	}

	columnsByFilterKey := map[auditstore.FilterKeyString]string{
		auditstore.FilterKeyEventType:           colEventType,
		auditstore.FilterKeyEntityID:            colEntityID,
		auditstore.FilterKeyProcessInstanceID:   colProcessInstanceID,
		auditstore.FilterKeyProcessDefinitionID: colProcessDefinitionID,
	}

	expressions := make([]goqu.Expression, 0, len(filter.Predicates()))

	for _, predicate := range filter.Predicates() {
		column, supported := columnsByFilterKey[predicate.Key()]
		if !supported {
			return nil, errors.Join(auditstore.ErrUnsupportedFilter, fmt.Errorf("attribute: %s", predicate.Key()))
		}

		expressions = append(expressions, goqu.Ex{column: predicate.Val()})
	}

	return expressions, nil
}

// executeSelect executes the SQL query and converts the rows to events.
func (es *EventStore) executeSelect(ctx context.Context, sqlQuery string) (
	[]auditstore.RuntimeEvent,
	time.Duration,
	error,
) {

	start := time.Now()
	rows, queryErr := es.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(ctx, sqlQuery, logActionQuery, duration)

	if queryErr != nil {
		es.logError(logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, duration, errors.Join(auditstore.ErrQueryingEventsFailed, queryErr)
	}
	defer es.closeRows(rows)

	events, scanErr := es.processQueryResults(rows)
	if scanErr != nil {
		return nil, duration, scanErr
	}

	return events, duration, nil
}

// executeCount executes a COUNT query and returns the single result value.
func (es *EventStore) executeCount(ctx context.Context, sqlQuery string) (int, error) {
	start := time.Now()
	rows, queryErr := es.db.Query(ctx, sqlQuery)
	es.logQueryWithDuration(ctx, sqlQuery, logActionQuery, time.Since(start))

	if queryErr != nil {
		es.logError(logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return 0, errors.Join(auditstore.ErrQueryingEventsFailed, queryErr)
	}
	defer es.closeRows(rows)

	var totalCount int

	if rows.Next() {
		if scanErr := rows.Scan(&totalCount); scanErr != nil {
			es.logError(logMsgScanRowFailed, scanErr)
			return 0, errors.Join(auditstore.ErrScanningDBRowFailed, scanErr)
		}
	}

	return totalCount, nil
}

// executeStatement executes a SQL statement and returns rows affected and
// duration.
func (es *EventStore) executeStatement(ctx context.Context, sqlQuery string, action string) (
	rowsAffectedInt64,
	time.Duration,
	error,
) {

	start := time.Now()
	result, execErr := es.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if execErr != nil {
		es.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return 0, duration, execErr
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		es.logError(logMsgRowsAffectedFailed, rowsAffectedErr)
		return 0, duration, errors.Join(auditstore.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return rowsAffected, duration, nil
}

// processQueryResults converts database rows back into RuntimeEvents by
// running each row's payload through the registry decoder.
func (es *EventStore) processQueryResults(rows adapters.DBRows) ([]auditstore.RuntimeEvent, error) {
	result := queryResultRow{}
	events := make([]auditstore.RuntimeEvent, 0)

	for rows.Next() {
		rowScanErr := rows.Scan(
			&result.eventID,
			&result.eventType,
			&result.entityID,
			&result.processInstanceID,
			&result.processDefinitionID,
			&result.occurredAt,
			&result.serviceName,
			&result.serviceVersion,
			&result.payload,
		)
		if rowScanErr != nil {
			es.logError(logMsgScanRowFailed, rowScanErr)
			return nil, errors.Join(auditstore.ErrScanningDBRowFailed, rowScanErr)
		}

		event, rebuildErr := es.registry.Decode(auditstore.RawEvent{
			ID:                  result.eventID,
			EventType:           result.eventType,
			Timestamp:           result.occurredAt,
			ServiceName:         result.serviceName,
			ServiceVersion:      result.serviceVersion,
			EntityID:            result.entityID,
			ProcessInstanceID:   result.processInstanceID,
			ProcessDefinitionID: result.processDefinitionID,
			PayloadJSON:         result.payload,
		})
		if rebuildErr != nil {
			es.logError(logMsgRebuildEventFailed, rebuildErr, logAttrEventType, result.eventType)
			return nil, errors.Join(auditstore.ErrBuildingRuntimeEventFailed, rebuildErr)
		}

		events = append(events, event)
	}

	return events, nil
}

// closeRows safely closes database rows and logs any errors.
func (es *EventStore) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if es.logger != nil {
			es.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

var _ auditstore.Store = (*EventStore)(nil)
