package auditstore

import (
	"context"
	"time"
)

const (
	logMsgFindAllCompleted  = "find all completed"
	logMsgFindByIDCompleted = "find by id completed"
	logAttrEventCount       = "event_count"
	logAttrTotalCount       = "total_count"
	metricQueryDuration     = "auditstore_query_duration_seconds"
	labelOperation          = "operation"
	operationFindAll        = "find_all"
	operationFindByID       = "find_by_id"
)

// QueryEngine is the stateless read path over the Store's durable state,
// consumed by the external query surface.
type QueryEngine struct {
	store            Store
	logger           Logger
	metricsCollector MetricsCollector
}

// QueryEngineOption defines a functional option for configuring a QueryEngine.
type QueryEngineOption func(*QueryEngine) error

// WithQueryLogger sets the logger for the QueryEngine.
func WithQueryLogger(logger Logger) QueryEngineOption {
	return func(q *QueryEngine) error {
		q.logger = logger
		return nil
	}
}

// WithQueryMetrics sets the metrics collector for the QueryEngine.
func WithQueryMetrics(collector MetricsCollector) QueryEngineOption {
	return func(q *QueryEngine) error {
		q.metricsCollector = collector
		return nil
	}
}

// NewQueryEngine creates a QueryEngine reading from the given store.
func NewQueryEngine(store Store, options ...QueryEngineOption) (*QueryEngine, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	q := &QueryEngine{store: store}

	for _, option := range options {
		if err := option(q); err != nil {
			return nil, err
		}
	}

	return q, nil
}

// FindAll returns the page of events matching every predicate of the
// filter, in stable insertion order. An empty filter returns everything.
func (q *QueryEngine) FindAll(ctx context.Context, filter QueryFilter, page PageRequest) (Page, error) {
	start := time.Now()

	result, err := q.store.Query(ctx, filter, page)
	if err != nil {
		return Page{}, err
	}

	q.recordQuery(operationFindAll, time.Since(start))

	if q.logger != nil {
		q.logger.Debug(logMsgFindAllCompleted,
			logAttrEventCount, len(result.Events),
			logAttrTotalCount, result.TotalCount,
			logAttrDurationMS, durationToMilliseconds(time.Since(start)),
		)
	}

	return result, nil
}

// FindAllMatching is the query-surface boundary form of FindAll: filters
// arrive as an attribute→value mapping. Unknown attribute names are
// rejected with an error wrapping ErrUnsupportedFilter.
func (q *QueryEngine) FindAllMatching(
	ctx context.Context,
	filters map[FilterKeyString]FilterValString,
	page PageRequest,
) (Page, error) {

	filter, err := QueryFilterFromMap(filters)
	if err != nil {
		return Page{}, err
	}

	return q.FindAll(ctx, filter, page)
}

// FindByID returns the single event with the given ID, or an error
// wrapping ErrEventNotFound.
func (q *QueryEngine) FindByID(ctx context.Context, id string) (RuntimeEvent, error) {
	start := time.Now()

	event, err := q.store.GetByID(ctx, id)
	if err != nil {
		return RuntimeEvent{}, err
	}

	q.recordQuery(operationFindByID, time.Since(start))

	if q.logger != nil {
		q.logger.Debug(logMsgFindByIDCompleted,
			logAttrEventID, id,
			logAttrDurationMS, durationToMilliseconds(time.Since(start)),
		)
	}

	return event, nil
}

func (q *QueryEngine) recordQuery(operation string, duration time.Duration) {
	if q.metricsCollector != nil {
		q.metricsCollector.RecordDuration(metricQueryDuration, duration, map[string]string{labelOperation: operation})
	}
}
