package postgresengine_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"

	"github.com/flowtrail/runtime-audit-eventstore-go/auditstore"
	. "github.com/flowtrail/runtime-audit-eventstore-go/auditstore/postgresengine"
	. "github.com/flowtrail/runtime-audit-eventstore-go/test"
	"github.com/flowtrail/runtime-audit-eventstore-go/test/config"
)

// One statement per entry, pgx's extended protocol does not accept
// multi-statement strings.
var createSchemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
    sequence_number       BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    event_id              TEXT        NOT NULL UNIQUE,
    event_type            TEXT        NOT NULL,
    entity_id             TEXT        NOT NULL DEFAULT '',
    process_instance_id   TEXT        NOT NULL DEFAULT '',
    process_definition_id TEXT        NOT NULL DEFAULT '',
    occurred_at           BIGINT      NOT NULL,
    service_name          TEXT        NOT NULL DEFAULT '',
    service_version       TEXT        NOT NULL DEFAULT '',
    payload               JSONB       NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS audit_events_event_type_idx ON audit_events (event_type)`,
	`CREATE INDEX IF NOT EXISTS audit_events_entity_id_idx ON audit_events (entity_id)`,
	`CREATE INDEX IF NOT EXISTS audit_events_process_instance_id_idx ON audit_events (process_instance_id)`,
	`CREATE INDEX IF NOT EXISTS audit_events_process_definition_id_idx ON audit_events (process_definition_id)`,
}

func requirePostgres(t testing.TB) {
	if os.Getenv("AUDIT_EVENTSTORE_POSTGRES_URL") == "" {
		t.Skip("set AUDIT_EVENTSTORE_POSTGRES_URL to run the Postgres integration tests")
	}
}

func setupConnPool(t testing.TB) *pgxpool.Pool {
	connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolTestConfig())
	assert.NoError(t, err, "error connecting to DB pool in test setup")
	t.Cleanup(connPool.Close)

	for _, statement := range createSchemaDDL {
		_, err = connPool.Exec(context.Background(), statement)
		assert.NoError(t, err, "error creating the schema in test setup")
	}

	_, err = connPool.Exec(context.Background(), "TRUNCATE TABLE audit_events RESTART IDENTITY")
	assert.NoError(t, err, "error cleaning up the audit_events table")

	return connPool
}

func setupEventStore(t testing.TB) *EventStore {
	es, err := NewEventStoreFromPGXPool(setupConnPool(t))
	assert.NoError(t, err, "creating the event store failed")

	return es
}

func Test_Append_And_GetByID(t *testing.T) {
	requirePostgres(t)

	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	es := setupEventStore(t)

	// arrange
	eventID := GivenUniqueID(t)
	event := auditstore.RuntimeEvent{
		ID:                  eventID,
		EventType:           auditstore.TaskAssignedEventType,
		Timestamp:           1724929200000,
		ServiceName:         "runtime-bundle",
		ServiceVersion:      "1",
		EntityID:            TaskEntityID,
		ProcessInstanceID:   "46",
		ProcessDefinitionID: "27",
		Task:                &auditstore.TaskPayload{TaskID: TaskEntityID, TaskName: "task assigned", Status: auditstore.TaskStatusAssigned},
	}

	// act
	outcome, appendErr := es.Append(ctxWithTimeout, event)

	// assert
	assert.NoError(t, appendErr)
	assert.Equal(t, auditstore.Appended, outcome)

	stored, getErr := es.GetByID(ctxWithTimeout, eventID)
	assert.NoError(t, getErr)
	assert.Equal(t, event, stored)
}

func Test_Append_DuplicateEventID_IsDeduplicated(t *testing.T) {
	requirePostgres(t)

	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	es := setupEventStore(t)

	// arrange
	eventID := GivenUniqueID(t)
	event := auditstore.RuntimeEvent{
		ID:        eventID,
		EventType: auditstore.ProcessStartedEventType,
		Timestamp: 1724929200000,
		EntityID:  "25",
		Process:   &auditstore.ProcessPayload{ProcessInstanceID: "25", ProcessDefinitionID: "44"},
	}

	_, appendErr := es.Append(ctxWithTimeout, event)
	assert.NoError(t, appendErr, "error in arranging test data")

	// act
	outcome, replayErr := es.Append(ctxWithTimeout, event)

	// assert
	assert.NoError(t, replayErr)
	assert.Equal(t, auditstore.Deduplicated, outcome)

	page, queryErr := es.Query(ctxWithTimeout, auditstore.QueryFilter{}, auditstore.BuildPageRequest(0, 100))
	assert.NoError(t, queryErr)
	assert.Equal(t, 1, page.TotalCount)
}

func Test_GetByID_UnknownID(t *testing.T) {
	requirePostgres(t)

	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	es := setupEventStore(t)

	// act
	_, getErr := es.GetByID(ctxWithTimeout, GivenUniqueID(t))

	// assert
	assert.ErrorIs(t, getErr, auditstore.ErrEventNotFound)
}

//nolint:funlen
func Test_Query_FilterCombinations(t *testing.T) {
	requirePostgres(t)

	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	es := setupEventStore(t)
	pipeline, err := auditstore.NewPipeline(es, auditstore.NewRegistry())
	assert.NoError(t, err, "error in test setup")

	// arrange
	GivenCoveredEventsWereIngested(t, ctxWithTimeout, pipeline)

	tests := []struct {
		name          string
		filters       map[auditstore.FilterKeyString]auditstore.FilterValString
		expectedCount int
	}{
		{
			name:          "no_filter",
			filters:       nil,
			expectedCount: CoveredEventsCount,
		},
		{
			name:          "by_process_instance",
			filters:       map[auditstore.FilterKeyString]auditstore.FilterValString{auditstore.FilterKeyProcessInstanceID: "4"},
			expectedCount: 2,
		},
		{
			name: "by_process_instance_and_event_type",
			filters: map[auditstore.FilterKeyString]auditstore.FilterValString{
				auditstore.FilterKeyProcessInstanceID: "4",
				auditstore.FilterKeyEventType:         auditstore.ActivityStartedEventType,
			},
			expectedCount: 2,
		},
		{
			name:          "by_event_type",
			filters:       map[auditstore.FilterKeyString]auditstore.FilterValString{auditstore.FilterKeyEventType: auditstore.ActivityStartedEventType},
			expectedCount: 3,
		},
		{
			name:          "by_entity_id",
			filters:       map[auditstore.FilterKeyString]auditstore.FilterValString{auditstore.FilterKeyEntityID: TaskEntityID},
			expectedCount: 4,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			filter, filterErr := auditstore.QueryFilterFromMap(tc.filters)
			assert.NoError(t, filterErr, "error in arranging test data")

			// act
			page, queryErr := es.Query(ctxWithTimeout, filter, auditstore.BuildPageRequest(0, 100))

			// assert
			assert.NoError(t, queryErr)
			assert.Equal(t, tc.expectedCount, page.TotalCount)
			assert.Len(t, page.Events, tc.expectedCount)
		})
	}
}

func Test_Query_PaginationIsStable(t *testing.T) {
	requirePostgres(t)

	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	es := setupEventStore(t)
	pipeline, err := auditstore.NewPipeline(es, auditstore.NewRegistry())
	assert.NoError(t, err, "error in test setup")

	// arrange
	GivenCoveredEventsWereIngested(t, ctxWithTimeout, pipeline)

	// act
	firstPage, err := es.Query(ctxWithTimeout, auditstore.QueryFilter{}, auditstore.BuildPageRequest(0, 5))
	assert.NoError(t, err)
	secondPage, err := es.Query(ctxWithTimeout, auditstore.QueryFilter{}, auditstore.BuildPageRequest(1, 5))
	assert.NoError(t, err)
	thirdPage, err := es.Query(ctxWithTimeout, auditstore.QueryFilter{}, auditstore.BuildPageRequest(2, 5))
	assert.NoError(t, err)

	// assert
	assert.Len(t, firstPage.Events, 5)
	assert.Len(t, secondPage.Events, 5)
	assert.Len(t, thirdPage.Events, 2)

	seen := make(map[string]bool)
	for _, page := range []auditstore.Page{firstPage, secondPage, thirdPage} {
		assert.Equal(t, CoveredEventsCount, page.TotalCount)

		for _, event := range page.Events {
			assert.False(t, seen[event.ID], "event %s appeared on more than one page", event.ID)
			seen[event.ID] = true
		}
	}
	assert.Len(t, seen, CoveredEventsCount)

	firstPageAgain, err := es.Query(ctxWithTimeout, auditstore.QueryFilter{}, auditstore.BuildPageRequest(0, 5))
	assert.NoError(t, err)
	assert.Equal(t, firstPage.Events, firstPageAgain.Events)
}

func Test_PurgeAll_EmptiesTheTable(t *testing.T) {
	requirePostgres(t)

	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	es := setupEventStore(t)
	pipeline, err := auditstore.NewPipeline(es, auditstore.NewRegistry())
	assert.NoError(t, err, "error in test setup")

	// arrange
	GivenCoveredEventsWereIngested(t, ctxWithTimeout, pipeline)

	// act
	purgeErr := es.PurgeAll(ctxWithTimeout)

	// assert
	assert.NoError(t, purgeErr)

	page, queryErr := es.Query(ctxWithTimeout, auditstore.QueryFilter{}, auditstore.BuildPageRequest(0, 100))
	assert.NoError(t, queryErr)
	assert.Zero(t, page.TotalCount)
	assert.Empty(t, page.Events)
}
