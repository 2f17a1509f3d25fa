package auditstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowtrail/runtime-audit-eventstore-go/auditstore"
	"github.com/flowtrail/runtime-audit-eventstore-go/auditstore/memoryengine"
	. "github.com/flowtrail/runtime-audit-eventstore-go/test"
)

func Test_NewQueryEngine_RequiresStore(t *testing.T) {
	_, err := auditstore.NewQueryEngine(nil)
	assert.ErrorIs(t, err, auditstore.ErrNilStore)
}

func Test_FindAll_WithoutFilter_ReturnsEveryStoredEvent(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queries, pipeline := newMemoryQueryEngine(t)

	// arrange
	GivenCoveredEventsWereIngested(t, ctxWithTimeout, pipeline)

	// act
	page, err := queries.FindAll(ctxWithTimeout, auditstore.QueryFilter{}, auditstore.BuildPageRequest(0, 100))

	// assert
	assert.NoError(t, err)
	assert.Equal(t, CoveredEventsCount, page.TotalCount)
	assert.Len(t, page.Events, CoveredEventsCount)
}

//nolint:funlen
func Test_FindAll_FilterCombinations(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queries, pipeline := newMemoryQueryEngine(t)
	fixture := GivenCoveredEventsWereIngested(t, ctxWithTimeout, pipeline)

	tests := []struct {
		name          string
		filters       map[auditstore.FilterKeyString]auditstore.FilterValString
		expectedCount int
	}{
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
		{
			name:          "by_event_type_task_assigned",
			filters:       map[auditstore.FilterKeyString]auditstore.FilterValString{auditstore.FilterKeyEventType: auditstore.TaskAssignedEventType},
			expectedCount: 1,
		},
		{
			name: "conjunction_without_matches",
			filters: map[auditstore.FilterKeyString]auditstore.FilterValString{
				auditstore.FilterKeyProcessInstanceID: "4",
				auditstore.FilterKeyEventType:         auditstore.TaskAssignedEventType,
			},
			expectedCount: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			page, err := queries.FindAllMatching(ctxWithTimeout, tc.filters, auditstore.BuildPageRequest(0, 100))

			// assert
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedCount, page.TotalCount)
			assert.Len(t, page.Events, tc.expectedCount)
		})
	}

	// the single TASK_ASSIGNED match carries the full task descriptor
	page, err := queries.FindAllMatching(
		ctxWithTimeout,
		map[auditstore.FilterKeyString]auditstore.FilterValString{auditstore.FilterKeyEventType: auditstore.TaskAssignedEventType},
		auditstore.BuildPageRequest(0, 100))
	assert.NoError(t, err)
	assert.Len(t, page.Events, 1)

	assigned := page.Events[0]
	assert.Equal(t, fixture.TaskAssignedID, assigned.ID)
	assert.Equal(t, "46", assigned.ProcessInstanceID)
	assert.Equal(t, "27", assigned.ProcessDefinitionID)
	assert.Equal(t, TaskEntityID, assigned.EntityID)
	assert.NotNil(t, assigned.Task)
	assert.Equal(t, "task assigned", assigned.Task.TaskName)
	assert.Equal(t, auditstore.TaskStatusAssigned, assigned.Task.Status)
}

func Test_FindAll_EntityScoping_CoversTheWholeTaskLifecycle(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queries, pipeline := newMemoryQueryEngine(t)

	// arrange
	taskID := GivenUniqueID(t)
	report := pipeline.Ingest(ctxWithTimeout, BuildTaskCancellationFlow(t, taskID))
	assert.Equal(t, 3, report.Stored, "error in arranging test data")

	// act
	page, err := queries.FindAll(
		ctxWithTimeout,
		FilterMatching(t, auditstore.FilterKeyEntityID, taskID),
		auditstore.BuildPageRequest(0, 100))

	// assert
	assert.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)

	statuses := make([]string, 0, len(page.Events))
	for _, event := range page.Events {
		assert.Equal(t, taskID, event.EntityID)
		assert.NotNil(t, event.Task)
		statuses = append(statuses, event.Task.Status)
	}

	assert.Equal(t,
		[]string{auditstore.TaskStatusCreated, auditstore.TaskStatusAssigned, auditstore.TaskStatusCancelled},
		statuses,
		"lifecycle events must come back in ingestion order")
}

func Test_FindAll_RejectsUnsupportedFilterAttribute(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queries, _ := newMemoryQueryEngine(t)

	// act
	_, err := queries.FindAllMatching(
		ctxWithTimeout,
		map[auditstore.FilterKeyString]auditstore.FilterValString{"businessKey": "some-key"},
		auditstore.BuildPageRequest(0, 100))

	// assert
	assert.ErrorIs(t, err, auditstore.ErrUnsupportedFilter)
}

func Test_FindByID_RoundTrip(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queries, pipeline := newMemoryQueryEngine(t)

	// arrange
	eventID := GivenUniqueID(t)
	raw := BuildActivityRaw(t, eventID, auditstore.ActivityStartedEventType, 1724929200000,
		"4", "3", auditstore.ActivityPayload{ActivityID: "1", ActivityName: "first step", ActivityType: "Service Task"})
	report := pipeline.Ingest(ctxWithTimeout, auditstore.RawEvents{raw})
	assert.Equal(t, 1, report.Stored, "error in arranging test data")

	// act
	event, err := queries.FindByID(ctxWithTimeout, eventID)

	// assert
	assert.NoError(t, err)
	assert.Equal(t, eventID, event.ID)
	assert.Equal(t, auditstore.ActivityStartedEventType, event.EventType)
	assert.Equal(t, "4", event.ProcessInstanceID)
	assert.Equal(t, "3", event.ProcessDefinitionID)
	assert.NotNil(t, event.Activity)
	assert.Equal(t, "first step", event.Activity.ActivityName)
}

func Test_FindByID_UnknownID(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queries, _ := newMemoryQueryEngine(t)

	// act
	_, err := queries.FindByID(ctxWithTimeout, GivenUniqueID(t))

	// assert
	assert.ErrorIs(t, err, auditstore.ErrEventNotFound)
}

func Test_FindAll_PaginationIsStable(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queries, pipeline := newMemoryQueryEngine(t)

	// arrange
	GivenCoveredEventsWereIngested(t, ctxWithTimeout, pipeline)

	// act
	firstPage, err := queries.FindAll(ctxWithTimeout, auditstore.QueryFilter{}, auditstore.BuildPageRequest(0, 5))
	assert.NoError(t, err)
	secondPage, err := queries.FindAll(ctxWithTimeout, auditstore.QueryFilter{}, auditstore.BuildPageRequest(1, 5))
	assert.NoError(t, err)
	thirdPage, err := queries.FindAll(ctxWithTimeout, auditstore.QueryFilter{}, auditstore.BuildPageRequest(2, 5))
	assert.NoError(t, err)

	// assert
	assert.Len(t, firstPage.Events, 5)
	assert.Len(t, secondPage.Events, 5)
	assert.Len(t, thirdPage.Events, 2)
	assert.Equal(t, CoveredEventsCount, firstPage.TotalCount)
	assert.Equal(t, CoveredEventsCount, secondPage.TotalCount)
	assert.Equal(t, CoveredEventsCount, thirdPage.TotalCount)

	seen := make(map[string]bool)
	for _, page := range []auditstore.Page{firstPage, secondPage, thirdPage} {
		for _, event := range page.Events {
			assert.False(t, seen[event.ID], "event %s appeared on more than one page", event.ID)
			seen[event.ID] = true
		}
	}
	assert.Len(t, seen, CoveredEventsCount, "pages must cover the full result set without gaps")

	// re-reading a page yields the identical slice of the result
	firstPageAgain, err := queries.FindAll(ctxWithTimeout, auditstore.QueryFilter{}, auditstore.BuildPageRequest(0, 5))
	assert.NoError(t, err)
	assert.Equal(t, firstPage.Events, firstPageAgain.Events)
}

func Test_FindAll_PageBeyondResultSet(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queries, pipeline := newMemoryQueryEngine(t)

	// arrange
	GivenCoveredEventsWereIngested(t, ctxWithTimeout, pipeline)

	// act
	page, err := queries.FindAll(ctxWithTimeout, auditstore.QueryFilter{}, auditstore.BuildPageRequest(5, 100))

	// assert
	assert.NoError(t, err)
	assert.Empty(t, page.Events)
	assert.Equal(t, CoveredEventsCount, page.TotalCount, "total count is independent of the requested page")
}

func newMemoryQueryEngine(t testing.TB) (*auditstore.QueryEngine, *auditstore.Pipeline) {
	store, err := memoryengine.NewEventStore()
	assert.NoError(t, err, "error in test setup")

	pipeline, err := auditstore.NewPipeline(store, auditstore.NewRegistry())
	assert.NoError(t, err, "error in test setup")

	queries, err := auditstore.NewQueryEngine(store)
	assert.NoError(t, err, "error in test setup")

	return queries, pipeline
}
