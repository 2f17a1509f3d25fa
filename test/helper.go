// Package test provides shared fixtures and arrange-helpers for the
// engine and pipeline tests. The covered-event set mirrors one runtime
// engine batch touching activities, process instances and tasks.
package test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	. "github.com/flowtrail/runtime-audit-eventstore-go/auditstore"
)

// TaskEntityID is the shared task id of the four covered task events.
const TaskEntityID = "1234-abc-5678-def"

// UnknownEventTypeName is a discriminator outside the registry, used to
// exercise the skip path of the pipeline.
const UnknownEventTypeName = "IGNORED"

// fixtureBaseTimestamp anchors fixture timestamps; each covered event is
// one second apart.
const fixtureBaseTimestamp = int64(1724929200000)

func GivenUniqueID(t testing.TB) string {
	id, err := uuid.NewV7()
	assert.NoError(t, err, "error in arranging test data")

	return id.String()
}

// CoveredRawEvents is one batch of every covered variant, with the record
// IDs exposed so tests can assert against individual events.
type CoveredRawEvents struct {
	ActivityCancelledID string
	ActivityStartedID   string
	ActivityStarted2ID  string
	ActivityStarted3ID  string
	ActivityCompletedID string
	ProcessCompletedID  string
	ProcessCancelledID  string
	ProcessStartedID    string
	TaskAssignedID      string
	TaskCompletedID     string
	TaskCreatedID       string
	TaskCancelledID     string

	Batch RawEvents
}

// BuildCoveredRawEvents builds the canonical twelve-event batch:
// three ACTIVITY_STARTED records (two sharing process instance 4), one
// completed and one cancelled activity, one started/completed/cancelled
// process instance each, and the four task lifecycle records sharing
// TaskEntityID.
func BuildCoveredRawEvents(t testing.TB) CoveredRawEvents {
	fixture := CoveredRawEvents{
		ActivityCancelledID: GivenUniqueID(t),
		ActivityStartedID:   GivenUniqueID(t),
		ActivityStarted2ID:  GivenUniqueID(t),
		ActivityStarted3ID:  GivenUniqueID(t),
		ActivityCompletedID: GivenUniqueID(t),
		ProcessCompletedID:  GivenUniqueID(t),
		ProcessCancelledID:  GivenUniqueID(t),
		ProcessStartedID:    GivenUniqueID(t),
		TaskAssignedID:      GivenUniqueID(t),
		TaskCompletedID:     GivenUniqueID(t),
		TaskCreatedID:       GivenUniqueID(t),
		TaskCancelledID:     GivenUniqueID(t),
	}

	ts := fixtureTimestamps(t)

	fixture.Batch = RawEvents{
		BuildActivityRaw(t, fixture.ActivityCancelledID, ActivityCancelledEventType, ts(),
			"104", "103", ActivityPayload{Cause: "manually cancelled"}),
		BuildActivityRaw(t, fixture.ActivityStartedID, ActivityStartedEventType, ts(),
			"4", "3", ActivityPayload{ActivityID: "1", ActivityName: "My Service Task", ActivityType: "Service Task"}),
		BuildActivityRaw(t, fixture.ActivityStarted2ID, ActivityStartedEventType, ts(),
			"4", "3", ActivityPayload{ActivityID: "2", ActivityName: "My User Task", ActivityType: "User Task"}),
		BuildActivityRaw(t, fixture.ActivityStarted3ID, ActivityStartedEventType, ts(),
			"5", "3", ActivityPayload{ActivityID: "2", ActivityName: "My User Task", ActivityType: "User Task"}),
		BuildActivityRaw(t, fixture.ActivityCompletedID, ActivityCompletedEventType, ts(),
			"42", "23", ActivityPayload{}),
		BuildProcessRaw(t, fixture.ProcessCompletedID, ProcessCompletedEventType, ts(),
			ProcessPayload{ProcessInstanceID: "24", ProcessDefinitionID: "43"}),
		BuildProcessRaw(t, fixture.ProcessCancelledID, ProcessCancelledEventType, ts(),
			ProcessPayload{ProcessInstanceID: "124", ProcessDefinitionID: "143"}),
		BuildProcessRaw(t, fixture.ProcessStartedID, ProcessStartedEventType, ts(),
			ProcessPayload{ProcessInstanceID: "25", ProcessDefinitionID: "44"}),
		BuildTaskRaw(t, fixture.TaskAssignedID, TaskAssignedEventType, ts(),
			"46", "27", TaskPayload{TaskID: TaskEntityID, TaskName: "task assigned", Status: TaskStatusAssigned}),
		BuildTaskRaw(t, fixture.TaskCompletedID, TaskCompletedEventType, ts(),
			"47", "28", TaskPayload{TaskID: TaskEntityID, TaskName: "task completed", Status: TaskStatusCompleted}),
		BuildTaskRaw(t, fixture.TaskCreatedID, TaskCreatedEventType, ts(),
			"47", "28", TaskPayload{TaskID: TaskEntityID, TaskName: "task created", Status: TaskStatusCreated}),
		BuildTaskRaw(t, fixture.TaskCancelledID, TaskCancelledEventType, ts(),
			"47", "28", TaskPayload{TaskID: TaskEntityID, TaskName: "task cancelled", Status: TaskStatusCancelled}),
	}

	return fixture
}

// CoveredEventsCount is the size of the canonical fixture batch.
const CoveredEventsCount = 12

func fixtureTimestamps(_ testing.TB) func() int64 {
	next := fixtureBaseTimestamp

	return func() int64 {
		current := next
		next += time.Second.Milliseconds()

		return current
	}
}

func BuildActivityRaw(
	t testing.TB,
	id string,
	eventType EventTypeString,
	timestamp int64,
	processInstanceID string,
	processDefinitionID string,
	payload ActivityPayload,
) RawEvent {

	raw, err := BuildRawEventWithScope(
		id, eventType, timestamp,
		"", processInstanceID, processDefinitionID,
		marshalPayload(t, payload))
	assert.NoError(t, err, "error in arranging test data")

	return raw
}

func BuildProcessRaw(
	t testing.TB,
	id string,
	eventType EventTypeString,
	timestamp int64,
	payload ProcessPayload,
) RawEvent {

	raw, err := BuildRawEvent(id, eventType, timestamp, marshalPayload(t, payload))
	assert.NoError(t, err, "error in arranging test data")

	return raw
}

func BuildTaskRaw(
	t testing.TB,
	id string,
	eventType EventTypeString,
	timestamp int64,
	processInstanceID string,
	processDefinitionID string,
	payload TaskPayload,
) RawEvent {

	raw, err := BuildRawEventWithScope(
		id, eventType, timestamp,
		"", processInstanceID, processDefinitionID,
		marshalPayload(t, payload))
	assert.NoError(t, err, "error in arranging test data")

	return raw
}

// BuildUnknownTypeRaw builds a structurally sound record whose
// discriminator is outside the registry.
func BuildUnknownTypeRaw(t testing.TB) RawEvent {
	raw, err := BuildRawEvent(GivenUniqueID(t), UnknownEventTypeName, fixtureBaseTimestamp, []byte(`{"some":"payload"}`))
	assert.NoError(t, err, "error in arranging test data")

	return raw
}

// BuildTaskCancellationFlow builds the created -> assigned -> cancelled
// sequence for one task, all in process instance 100 of definition
// "proc-def".
func BuildTaskCancellationFlow(t testing.TB, taskID string) RawEvents {
	ts := fixtureTimestamps(t)

	return RawEvents{
		BuildTaskRaw(t, GivenUniqueID(t), TaskCreatedEventType, ts(),
			"100", "proc-def", TaskPayload{TaskID: taskID, TaskName: "task to cancel", Status: TaskStatusCreated}),
		BuildTaskRaw(t, GivenUniqueID(t), TaskAssignedEventType, ts(),
			"100", "proc-def", TaskPayload{TaskID: taskID, TaskName: "task to cancel", Status: TaskStatusAssigned}),
		BuildTaskRaw(t, GivenUniqueID(t), TaskCancelledEventType, ts(),
			"100", "proc-def", TaskPayload{TaskID: taskID, TaskName: "task to cancel", Status: TaskStatusCancelled}),
	}
}

// GivenCoveredEventsWereIngested pushes the canonical batch through the
// pipeline and asserts every record was stored.
func GivenCoveredEventsWereIngested(t testing.TB, ctx context.Context, pipeline *Pipeline) CoveredRawEvents {
	fixture := BuildCoveredRawEvents(t)

	report := pipeline.Ingest(ctx, fixture.Batch)
	assert.Equal(t, CoveredEventsCount, report.Stored, "error in arranging test data")
	assert.Empty(t, report.Failed, "error in arranging test data")

	return fixture
}

// FilterMatching builds a finalized single-predicate filter.
func FilterMatching(t testing.TB, key FilterKeyString, val FilterValString) QueryFilter {
	filter, err := BuildQueryFilter().Matching(P(key, val)).Finalize()
	assert.NoError(t, err, "error in arranging test data")

	return filter
}

func marshalPayload(t testing.TB, payload any) []byte {
	payloadJSON, err := json.Marshal(payload)
	assert.NoError(t, err, "error in arranging test data")

	return payloadJSON
}
