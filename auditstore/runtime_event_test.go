package auditstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowtrail/runtime-audit-eventstore-go/auditstore"
)

func Test_CategoryOf(t *testing.T) {
	tests := []struct {
		eventType auditstore.EventTypeString
		expected  auditstore.EventCategory
	}{
		{auditstore.ActivityStartedEventType, auditstore.CategoryActivity},
		{auditstore.ActivityCompletedEventType, auditstore.CategoryActivity},
		{auditstore.ActivityCancelledEventType, auditstore.CategoryActivity},
		{auditstore.ProcessStartedEventType, auditstore.CategoryProcess},
		{auditstore.ProcessCompletedEventType, auditstore.CategoryProcess},
		{auditstore.ProcessCancelledEventType, auditstore.CategoryProcess},
		{auditstore.TaskCreatedEventType, auditstore.CategoryTask},
		{auditstore.TaskAssignedEventType, auditstore.CategoryTask},
		{auditstore.TaskCompletedEventType, auditstore.CategoryTask},
		{auditstore.TaskCancelledEventType, auditstore.CategoryTask},
		{"IGNORED", auditstore.CategoryUnknown},
		{"", auditstore.CategoryUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.eventType, func(t *testing.T) {
			assert.Equal(t, tc.expected, auditstore.CategoryOf(tc.eventType))
		})
	}
}

func Test_BuildRawEvent_NormalizesEmptyPayload(t *testing.T) {
	// act
	raw, err := auditstore.BuildRawEvent("some-id", auditstore.ActivityCompletedEventType, 1724929200000, nil)

	// assert
	assert.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw.PayloadJSON))
}

func Test_BuildRawEvent_RejectsInvalidPayloadJSON(t *testing.T) {
	// act
	_, err := auditstore.BuildRawEvent("some-id", auditstore.ActivityCompletedEventType, 1724929200000, []byte(`{"broken":`))

	// assert
	assert.ErrorIs(t, err, auditstore.ErrInvalidPayloadJSON)
}

func Test_BuildRawEventWithScope_PopulatesEnvelope(t *testing.T) {
	// act
	raw, err := auditstore.BuildRawEventWithScope(
		"some-id", auditstore.TaskCreatedEventType, 1724929200000,
		"some-task", "46", "27",
		[]byte(`{"taskId":"some-task","status":"CREATED"}`))

	// assert
	assert.NoError(t, err)
	assert.Equal(t, "some-task", raw.EntityID)
	assert.Equal(t, "46", raw.ProcessInstanceID)
	assert.Equal(t, "27", raw.ProcessDefinitionID)
}

func Test_RuntimeEvent_OccurredAt(t *testing.T) {
	// arrange
	event := auditstore.RuntimeEvent{Timestamp: 1724929200000}

	// assert
	assert.Equal(t, time.UnixMilli(1724929200000), event.OccurredAt())
}

func Test_RuntimeEvent_PayloadJSON_SerializesTheActiveVariant(t *testing.T) {
	tests := []struct {
		name     string
		event    auditstore.RuntimeEvent
		expected string
	}{
		{
			name: "activity_descriptor",
			event: auditstore.RuntimeEvent{
				EventType: auditstore.ActivityStartedEventType,
				Activity:  &auditstore.ActivityPayload{ActivityID: "1", ActivityName: "My Service Task", ActivityType: "Service Task"},
			},
			expected: `{"activityId":"1","activityName":"My Service Task","activityType":"Service Task"}`,
		},
		{
			name: "process_descriptor",
			event: auditstore.RuntimeEvent{
				EventType: auditstore.ProcessStartedEventType,
				Process:   &auditstore.ProcessPayload{ProcessInstanceID: "25", ProcessDefinitionID: "44"},
			},
			expected: `{"processInstanceId":"25","processDefinitionId":"44"}`,
		},
		{
			name: "task_descriptor",
			event: auditstore.RuntimeEvent{
				EventType: auditstore.TaskAssignedEventType,
				Task:      &auditstore.TaskPayload{TaskID: "1234-abc-5678-def", TaskName: "task assigned", Status: auditstore.TaskStatusAssigned},
			},
			expected: `{"taskId":"1234-abc-5678-def","taskName":"task assigned","status":"ASSIGNED"}`,
		},
		{
			name:     "no_descriptor_serializes_to_empty_json",
			event:    auditstore.RuntimeEvent{EventType: auditstore.ActivityCompletedEventType},
			expected: `{}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payloadJSON, err := tc.event.PayloadJSON()
			assert.NoError(t, err)
			assert.JSONEq(t, tc.expected, string(payloadJSON))
		})
	}
}
