package auditstore

import (
	"encoding/json"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var ErrInvalidPayloadJSON = errors.New("payload json is not valid")

type EventTypeString = string

// The closed set of event type discriminators the registry recognizes.
const (
	ActivityStartedEventType   EventTypeString = "ACTIVITY_STARTED"
	ActivityCompletedEventType EventTypeString = "ACTIVITY_COMPLETED"
	ActivityCancelledEventType EventTypeString = "ACTIVITY_CANCELLED"
	ProcessStartedEventType    EventTypeString = "PROCESS_STARTED"
	ProcessCompletedEventType  EventTypeString = "PROCESS_COMPLETED"
	ProcessCancelledEventType  EventTypeString = "PROCESS_CANCELLED"
	TaskCreatedEventType       EventTypeString = "TASK_CREATED"
	TaskAssignedEventType      EventTypeString = "TASK_ASSIGNED"
	TaskCompletedEventType     EventTypeString = "TASK_COMPLETED"
	TaskCancelledEventType     EventTypeString = "TASK_CANCELLED"
)

// Task lifecycle statuses carried by the task descriptor.
const (
	TaskStatusCreated   = "CREATED"
	TaskStatusAssigned  = "ASSIGNED"
	TaskStatusCompleted = "COMPLETED"
	TaskStatusCancelled = "CANCELLED"
)

// EventCategory groups event types by the kind of domain object they concern.
type EventCategory int

const (
	CategoryUnknown EventCategory = iota
	CategoryActivity
	CategoryProcess
	CategoryTask
)

// CategoryOf maps an event type discriminator to its category.
// Any discriminator outside the known set maps to CategoryUnknown.
func CategoryOf(eventType EventTypeString) EventCategory {
	switch eventType {
	case ActivityStartedEventType, ActivityCompletedEventType, ActivityCancelledEventType:
		return CategoryActivity
	case ProcessStartedEventType, ProcessCompletedEventType, ProcessCancelledEventType:
		return CategoryProcess
	case TaskCreatedEventType, TaskAssignedEventType, TaskCompletedEventType, TaskCancelledEventType:
		return CategoryTask
	default:
		return CategoryUnknown
	}
}

// ActivityPayload is the descriptor embedded in activity events.
// Cause is only set on cancellation.
type ActivityPayload struct {
	ActivityID   string `json:"activityId,omitempty"`
	ActivityName string `json:"activityName,omitempty"`
	ActivityType string `json:"activityType,omitempty"`
	Cause        string `json:"cause,omitempty"`
}

// ProcessPayload is the process-instance descriptor embedded in process events.
type ProcessPayload struct {
	ProcessInstanceID   string `json:"processInstanceId"`
	ProcessDefinitionID string `json:"processDefinitionId"`
}

// TaskPayload is the task descriptor embedded in task events.
type TaskPayload struct {
	TaskID   string `json:"taskId"`
	TaskName string `json:"taskName,omitempty"`
	Status   string `json:"status"`
}

// RuntimeEvent is an immutable audit record describing a state transition
// of a process-engine object. The envelope fields are common to every
// variant; exactly one of Activity, Process or Task is set, selected by
// the EventType discriminator.
//
// All fields are producer-assigned. The store never mutates a stored event.
type RuntimeEvent struct {
	ID                  string
	EventType           EventTypeString
	Timestamp           int64 // epoch milliseconds, not monotonic across producers
	ServiceName         string
	ServiceVersion      string
	EntityID            string
	ProcessInstanceID   string
	ProcessDefinitionID string

	Activity *ActivityPayload
	Process  *ProcessPayload
	Task     *TaskPayload
}

// Category returns the category of the event's discriminator.
func (e RuntimeEvent) Category() EventCategory {
	return CategoryOf(e.EventType)
}

// OccurredAt converts the producer timestamp to a time.Time.
func (e RuntimeEvent) OccurredAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// PayloadJSON serializes whichever variant payload is set.
// An event without a payload serializes to empty JSON.
func (e RuntimeEvent) PayloadJSON() ([]byte, error) {
	switch {
	case e.Activity != nil:
		return jsoniter.ConfigFastest.Marshal(e.Activity)
	case e.Process != nil:
		return jsoniter.ConfigFastest.Marshal(e.Process)
	case e.Task != nil:
		return jsoniter.ConfigFastest.Marshal(e.Task)
	default:
		return []byte("{}"), nil
	}
}

// RawEvents is an alias type for a slice of RawEvent.
type RawEvents = []RawEvent

// RawEvent is the polymorphic wire shape a producer delivers to the
// ingestion boundary: the common envelope as scalars plus the
// variant-specific payload as opaque JSON, keyed by the EventType
// discriminator.
//
// While its properties are exported, it should only be constructed with
// BuildRawEvent, which guards the payload JSON.
type RawEvent struct {
	ID                  string          `json:"id"`
	EventType           string          `json:"eventType"`
	Timestamp           int64           `json:"timestamp"`
	ServiceName         string          `json:"serviceName,omitempty"`
	ServiceVersion      string          `json:"serviceVersion,omitempty"`
	EntityID            string          `json:"entityId,omitempty"`
	ProcessInstanceID   string          `json:"processInstanceId,omitempty"`
	ProcessDefinitionID string          `json:"processDefinitionId,omitempty"`
	PayloadJSON         json.RawMessage `json:"payload,omitempty"`
}

// BuildRawEvent is a factory method for RawEvent.
//
// It populates the RawEvent with the given scalar input.
// Returns an error if payloadJSON is not valid JSON; an empty payload is
// normalized to empty JSON.
func BuildRawEvent(
	id string,
	eventType string,
	timestamp int64,
	payloadJSON []byte,
) (RawEvent, error) {

	if len(payloadJSON) == 0 {
		payloadJSON = []byte("{}")
	}

	if !jsoniter.ConfigFastest.Valid(payloadJSON) {
		return RawEvent{}, ErrInvalidPayloadJSON
	}

	return RawEvent{
		ID:          id,
		EventType:   eventType,
		Timestamp:   timestamp,
		PayloadJSON: payloadJSON,
	}, nil
}

// BuildRawEventWithScope is a factory method for RawEvent which also
// populates the envelope scope fields used for filtering, for producers
// that know them up front. The decode step derives missing scope fields
// from the payload descriptor where it can.
func BuildRawEventWithScope(
	id string,
	eventType string,
	timestamp int64,
	entityID string,
	processInstanceID string,
	processDefinitionID string,
	payloadJSON []byte,
) (RawEvent, error) {

	raw, err := BuildRawEvent(id, eventType, timestamp, payloadJSON)
	if err != nil {
		return RawEvent{}, err
	}

	raw.EntityID = entityID
	raw.ProcessInstanceID = processInstanceID
	raw.ProcessDefinitionID = processDefinitionID

	return raw, nil
}
