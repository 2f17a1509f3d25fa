package auditstore

import (
	"errors"

	jsoniter "github.com/json-iterator/go"
)

// decodeFunc turns a raw record into its concrete variant, validating the
// variant's required fields.
type decodeFunc func(raw RawEvent) (RuntimeEvent, error)

// Registry is the closed mapping from event type discriminators to decode
// and validation logic. Classification is pure: a discriminator is either
// bound to a decoder or it is unknown, deterministically and without error.
//
// Adding a new variant means adding one table entry; the ingestion pipeline
// and the query engine need no change.
type Registry struct {
	decoders map[EventTypeString]decodeFunc
}

// NewRegistry creates a Registry populated with every known variant.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[EventTypeString]decodeFunc)}

	for _, eventType := range []EventTypeString{
		ActivityStartedEventType,
		ActivityCompletedEventType,
		ActivityCancelledEventType,
	} {
		r.decoders[eventType] = decodeActivityEvent
	}

	for _, eventType := range []EventTypeString{
		ProcessStartedEventType,
		ProcessCompletedEventType,
		ProcessCancelledEventType,
	} {
		r.decoders[eventType] = decodeProcessEvent
	}

	for _, eventType := range []EventTypeString{
		TaskCreatedEventType,
		TaskAssignedEventType,
		TaskCompletedEventType,
		TaskCancelledEventType,
	} {
		r.decoders[eventType] = decodeTaskEvent
	}

	return r
}

// Classify reports the category of a discriminator and whether the
// registry knows it. Unknown discriminators yield (CategoryUnknown, false),
// never an error.
func (r *Registry) Classify(eventType EventTypeString) (EventCategory, bool) {
	if _, known := r.decoders[eventType]; !known {
		return CategoryUnknown, false
	}

	return CategoryOf(eventType), true
}

// Decode turns a raw record into its concrete RuntimeEvent variant.
// It returns an error wrapping ErrUnknownEventType for discriminators
// outside the registry, or wrapping ErrValidationFailed when the payload
// is structurally incomplete.
func (r *Registry) Decode(raw RawEvent) (RuntimeEvent, error) {
	decode, known := r.decoders[raw.EventType]
	if !known {
		return RuntimeEvent{}, ErrUnknownEventType
	}

	if raw.ID == "" {
		return RuntimeEvent{}, errors.Join(ErrValidationFailed, errors.New("event id must not be empty"))
	}

	return decode(raw)
}

// envelopeFrom copies the raw envelope scalars; variant decoders fill in
// the payload and derive EntityID from the descriptor when the producer
// left it empty.
func envelopeFrom(raw RawEvent) RuntimeEvent {
	return RuntimeEvent{
		ID:                  raw.ID,
		EventType:           raw.EventType,
		Timestamp:           raw.Timestamp,
		ServiceName:         raw.ServiceName,
		ServiceVersion:      raw.ServiceVersion,
		EntityID:            raw.EntityID,
		ProcessInstanceID:   raw.ProcessInstanceID,
		ProcessDefinitionID: raw.ProcessDefinitionID,
	}
}

func decodeActivityEvent(raw RawEvent) (RuntimeEvent, error) {
	if len(raw.PayloadJSON) == 0 {
		return RuntimeEvent{}, errors.Join(ErrValidationFailed, errors.New("activity event requires an activity descriptor"))
	}

	payload := new(ActivityPayload)
	if err := jsoniter.ConfigFastest.Unmarshal(raw.PayloadJSON, payload); err != nil {
		return RuntimeEvent{}, errors.Join(ErrValidationFailed, err)
	}

	event := envelopeFrom(raw)
	event.Activity = payload

	if event.EntityID == "" {
		event.EntityID = payload.ActivityID
	}

	return event, nil
}

func decodeProcessEvent(raw RawEvent) (RuntimeEvent, error) {
	if len(raw.PayloadJSON) == 0 {
		return RuntimeEvent{}, errors.Join(ErrValidationFailed, errors.New("process event requires a process instance descriptor"))
	}

	payload := new(ProcessPayload)
	if err := jsoniter.ConfigFastest.Unmarshal(raw.PayloadJSON, payload); err != nil {
		return RuntimeEvent{}, errors.Join(ErrValidationFailed, err)
	}

	if payload.ProcessInstanceID == "" {
		return RuntimeEvent{}, errors.Join(ErrValidationFailed, errors.New("process instance descriptor requires a process instance id"))
	}

	event := envelopeFrom(raw)
	event.Process = payload

	if event.EntityID == "" {
		event.EntityID = payload.ProcessInstanceID
	}

	if event.ProcessInstanceID == "" {
		event.ProcessInstanceID = payload.ProcessInstanceID
	}

	if event.ProcessDefinitionID == "" {
		event.ProcessDefinitionID = payload.ProcessDefinitionID
	}

	return event, nil
}

func decodeTaskEvent(raw RawEvent) (RuntimeEvent, error) {
	if len(raw.PayloadJSON) == 0 {
		return RuntimeEvent{}, errors.Join(ErrValidationFailed, errors.New("task event requires a task descriptor"))
	}

	payload := new(TaskPayload)
	if err := jsoniter.ConfigFastest.Unmarshal(raw.PayloadJSON, payload); err != nil {
		return RuntimeEvent{}, errors.Join(ErrValidationFailed, err)
	}

	if payload.TaskID == "" {
		return RuntimeEvent{}, errors.Join(ErrValidationFailed, errors.New("task descriptor requires a task id"))
	}

	if payload.Status == "" {
		return RuntimeEvent{}, errors.Join(ErrValidationFailed, errors.New("task descriptor requires a status"))
	}

	event := envelopeFrom(raw)
	event.Task = payload

	if event.EntityID == "" {
		event.EntityID = payload.TaskID
	}

	return event, nil
}
