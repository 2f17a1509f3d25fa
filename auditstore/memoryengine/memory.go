// Package memoryengine provides an in-process implementation of the
// auditstore.Store interface. It keeps every record in memory, ordered by
// insertion sequence, and supports the same filter and pagination contract
// as the durable engines. Intended for tests and embedded use.
package memoryengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/flowtrail/runtime-audit-eventstore-go/auditstore"
)

// EventStore is an in-memory auditstore.Store.
//
// A RWMutex guards the record set: appends of distinct IDs are safe under
// concurrent invocation, and a reader never observes a partially written
// record since each event becomes visible atomically under the write lock.
type EventStore struct {
	mu     sync.RWMutex
	byID   map[string]int // event id -> index into events
	events []auditstore.RuntimeEvent
	logger auditstore.Logger
}

// Option defines a functional option for configuring the EventStore.
type Option func(*EventStore) error

// WithLogger sets the logger for the EventStore.
func WithLogger(logger auditstore.Logger) Option {
	return func(es *EventStore) error {
		es.logger = logger
		return nil
	}
}

// NewEventStore creates an empty in-memory EventStore.
func NewEventStore(options ...Option) (*EventStore, error) {
	es := &EventStore{
		byID: make(map[string]int),
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// Append stores the event, or reports Deduplicated if the ID is already
// present.
func (es *EventStore) Append(_ context.Context, event auditstore.RuntimeEvent) (auditstore.AppendOutcome, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	if _, exists := es.byID[event.ID]; exists {
		if es.logger != nil {
			es.logger.Debug("duplicate event id, append is a no-op", "event_id", event.ID)
		}

		return auditstore.Deduplicated, nil
	}

	es.byID[event.ID] = len(es.events)
	es.events = append(es.events, event)

	return auditstore.Appended, nil
}

// GetByID returns the event with the given ID.
func (es *EventStore) GetByID(_ context.Context, id string) (auditstore.RuntimeEvent, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	idx, exists := es.byID[id]
	if !exists {
		return auditstore.RuntimeEvent{}, errors.Join(auditstore.ErrEventNotFound, fmt.Errorf("id: %s", id))
	}

	return es.events[idx], nil
}

// Query returns the requested page of events matching every filter
// predicate, in insertion order.
func (es *EventStore) Query(
	_ context.Context,
	filter auditstore.QueryFilter,
	page auditstore.PageRequest,
) (auditstore.Page, error) {

	es.mu.RLock()
	defer es.mu.RUnlock()

	matched := make([]auditstore.RuntimeEvent, 0)
	for _, event := range es.events {
		ok, err := matches(event, filter)
		if err != nil {
			return auditstore.Page{}, err
		}

		if ok {
			matched = append(matched, event)
		}
	}

	total := len(matched)

	offset := page.Offset()
	if offset > total {
		offset = total
	}

	end := offset + page.Limit()
	if end > total {
		end = total
	}

	pageEvents := make([]auditstore.RuntimeEvent, end-offset)
	copy(pageEvents, matched[offset:end])

	return auditstore.Page{Events: pageEvents, TotalCount: total, Request: page}, nil
}

// PurgeAll removes every record.
func (es *EventStore) PurgeAll(_ context.Context) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.byID = make(map[string]int)
	es.events = nil

	return nil
}

func matches(event auditstore.RuntimeEvent, filter auditstore.QueryFilter) (bool, error) {
	for _, predicate := range filter.Predicates() {
		var attribute string

		switch predicate.Key() {
		case auditstore.FilterKeyEventType:
			attribute = event.EventType
		case auditstore.FilterKeyEntityID:
			attribute = event.EntityID
		case auditstore.FilterKeyProcessInstanceID:
			attribute = event.ProcessInstanceID
		case auditstore.FilterKeyProcessDefinitionID:
			attribute = event.ProcessDefinitionID
		default:
			return false, errors.Join(auditstore.ErrUnsupportedFilter, fmt.Errorf("attribute: %s", predicate.Key()))
		}

		if attribute != predicate.Val() {
			return false, nil
		}
	}

	return true, nil
}

var _ auditstore.Store = (*EventStore)(nil)
