package auditstore

import (
	"context"
	"errors"
	"math"
	"time"
)

var ErrNilStore = errors.New("store must not be nil")
var ErrNilRegistry = errors.New("registry must not be nil")
var ErrNilDatabaseConnection = errors.New("database connection must not be nil")
var ErrEmptyEventsTableName = errors.New("empty events table name supplied")

var ErrUnknownEventType = errors.New("unknown event type")
var ErrValidationFailed = errors.New("event validation failed")
var ErrEventNotFound = errors.New("event not found")
var ErrUnsupportedFilter = errors.New("unsupported filter attribute")

var ErrAppendingEventFailed = errors.New("appending event failed")
var ErrQueryingEventsFailed = errors.New("querying events failed")
var ErrPurgingEventsFailed = errors.New("purging events failed")
var ErrBuildingQueryFailed = errors.New("building query failed")
var ErrScanningDBRowFailed = errors.New("scanning database row failed")
var ErrGettingRowsAffectedFailed = errors.New("getting rows affected failed")
var ErrBuildingRuntimeEventFailed = errors.New("building runtime event from stored record failed")

// AppendOutcome reports what an append did to the store.
type AppendOutcome int

const (
	// Appended means the event was stored as a new record.
	Appended AppendOutcome = iota

	// Deduplicated means an event with the same ID was already stored
	// and the append was a no-op. Re-delivery from an at-least-once
	// transport is the expected trigger.
	Deduplicated
)

// Store is the durable, append-only collection of RuntimeEvents.
//
// Implementations must make Append of distinct IDs safe under concurrent
// invocation, must never expose a partially written record to readers,
// and must return query results in a stable order (ascending insertion
// sequence) so that pagination never skips or repeats records.
type Store interface {
	// Append stores the event, or reports Deduplicated if an event with
	// the same ID is already present. It never creates duplicate records.
	Append(ctx context.Context, event RuntimeEvent) (AppendOutcome, error)

	// GetByID returns the event with the given ID, or an error wrapping
	// ErrEventNotFound.
	GetByID(ctx context.Context, id string) (RuntimeEvent, error)

	// Query returns the page of events matching all predicates of the
	// filter, together with the total match count.
	Query(ctx context.Context, filter QueryFilter, page PageRequest) (Page, error)

	// PurgeAll removes every record. Administrative resets only, not part
	// of the steady-state contract.
	PurgeAll(ctx context.Context) error
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds
// with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
