package auditstore

import (
	"errors"
	"fmt"
	"slices"
)

type FilterKeyString = string
type FilterValString = string

// The closed set of attributes the store indexes for equality filtering.
const (
	FilterKeyEventType           FilterKeyString = "eventType"
	FilterKeyEntityID            FilterKeyString = "entityId"
	FilterKeyProcessInstanceID   FilterKeyString = "processInstanceId"
	FilterKeyProcessDefinitionID FilterKeyString = "processDefinitionId"
)

var supportedFilterKeys = []FilterKeyString{
	FilterKeyEntityID,
	FilterKeyEventType,
	FilterKeyProcessDefinitionID,
	FilterKeyProcessInstanceID,
}

// IsSupportedFilterKey reports whether the store indexes the given attribute.
func IsSupportedFilterKey(key FilterKeyString) bool {
	return slices.Contains(supportedFilterKeys, key)
}

/***** QueryFilter *****/

// QueryFilter is a set of attribute=value predicates, all of which must
// hold for a record to match (conjunctive combination). An empty filter
// matches every record.
//
// Predicates are sanitized at construction: empty/partial predicates are
// removed, the rest sorted by key and deduplicated, so an identical set
// of inputs always yields an identical filter.
type QueryFilter struct {
	predicates []FilterPredicate
}

func (f QueryFilter) Predicates() []FilterPredicate {
	return f.predicates
}

func (f QueryFilter) IsEmpty() bool {
	return len(f.predicates) == 0
}

/***** FilterPredicate *****/

// FilterPredicate is an exact-match constraint on one indexed attribute.
// Values are matched by exact string equality, no partial match, no
// case folding.
type FilterPredicate struct {
	key FilterKeyString
	val FilterValString
}

func P(key FilterKeyString, val FilterValString) FilterPredicate {
	return FilterPredicate{key: key, val: val}
}

func (fp FilterPredicate) Key() FilterKeyString {
	return fp.key
}

func (fp FilterPredicate) Val() FilterValString {
	return fp.val
}

/***** QueryFilterBuilder *****/

// QueryFilterBuilder builds a QueryFilter from typed callers.
// Finalize rejects predicates naming attributes outside the indexed set
// with ErrUnsupportedFilter.
type QueryFilterBuilder interface {
	// Matching adds the first predicate.
	Matching(predicate FilterPredicate) CompletedQueryFilterBuilder

	// MatchingAnyEvent directly creates an empty QueryFilter.
	MatchingAnyEvent() QueryFilter
}

type CompletedQueryFilterBuilder interface {
	// AndMatching adds another predicate; all predicates combine with AND.
	AndMatching(predicate FilterPredicate) CompletedQueryFilterBuilder

	// Finalize sanitizes the predicates and returns the QueryFilter, or an
	// error wrapping ErrUnsupportedFilter if a predicate names an
	// attribute the store does not index.
	Finalize() (QueryFilter, error)
}

// queryFilterBuilder implements all the interfaces of QueryFilterBuilder.
type queryFilterBuilder struct {
	predicates []FilterPredicate
}

// BuildQueryFilter creates a QueryFilterBuilder which must eventually be
// finalized with Finalize() or MatchingAnyEvent().
func BuildQueryFilter() QueryFilterBuilder {
	return queryFilterBuilder{}
}

// Matching adds the first predicate.
func (fb queryFilterBuilder) Matching(predicate FilterPredicate) CompletedQueryFilterBuilder {
	fb.predicates = append(fb.predicates, predicate)

	return fb
}

// AndMatching adds another predicate; all predicates combine with AND.
func (fb queryFilterBuilder) AndMatching(predicate FilterPredicate) CompletedQueryFilterBuilder {
	fb.predicates = append(fb.predicates, predicate)

	return fb
}

// MatchingAnyEvent directly creates an empty filter.
func (fb queryFilterBuilder) MatchingAnyEvent() QueryFilter {
	return QueryFilter{}
}

// Finalize sanitizes the collected predicates and validates their keys.
func (fb queryFilterBuilder) Finalize() (QueryFilter, error) {
	predicates := sanitizePredicates(fb.predicates)

	for _, predicate := range predicates {
		if !IsSupportedFilterKey(predicate.key) {
			return QueryFilter{}, errors.Join(ErrUnsupportedFilter, fmt.Errorf("attribute: %s", predicate.key))
		}
	}

	return QueryFilter{predicates: predicates}, nil
}

// QueryFilterFromMap builds a QueryFilter from the attribute→value mapping
// the query surface supplies. Unknown attribute names are rejected, not
// silently ignored.
func QueryFilterFromMap(filters map[FilterKeyString]FilterValString) (QueryFilter, error) {
	if len(filters) == 0 {
		return QueryFilter{}, nil
	}

	predicates := make([]FilterPredicate, 0, len(filters))
	for key, val := range filters {
		predicates = append(predicates, P(key, val))
	}

	predicates = sanitizePredicates(predicates)

	for _, predicate := range predicates {
		if !IsSupportedFilterKey(predicate.key) {
			return QueryFilter{}, errors.Join(ErrUnsupportedFilter, fmt.Errorf("attribute: %s", predicate.key))
		}
	}

	return QueryFilter{predicates: predicates}, nil
}

// sanitizePredicates removes empty/partial predicates, sorts by key and
// value, and removes duplicates.
func sanitizePredicates(predicates []FilterPredicate) []FilterPredicate {
	allPredicates := slices.Clone(predicates)
	allPredicates = slices.DeleteFunc(
		allPredicates,
		func(p FilterPredicate) bool {
			return len(p.key) == 0 || len(p.val) == 0
		})

	slices.SortFunc(
		allPredicates,
		func(a, b FilterPredicate) int {
			if a.key != b.key {
				if a.key > b.key {
					return 1
				}

				return -1
			}

			if a.val > b.val {
				return 1
			}

			if a.val < b.val {
				return -1
			}

			return 0
		})

	allPredicates = slices.Compact(allPredicates)
	allPredicates = slices.Clip(allPredicates)

	return allPredicates
}
