package auditstore

// Pagination defaults. Page numbers are zero-based.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// PageRequest selects one page of a query result.
// It should be constructed with BuildPageRequest, which normalizes
// out-of-range input instead of failing.
type PageRequest struct {
	Page     int
	PageSize int
}

// BuildPageRequest normalizes the given page coordinates:
// negative pages clamp to 0, non-positive sizes fall back to
// DefaultPageSize, oversized requests clamp to MaxPageSize.
func BuildPageRequest(page int, pageSize int) PageRequest {
	if page < 0 {
		page = 0
	}

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	return PageRequest{Page: page, PageSize: pageSize}
}

// Offset returns the number of records to skip.
func (p PageRequest) Offset() int {
	return p.Page * p.PageSize
}

// Limit returns the maximum number of records on the page.
func (p PageRequest) Limit() int {
	return p.PageSize
}

// Page is one slice of a query result in stable insertion order,
// plus the total number of records matching the filter.
type Page struct {
	Events     []RuntimeEvent
	TotalCount int
	Request    PageRequest
}
