package requestlog

import "fmt"

const (
	// DefaultQueryLimit is applied by ApplyQueryDefaults when Limit is 0.
	DefaultQueryLimit = 100

	// MaxQueryLimit is the largest Limit ValidateQuery accepts.
	MaxQueryLimit = 10000
)

// ValidateQuery checks q for invalid pagination, ordering and time range.
func ValidateQuery(q *Query) error {
	if q.Limit < 0 {
		return NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxQueryLimit {
		return NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxQueryLimit, q.Limit))
	}
	if q.Offset < 0 {
		return NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}

	switch q.SortOrder {
	case "", "asc", "desc":
	default:
		return NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}

	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}

	return nil
}

// ApplyQueryDefaults fills in the default limit and sort order.
func ApplyQueryDefaults(q *Query) {
	if q.Limit == 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}

// Matches reports whether e satisfies the filters of q. Pagination is not
// considered.
func (q *Query) Matches(e *Entry) bool {
	if q.Collection != "" && e.Collection != q.Collection {
		return false
	}
	if q.StartTime != nil && e.ReqTime.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.ReqTime.After(*q.EndTime) {
		return false
	}
	if q.Route != "" && e.Route != q.Route {
		return false
	}
	if q.User != "" && e.User.Name != q.User {
		return false
	}
	if q.Environment != "" && e.User.Environment != q.Environment {
		return false
	}
	if q.Authorized != nil && e.User.Authorized != *q.Authorized {
		return false
	}
	if q.Keyless != nil && e.User.KeylessEntry != *q.Keyless {
		return false
	}
	return true
}
