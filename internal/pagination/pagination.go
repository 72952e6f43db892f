// Package pagination provides limit/offset handling for the dashboard lists.
// It extracts parameters from URL query strings for the local API, validates
// them, and renders them back into the query the scheduling backend expects.
package pagination

import (
	"net/url"
	"strconv"
)

// Params represents pagination parameters for one list request.
type Params struct {
	Page   int32 // Current page number (1-based)
	Limit  int32 // Number of items per page
	Offset int32 // Calculated offset into the backend list
}

const (
	// MaxLimit is the maximum number of items allowed per page
	MaxLimit int32 = 100
	// DefaultPage is the default page number when not specified
	DefaultPage int32 = 1
	// DefaultLimit is the default number of items per page when not specified
	DefaultLimit int32 = 50
)

// calculateOffset computes the list offset for a given page and limit.
// It ensures page is at least 1 to avoid negative offsets.
func calculateOffset(page, limit int32) int32 {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

// Default returns the first page with the default limit.
func Default() Params {
	return Params{Page: DefaultPage, Limit: DefaultLimit, Offset: 0}
}

// PaginationOption is a function type for configuring pagination parameters.
// It follows the functional options pattern for flexible configuration.
type PaginationOption func(*Params)

// WithDefaultLimit returns a PaginationOption that sets the default limit.
// The limit is only applied if it's greater than 0.
func WithDefaultLimit(limit int32) PaginationOption {
	return func(p *Params) {
		if limit > 0 {
			p.Limit = limit
		}
	}
}

// GetPaginationParams extracts pagination parameters from URL query values.
// It applies any provided options and validates the parameters, enforcing
// maximum limits and calculating the appropriate offset.
func GetPaginationParams(q url.Values, opts ...PaginationOption) Params {
	params := Default()

	for _, opt := range opts {
		opt(&params)
	}

	if pageStr := q.Get("page"); pageStr != "" {
		if val, err := strconv.ParseInt(pageStr, 10, 32); err == nil && val > 0 {
			params.Page = int32(val)
		}
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		if val, err := strconv.ParseInt(limitStr, 10, 32); err == nil && val > 0 {
			params.Limit = int32(val)
		}
	}

	// enforce max limit
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}

	params.Offset = calculateOffset(params.Page, params.Limit)

	return params
}

// Apply writes limit and offset into q, the shape the backend list endpoints take.
func (p Params) Apply(q url.Values) {
	q.Set("limit", strconv.FormatInt(int64(p.Limit), 10))
	q.Set("offset", strconv.FormatInt(int64(p.Offset), 10))
}

// GetHasNext determines if there are more items available after the current page.
// It returns true when the offset plus limit is less than the total count.
func GetHasNext(offset, limit, count int32) bool {
	return (offset + limit) < count
}
