package handlers

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// PaginationParams is a limit/offset window parsed from ?limit= and ?offset=.
type PaginationParams struct {
	Limit  int
	Offset int
}

// Bounds clamps the window to a list of n items and returns the slice bounds.
func (p PaginationParams) Bounds(n int) (start, end int) {
	start = min(p.Offset, n)
	end = min(start+p.Limit, n)
	return start, end
}

type PaginatedResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewPage wraps one window of items; a nil slice is encoded as [].
func NewPage[T any](items []T, total int, p PaginationParams) PaginatedResponse[T] {
	if items == nil {
		items = []T{}
	}
	return PaginatedResponse[T]{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}
}

// ParsePagination reads the window from the query string. Invalid values fall back to
// the defaults and the limit is capped at MaxLimit.
func ParsePagination(r *http.Request, defaultLimit int) PaginationParams {
	p := PaginationParams{Limit: defaultLimit}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		p.Limit = min(n, MaxLimit)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		p.Offset = n
	}
	return p
}
