// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// PageQuery is the limit/offset paging accepted by list endpoints.
type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// ListResponse wraps list results with paging metadata.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// NewListResponse never returns a nil Items slice, so JSON shows [].
func NewListResponse[T any](items []T, total int64, q PageQuery) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, TotalCount: total, Limit: q.Limit, Offset: q.Offset}
}
