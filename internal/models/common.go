package models

// Pagination describes list navigation metadata.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination derives pagination metadata from limit/offset and a total.
func NewPagination(limit, offset, total int) *Pagination {
	if limit <= 0 {
		limit = 20
	}
	page := offset/limit + 1
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return &Pagination{Page: page, PerPage: limit, TotalCount: total, TotalPages: pages}
}
