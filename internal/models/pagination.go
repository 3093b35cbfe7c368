package models

// Pagination is the envelope every paginated endpoint returns next to its data
type Pagination struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// NewPagination computes page counts for total items
func NewPagination(total, page, pageSize int) Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return Pagination{
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Paginate slices items for the requested page; data is never nil
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = len(items)
	}
	// compare page counts first so (page-1)*pageSize cannot overflow
	start := len(items)
	if pageSize > 0 && page-1 <= len(items)/pageSize {
		start = min((page-1)*pageSize, len(items))
	}
	end := len(items)
	if pageSize > 0 && end-start > pageSize {
		end = start + pageSize
	}
	data := make([]T, 0, end-start)
	data = append(data, items[start:end]...)
	return Page[T]{Data: data, Pagination: NewPagination(len(items), page, pageSize)}
}
