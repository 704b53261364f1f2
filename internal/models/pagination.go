package models

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxPage keeps Offset well inside int range for any page size.
	MaxPage = 10000
)

// Pagination is a normalised page request.
type Pagination struct {
	Page     int
	PageSize int
}

// NewPagination clamps page to [1, MaxPage] and pageSize to [1, MaxPageSize].
func NewPagination(page, pageSize int) Pagination {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

func (p Pagination) Limit() int  { return p.PageSize }
func (p Pagination) Offset() int { return (p.Page - 1) * p.PageSize }
