// Package repository 定义故事任务的存储接口与分页类型
package repository

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination 分页参数，Page 从 1 开始
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// NewPagination 越界值被夹到合法范围
func NewPagination(page, pageSize int) Pagination {
	page = max(page, 1)
	switch {
	case pageSize < 1:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

func (p Pagination) Offset() int { return (p.Page - 1) * p.PageSize }

func (p Pagination) Limit() int { return p.PageSize }

// PagedResult 分页结果
type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func NewPagedResult[T any](items []T, total int64, pagination Pagination) *PagedResult[T] {
	pages := 0
	if size := int64(pagination.PageSize); size > 0 {
		pages = int((total + size - 1) / size)
	}
	if items == nil {
		items = []T{}
	}
	return &PagedResult[T]{
		Items:      items,
		Total:      total,
		Page:       pagination.Page,
		PageSize:   pagination.PageSize,
		TotalPages: pages,
	}
}

// MapItems 转换条目类型，分页信息保持不变
func MapItems[T, U any](in *PagedResult[T], fn func(T) U) *PagedResult[U] {
	items := make([]U, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, fn(it))
	}
	return &PagedResult[U]{
		Items:      items,
		Total:      in.Total,
		Page:       in.Page,
		PageSize:   in.PageSize,
		TotalPages: in.TotalPages,
	}
}
