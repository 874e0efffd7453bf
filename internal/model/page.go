package model

// Page is one slice of a larger ordered result set.
//
// GENERICS:
// Page[T] works for any element type, so groups and events share the same
// envelope: Page[GroupSummary], Page[Event], and so on.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	HasNext       bool  `json:"hasNext"`
}

// NewPage builds the envelope for a page of content taken from a result set
// of total rows. page is zero-based; size must be positive.
func NewPage[T any](content []T, page, size int, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	totalPages := int((total + int64(size) - 1) / int64(size))
	return Page[T]{
		Content:       content,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
		HasNext:       (int64(page)+1)*int64(size) < total,
	}
}
