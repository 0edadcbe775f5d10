package models

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects a window of a listing.
type PageRequest struct {
	Page int
	Size int
}

// Normalize clamps page and size to usable values.
func (p PageRequest) Normalize() PageRequest {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Size <= 0 || p.Size > MaxPageSize {
		p.Size = DefaultPageSize
	}
	return p
}

// Page is one window of a listing plus the unpaged total.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

// Paginate slices items according to the request.
func Paginate[T any](items []T, req PageRequest) Page[T] {
	req = req.Normalize()
	// Pages past the end are empty. Comparing page indexes first keeps
	// (Page-1)*Size from overflowing for huge page numbers.
	start := len(items)
	if req.Page-1 <= len(items)/req.Size {
		start = min((req.Page-1)*req.Size, len(items))
	}
	end := min(start+req.Size, len(items))
	window := make([]T, end-start)
	copy(window, items[start:end])
	return Page[T]{Items: window, Total: len(items), Page: req.Page, Size: req.Size}
}
