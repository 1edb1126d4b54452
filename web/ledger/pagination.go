package ledger

import (
	"errors"
	"fmt"
	"math"
)

// Default pagination values
const (
	DefaultPage    = 1   // Default to first page
	DefaultPerPage = 50  // Default pagination size
	MaxPerPage     = 100 // Maximum items per page
)

// Pagination validation errors
var (
	ErrPerPageTooLarge = errors.New("per_page exceeds maximum limit")
	ErrPageOutOfRange  = errors.New("page is out of range")
)

// Window is a validated page number and size
type Window struct {
	Number uint64 // 1-based page number
	Size   uint64 // Items per page
}

// NewWindow creates a Window, zero values select the defaults
func NewWindow(page, perPage uint64) (Window, error) {
	if page == 0 {
		page = DefaultPage
	}
	if perPage == 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		return Window{}, fmt.Errorf("%w: must be between 1 and %d", ErrPerPageTooLarge, MaxPerPage)
	}
	if page-1 > math.MaxInt64/perPage {
		return Window{}, fmt.Errorf("%w: %d", ErrPageOutOfRange, page)
	}
	return Window{Number: page, Size: perPage}, nil
}

// Offset returns the number of items before the window
func (w Window) Offset() uint64 {
	return (w.Number - 1) * w.Size
}

// Limit returns the window size
func (w Window) Limit() uint64 {
	return w.Size
}

// Page is a window of results with navigation metadata
type Page[T any] struct {
	Items   []T
	HasMore bool // True if there are more pages after this one
	Window
}

// Helper methods for pagination state
func (p Page[T]) HasNext() bool     { return p.HasMore }
func (p Page[T]) HasPrevious() bool { return p.Number > 1 }

// Fetch loads one window through an offset/limit query that reports whether
// more items follow
func Fetch[T any](w Window, query func(offset, limit uint64) ([]T, bool, error)) (Page[T], error) {
	items, more, err := query(w.Offset(), w.Limit())
	if err != nil {
		return Page[T]{}, err
	}
	return Page[T]{Items: items, HasMore: more, Window: w}, nil
}
