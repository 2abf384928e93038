// Package pagination computes the display metadata for one page of a listing.
//
// It knows nothing about storage: the caller counts the matching rows, asks
// Compute for the view, fetches the slice [Offset, Offset+PerPage) and hands
// both to the template. Keeping the arithmetic here means the rules below are
// tested once, without a database.
//
// RULES:
//
//	TotalPages  = ceil(Total / PerPage), but never less than 1
//	HasPrev     = Page > 1
//	HasNext     = Page < TotalPages
//	StartItem   = Offset + 1, or 0 when the page is empty
//	EndItem     = min(Page * PerPage, Total), or 0 when the page is empty
//	Window      = [max(1, Page-2), min(TotalPages+1, Page+3))
package pagination

import (
	"fmt"
	"math"

	"github.com/sakif/htmx-starter/internal/apperror"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100

	// windowRadius is how many page links are shown on each side of the
	// current page.
	windowRadius = 2
)

// Params are the caller-supplied inputs. Page and PerPage are expected to be
// checked with Validate before they reach Compute.
type Params struct {
	Page    int
	PerPage int
}

// View is the derived, never-persisted description of one page.
type View struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
	HasPrev    bool
	HasNext    bool
	StartItem  int
	EndItem    int

	// WindowStart and WindowEnd bound the page-number links: WindowEnd is
	// exclusive, so the links are WindowStart..WindowEnd-1.
	WindowStart int
	WindowEnd   int
}

// Offset is the number of rows to skip for p.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Validate rejects a page below 1, a per_page outside [1, MaxPerPage] and a
// page so large that Page*PerPage would not fit in an int.
// Errors carry the query parameter name as their field.
func (p Params) Validate() error {
	if p.Page < 1 {
		return apperror.ValidationFailed("page", "page must be 1 or greater")
	}
	if p.PerPage < 1 || p.PerPage > MaxPerPage {
		return apperror.ValidationFailed("per_page",
			fmt.Sprintf("per_page must be between 1 and %d", MaxPerPage))
	}
	if p.Page > math.MaxInt/p.PerPage {
		return apperror.ValidationFailed("page", "page is out of range")
	}
	return nil
}

// TotalPages returns ceil(total/perPage) with a floor of 1.
//
// An empty collection still has one (empty) page. That keeps "page 1 of 1"
// consistent in the templates and gives ClampPage a valid lower bound.
func TotalPages(total, perPage int) int {
	if perPage < 1 || total <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

// ClampPage pulls page back inside [1, TotalPages(total, perPage)].
// Used after a delete shrinks the collection under the caller's feet.
func ClampPage(page, total, perPage int) int {
	if last := TotalPages(total, perPage); page > last {
		page = last
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Compute builds the View for total matching rows and the requested page.
// A page past the end is not an error: the view simply describes an empty page.
func Compute(total int, p Params) View {
	if total < 0 {
		total = 0
	}

	totalPages := TotalPages(total, p.PerPage)
	offset := p.Offset()

	v := View{
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      total,
		TotalPages: totalPages,
		HasPrev:    p.Page > 1,
		HasNext:    p.Page < totalPages,
		EndItem:    min(p.Page*p.PerPage, total),
	}

	if total > 0 && offset < total {
		v.StartItem = offset + 1
	}
	if v.StartItem == 0 {
		// Past the last page EndItem would otherwise report the last row
		// of the collection for an empty slice.
		v.EndItem = 0
	}

	v.WindowStart = max(1, p.Page-windowRadius)
	v.WindowEnd = totalPages + 1
	if p.Page < totalPages-windowRadius {
		v.WindowEnd = p.Page + windowRadius + 1
	}

	return v
}

// Pages lists the page numbers inside the navigation window.
func (v View) Pages() []int {
	if v.WindowEnd <= v.WindowStart {
		return nil
	}
	pages := make([]int, 0, v.WindowEnd-v.WindowStart)
	for n := v.WindowStart; n < v.WindowEnd; n++ {
		pages = append(pages, n)
	}
	return pages
}

// PrevPage and NextPage are template helpers; they are only meaningful when
// HasPrev / HasNext are true.
func (v View) PrevPage() int { return v.Page - 1 }
func (v View) NextPage() int { return v.Page + 1 }
